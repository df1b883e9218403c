package e2e_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alexjbarnes/marginalio/internal/auth"
	"github.com/alexjbarnes/marginalio/internal/library"
	"github.com/alexjbarnes/marginalio/internal/mcpserver"
	"github.com/alexjbarnes/marginalio/internal/metadata"
	"github.com/alexjbarnes/marginalio/internal/models"
	"github.com/alexjbarnes/marginalio/internal/remote"
	"github.com/alexjbarnes/marginalio/internal/server"
	"github.com/alexjbarnes/marginalio/internal/store"
	"github.com/alexjbarnes/marginalio/internal/syncer"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// device is one signed-in installation: its own database, sync engine
// and library, talking to the shared backend.
type device struct {
	Store  *store.Store
	Engine *syncer.Engine
	Lib    *library.Library
}

func newDevice(t *testing.T, backendURL string, extractor library.Extractor) *device {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = st.EnsureDefaultLists(time.Now().UTC())
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	client := remote.NewClient(backendURL, testAnonKey, nil)

	eng := syncer.New(syncer.Config{Store: st, Remote: client, Logger: logger})

	cfg := library.Config{Store: st, Sync: eng, Logger: logger}
	if extractor != nil {
		cfg.Extractor = extractor
	}

	lib := library.New(cfg)
	t.Cleanup(lib.Close)

	sess, err := client.SignIn(t.Context(), testEmail, testPassword)
	require.NoError(t, err)

	_, err = lib.Connect(t.Context(), *sess)
	require.NoError(t, err)

	return &device{Store: st, Engine: eng, Lib: lib}
}

// article returns the local copy of url, failing the test if it is
// missing.
func (d *device) article(t *testing.T, url string) *models.Article {
	t.Helper()

	a, err := d.Store.ArticleByURL(url)
	require.NoError(t, err)
	require.NotNil(t, a, "article %s not on device", url)

	return a
}

// extractorServer serves the metadata extraction endpoint with a fixed
// payload derived from the requested URL.
func extractorServer(t *testing.T) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL string `json:"url"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "bad request"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"title":         "Title of " + req.URL,
				"publication":   metadata.Domain(req.URL),
				"summary":       "A summary.",
				"readingTime":   11,
				"suggestedTags": []string{"longread"},
			},
		})
	}))
	t.Cleanup(ts.Close)

	return ts
}

// mcpHarness serves the MCP tools for one library behind API key auth.
type mcpHarness struct {
	URL    string
	Key    string
	Client *http.Client
}

func newMCPHarness(t *testing.T, lib *library.Library) *mcpHarness {
	t.Helper()

	key := auth.APIKeyPrefix + auth.RandomHex(16)
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "marginalio-e2e", Version: "test"},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, lib)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	ts := httptest.NewServer(server.NewMux(server.MuxConfig{
		Keys:       auth.NewKeys(map[string]string{"agent": string(hash)}),
		MCPHandler: mcpHandler,
		Logger:     logger,
	}))
	t.Cleanup(ts.Close)

	return &mcpHarness{URL: ts.URL, Key: key, Client: ts.Client()}
}

// mcpSession creates an MCP client session authenticated with the given
// Bearer token. Uses the MCP SDK's StreamableClientTransport with a
// custom HTTP RoundTripper that injects the Authorization header.
func (h *mcpHarness) mcpSession(t *testing.T, token string) *mcp.ClientSession {
	t.Helper()

	transport := &mcp.StreamableClientTransport{
		Endpoint: h.URL + "/mcp",
		HTTPClient: &http.Client{
			Transport: &bearerTransport{
				token: token,
				base:  h.Client.Transport,
			},
		},
		DisableStandaloneSSE: true,
	}

	client := mcp.NewClient(
		&mcp.Implementation{Name: "e2e-test-client", Version: "test"},
		nil,
	)

	session, err := client.Connect(t.Context(), transport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

// bearerTransport is an http.RoundTripper that injects a Bearer token
// into every request's Authorization header.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (bt *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+bt.token)

	return bt.base.RoundTrip(req)
}

// extractTextContent pulls the text from the first TextContent in a
// CallToolResult. MCP tools return JSON-serialized results as TextContent.
func extractTextContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()

	require.NotEmpty(t, result.Content, "tool result has no content")

	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}

	t.Fatal("no TextContent found in tool result")

	return ""
}
