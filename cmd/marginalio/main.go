package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexjbarnes/marginalio/internal/auth"
	"github.com/alexjbarnes/marginalio/internal/config"
	"github.com/alexjbarnes/marginalio/internal/library"
	"github.com/alexjbarnes/marginalio/internal/logging"
	"github.com/alexjbarnes/marginalio/internal/mcpserver"
	"github.com/alexjbarnes/marginalio/internal/metadata"
	"github.com/alexjbarnes/marginalio/internal/remote"
	"github.com/alexjbarnes/marginalio/internal/server"
	"github.com/alexjbarnes/marginalio/internal/store"
	"github.com/alexjbarnes/marginalio/internal/syncer"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

func main() {
	// Handle hash-key subcommand before config loading.
	if len(os.Args) > 1 && os.Args[1] == "hash-key" {
		hashKey()
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// hashKey prints a fresh API key and the bcrypt hash to put in
// MCP_API_KEYS.
func hashKey() {
	key, hash, err := auth.GenerateAPIKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintln(os.Stderr, "API key (give this to the MCP client):")
	fmt.Println(key)
	fmt.Fprintln(os.Stderr, "Hash (add as user:hash to MCP_API_KEYS):")
	fmt.Println(hash)
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	logger.Info("marginalio starting",
		slog.String("version", Version),
		slog.Bool("sync", cfg.EnableSync),
		slog.Bool("mcp", cfg.EnableMCP),
		slog.String("db", cfg.DBPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if created, err := st.EnsureDefaultLists(time.Now().UTC()); err != nil {
		return fmt.Errorf("creating default lists: %w", err)
	} else if created {
		logger.Info("created default lists")
	}

	libCfg := library.Config{
		Store:  st,
		Logger: logging.Component(logger, "library"),
	}

	if cfg.MetadataURL != "" {
		libCfg.Extractor = metadata.NewClient(cfg.MetadataURL, cfg.MetadataTimeout)
	}

	var client *remote.Client

	if cfg.EnableSync {
		client = remote.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, nil)
		syncLogger := logging.Component(logger, "sync")

		libCfg.Sync = syncer.New(syncer.Config{
			Store:       st,
			Remote:      client,
			Subscribe:   syncer.ClientSubscriber(client),
			DedupWindow: cfg.RealtimeDebounce,
			Logger:      syncLogger,
			OnStatus: func(s remote.Status) {
				syncLogger.Info("realtime status", slog.String("status", string(s)))
			},
		})
	}

	lib := library.New(libCfg)
	defer lib.Close()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.EnableSync {
		g.Go(func() error {
			return runSync(gctx, cfg, client, st, lib, logger)
		})
	}

	if cfg.EnableMCP {
		g.Go(func() error {
			return runMCP(gctx, cfg, lib, logger)
		})
	}

	return g.Wait()
}

// runSync signs in, runs the initial full sync and keeps the realtime
// session open until ctx is cancelled.
func runSync(ctx context.Context, cfg *config.Config, client *remote.Client, st *store.Store, lib *library.Library, logger *slog.Logger) error {
	sess, err := authenticate(ctx, client, cfg, st, logger)
	if err != nil {
		return err
	}

	res, err := lib.Connect(ctx, *sess)

	switch {
	case errors.Is(err, context.Canceled):
		lib.Disconnect()
		return nil
	case err != nil:
		// Local edits keep working offline; a later library_sync call
		// can retry.
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	default:
		logger.Info("initial sync complete",
			slog.Int("articles_uploaded", res.ArticlesUploaded),
			slog.Int("articles_inserted", res.ArticlesInserted),
			slog.Int("articles_updated", res.ArticlesUpdated),
			slog.Int("lists_uploaded", res.ListsUploaded),
			slog.Int("lists_inserted", res.ListsInserted),
			slog.Int("memberships_uploaded", res.MembershipsUploaded),
			slog.Int("memberships_inserted", res.MembershipsInserted),
			slog.Int("failures", res.Failures),
			slog.Duration("duration", res.Duration),
		)
	}

	<-ctx.Done()

	logger.Info("stopping sync")
	lib.Disconnect()

	return nil
}

// authenticate reuses the cached access token when the backend still
// accepts it, and otherwise signs in with the configured credentials.
func authenticate(ctx context.Context, client *remote.Client, cfg *config.Config, st *store.Store, logger *slog.Logger) (*remote.Session, error) {
	if token := st.Token(); token != "" {
		logger.Debug("trying cached token")
		client.UseToken(token)

		u, err := client.User(ctx)
		if err == nil {
			logger.Info("authenticated with cached token", slog.String("email", u.Email))
			return &remote.Session{UserID: u.ID, Email: u.Email, AccessToken: token}, nil
		}

		logger.Debug("cached token rejected, signing in fresh", slog.String("error", err.Error()))
		client.UseToken("")
	}

	if !cfg.HasCredentials() {
		return nil, fmt.Errorf("no valid cached token: set MARGINALIO_EMAIL and MARGINALIO_PASSWORD")
	}

	logger.Info("signing in", slog.String("email", cfg.Email))

	sess, err := client.SignIn(ctx, cfg.Email, cfg.Password)
	if err != nil {
		return nil, err
	}

	if err := st.SetToken(sess.AccessToken); err != nil {
		logger.Warn("failed to save token", slog.String("error", err.Error()))
	}

	return sess, nil
}

// runMCP starts the MCP HTTP server.
func runMCP(ctx context.Context, cfg *config.Config, lib *library.Library, logger *slog.Logger) error {
	entries, err := cfg.ParseMCPAPIKeys()
	if err != nil {
		return fmt.Errorf("parsing MCP API keys: %w", err)
	}

	hashes := make(map[string]string, len(entries))
	for _, e := range entries {
		hashes[e.UserID] = e.Hash
	}

	mcpLogger := logging.Component(logger, "mcp")

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "marginalio", Version: Version},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, lib)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	srv := &http.Server{
		Addr: cfg.MCPListenAddr,
		Handler: server.NewMux(server.MuxConfig{
			Keys:       auth.NewKeys(hashes),
			MCPHandler: mcpHandler,
			Logger:     mcpLogger,
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	mcpLogger.Info("starting MCP server",
		slog.String("listen", cfg.MCPListenAddr),
		slog.Int("users", len(hashes)),
	)

	// Shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		mcpLogger.Info("shutting down MCP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}
