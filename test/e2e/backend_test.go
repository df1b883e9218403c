package e2e_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/alexjbarnes/marginalio/internal/remote"
)

const (
	testAnonKey  = "anon-test-key"
	testEmail    = "reader@example.com"
	testPassword = "correct-horse"
	testUserID   = "0b7f6c1e-user"
	testToken    = "access-token-1"
)

// backend is an in-memory stand-in for the auth and PostgREST endpoints
// the remote client talks to. It understands only the filters the client
// sends.
type backend struct {
	mu          sync.Mutex
	articles    []remote.ArticleRow
	lists       []remote.ListRow
	memberships []remote.MembershipRow
}

func newBackend(t *testing.T) (*backend, *httptest.Server) {
	t.Helper()

	b := &backend{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", b.handleToken)
	mux.HandleFunc("GET /auth/v1/user", b.authed(b.handleUser))
	mux.HandleFunc("/rest/v1/articles", b.authed(b.handleArticles))
	mux.HandleFunc("/rest/v1/lists", b.authed(b.handleLists))
	mux.HandleFunc("/rest/v1/article_lists", b.authed(b.handleMemberships))

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return b, ts
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (b *backend) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != testAnonKey || r.Header.Get("Authorization") != "Bearer "+testToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "JWT expired"})
			return
		}

		next(w, r)
	}
}

func (b *backend) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email != testEmail || req.Password != testPassword {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_description": "Invalid login credentials"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": testToken,
		"expires_in":   3600,
		"user":         map[string]string{"id": testUserID, "email": testEmail},
	})
}

func (b *backend) handleUser(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"id": testUserID, "email": testEmail})
}

// eq extracts the value of an eq. filter.
func eq(r *http.Request, column string) string {
	return strings.TrimPrefix(r.URL.Query().Get(column), "eq.")
}

func (b *backend) handleArticles(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		var row remote.ArticleRow
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}

		i := slices.IndexFunc(b.articles, func(a remote.ArticleRow) bool { return a.ID == row.ID })
		if i >= 0 {
			b.articles[i] = row
		} else {
			b.articles = append(b.articles, row)
		}

		writeJSON(w, http.StatusCreated, []remote.ArticleRow{row})
	case http.MethodDelete:
		id := eq(r, "id")
		removed := b.removeArticles(func(a remote.ArticleRow) bool { return a.ID == id })
		writeJSON(w, http.StatusOK, removed)
	case http.MethodGet:
		user := eq(r, "user_id")

		var out []remote.ArticleRow
		for _, a := range b.articles {
			if a.UserID == user {
				out = append(out, a)
			}
		}

		slices.SortStableFunc(out, func(x, y remote.ArticleRow) int { return y.CreatedAt.Compare(x.CreatedAt.Time) })

		if r.URL.Query().Get("select") == "id" {
			ids := make([]map[string]string, 0, len(out))
			for _, a := range out {
				ids = append(ids, map[string]string{"id": a.ID})
			}

			writeJSON(w, http.StatusOK, ids)

			return
		}

		writeJSON(w, http.StatusOK, nonNil(out))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (b *backend) removeArticles(match func(remote.ArticleRow) bool) []remote.ArticleRow {
	var removed []remote.ArticleRow

	b.articles = slices.DeleteFunc(b.articles, func(a remote.ArticleRow) bool {
		if match(a) {
			removed = append(removed, a)
			return true
		}

		return false
	})

	for _, a := range removed {
		b.memberships = slices.DeleteFunc(b.memberships, func(m remote.MembershipRow) bool { return m.ArticleID == a.ID })
	}

	return nonNil(removed)
}

func (b *backend) handleLists(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		var row remote.ListRow
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}

		match := func(l remote.ListRow) bool { return l.ID == row.ID }
		if r.URL.Query().Get("on_conflict") == "user_id,name" {
			match = func(l remote.ListRow) bool { return l.UserID == row.UserID && l.Name == row.Name }
		}

		if i := slices.IndexFunc(b.lists, match); i >= 0 {
			row.ID = b.lists[i].ID
			row.CreatedAt = b.lists[i].CreatedAt
			b.lists[i] = row
		} else {
			b.lists = append(b.lists, row)
		}

		writeJSON(w, http.StatusCreated, []remote.ListRow{row})
	case http.MethodDelete:
		id := eq(r, "id")

		var removed []remote.ListRow

		b.lists = slices.DeleteFunc(b.lists, func(l remote.ListRow) bool {
			if l.ID == id {
				removed = append(removed, l)
				return true
			}

			return false
		})

		b.memberships = slices.DeleteFunc(b.memberships, func(m remote.MembershipRow) bool { return m.ListID == id })

		writeJSON(w, http.StatusOK, nonNil(removed))
	case http.MethodGet:
		user := eq(r, "user_id")

		var out []remote.ListRow
		for _, l := range b.lists {
			if l.UserID == user {
				out = append(out, l)
			}
		}

		slices.SortStableFunc(out, func(x, y remote.ListRow) int { return x.CreatedAt.Compare(y.CreatedAt.Time) })

		writeJSON(w, http.StatusOK, nonNil(out))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (b *backend) handleMemberships(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		var row remote.MembershipRow
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}

		if !slices.ContainsFunc(b.memberships, func(m remote.MembershipRow) bool {
			return m.ArticleID == row.ArticleID && m.ListID == row.ListID
		}) {
			b.memberships = append(b.memberships, row)
		}

		writeJSON(w, http.StatusCreated, []remote.MembershipRow{row})
	case http.MethodDelete:
		article, list := eq(r, "article_id"), eq(r, "list_id")

		var removed []remote.MembershipRow

		b.memberships = slices.DeleteFunc(b.memberships, func(m remote.MembershipRow) bool {
			if m.ArticleID == article && m.ListID == list {
				removed = append(removed, m)
				return true
			}

			return false
		})

		writeJSON(w, http.StatusOK, nonNil(removed))
	case http.MethodGet:
		in := strings.TrimSuffix(strings.TrimPrefix(r.URL.Query().Get("article_id"), "in.("), ")")
		ids := strings.Split(in, ",")

		var out []remote.MembershipRow
		for _, m := range b.memberships {
			if slices.Contains(ids, m.ArticleID) {
				out = append(out, m)
			}
		}

		writeJSON(w, http.StatusOK, nonNil(out))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (b *backend) counts() (articles, lists, memberships int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.articles), len(b.lists), len(b.memberships)
}

func (b *backend) article(url string) (remote.ArticleRow, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, a := range b.articles {
		if a.URL == url {
			return a, true
		}
	}

	return remote.ArticleRow{}, false
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}
