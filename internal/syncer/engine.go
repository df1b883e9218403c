// Package syncer reconciles the local store with the remote backend. A
// full sync uploads local records, downloads remote ones and merges by
// natural key with last-write-wins on articles. While a session is
// active, realtime change events are applied to the local store one at
// a time.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/alexjbarnes/marginalio/internal/errors"
	"github.com/alexjbarnes/marginalio/internal/models"
	"github.com/alexjbarnes/marginalio/internal/remote"
	"github.com/alexjbarnes/marginalio/internal/store"
)

// DefaultDedupWindow is how long a realtime event key is remembered.
const DefaultDedupWindow = 500 * time.Millisecond

// dedupTrimThreshold is the cache size above which entries older than
// twice the window are evicted.
const dedupTrimThreshold = 100

// Remote is the subset of the backend client the engine uses.
type Remote interface {
	UpsertArticle(ctx context.Context, a models.Article, userID string) (*remote.ArticleRow, error)
	UpsertList(ctx context.Context, l models.List, userID string) (*remote.ListRow, error)
	UpsertMembership(ctx context.Context, articleCloudID, listCloudID string) (*remote.MembershipRow, error)
	DeleteArticle(ctx context.Context, cloudID string) (bool, error)
	DeleteList(ctx context.Context, cloudID string) (bool, error)
	DeleteMembership(ctx context.Context, articleCloudID, listCloudID string) (bool, error)
	ListArticles(ctx context.Context, userID string) ([]remote.ArticleRow, error)
	ListLists(ctx context.Context, userID string) ([]remote.ListRow, error)
	ListMemberships(ctx context.Context, userID string) ([]remote.MembershipRow, error)
}

// Feed is a live realtime subscription.
type Feed interface {
	Close()
	Status() remote.Status
}

// SubscribeFunc opens a realtime feed.
type SubscribeFunc func(ctx context.Context, cfg remote.RealtimeConfig) (Feed, error)

// ClientSubscriber adapts a remote client to a SubscribeFunc.
func ClientSubscriber(c *remote.Client) SubscribeFunc {
	return func(ctx context.Context, cfg remote.RealtimeConfig) (Feed, error) {
		rt, err := c.Subscribe(ctx, cfg)
		if err != nil {
			return nil, err
		}

		return rt, nil
	}
}

// Config holds the engine's collaborators.
type Config struct {
	Store     *store.Store
	Remote    Remote
	Subscribe SubscribeFunc

	// DedupWindow defaults to DefaultDedupWindow.
	DedupWindow time.Duration

	// OnStatus is called on every session status transition.
	OnStatus func(remote.Status)

	Logger *slog.Logger
	Now    func() time.Time
}

// Engine owns one user session at a time.
type Engine struct {
	store     *store.Store
	remote    Remote
	subscribe SubscribeFunc
	logger    *slog.Logger
	now       func() time.Time
	window    time.Duration
	onStatus  func(remote.Status)

	mu      sync.Mutex
	session *remote.Session
	feed    Feed
	status  remote.Status

	syncing atomic.Bool

	// seen is kept across sessions; entries only age out.
	dedupMu sync.Mutex
	seen    map[string]time.Time
}

// New creates an engine with no active session.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	window := cfg.DedupWindow
	if window <= 0 {
		window = DefaultDedupWindow
	}

	return &Engine{
		store:     cfg.Store,
		remote:    cfg.Remote,
		subscribe: cfg.Subscribe,
		logger:    logger,
		now:       now,
		window:    window,
		onStatus:  cfg.OnStatus,
		status:    remote.StatusDisconnected,
		seen:      make(map[string]time.Time),
	}
}

// Start activates sess and subscribes to its realtime feed. A previous
// session is stopped first. Without a SubscribeFunc the session is
// activated for pushes and full syncs only.
func (e *Engine) Start(ctx context.Context, sess remote.Session) error {
	if sess.UserID == "" {
		return fmt.Errorf("starting sync: %w", apperrors.ErrNoSession)
	}

	e.Stop()

	e.mu.Lock()
	e.session = &sess
	e.mu.Unlock()

	if e.subscribe == nil {
		return nil
	}

	e.setStatus(remote.StatusConnecting)

	userID := sess.UserID

	feed, err := e.subscribe(ctx, remote.RealtimeConfig{
		UserID:   userID,
		Token:    sess.AccessToken,
		Handler:  func(c remote.Change) { e.handleChange(userID, c) },
		OnStatus: e.setStatus,
		Logger:   e.logger,
	})
	if err != nil {
		e.setStatus(remote.StatusError)
		return fmt.Errorf("subscribing to realtime: %w", err)
	}

	e.mu.Lock()
	e.feed = feed
	e.mu.Unlock()

	e.logger.Info("sync session started", slog.String("user_id", userID))

	return nil
}

// Stop closes the realtime feed and clears the session. After Stop
// returns no event handler runs.
func (e *Engine) Stop() {
	e.mu.Lock()
	feed := e.feed
	hadSession := e.session != nil
	e.feed = nil
	e.session = nil
	e.mu.Unlock()

	if feed != nil {
		feed.Close()
	}

	if hadSession {
		e.setStatus(remote.StatusDisconnected)
		e.logger.Info("sync session stopped")
	}
}

// Session returns a copy of the active session, or nil.
func (e *Engine) Session() *remote.Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil
	}

	s := *e.session

	return &s
}

// Status returns the session status.
func (e *Engine) Status() remote.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.status
}

// Syncing reports whether a full sync is running.
func (e *Engine) Syncing() bool {
	return e.syncing.Load()
}

func (e *Engine) setStatus(s remote.Status) {
	e.mu.Lock()
	changed := e.status != s
	e.status = s
	cb := e.onStatus
	e.mu.Unlock()

	if changed {
		e.logger.Debug("sync status", slog.String("status", string(s)))

		if cb != nil {
			cb(s)
		}
	}
}

func (e *Engine) userID() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return "", false
	}

	return e.session.UserID, true
}
