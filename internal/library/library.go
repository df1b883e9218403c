// Package library is the application-facing API over the local store.
// Every mutator writes the store first and returns; when a sync session
// is active the change is then pushed to the backend in the background.
// A failed push is logged and never undoes the local write.
package library

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alexjbarnes/marginalio/internal/live"
	"github.com/alexjbarnes/marginalio/internal/metadata"
	"github.com/alexjbarnes/marginalio/internal/models"
	"github.com/alexjbarnes/marginalio/internal/remote"
	"github.com/alexjbarnes/marginalio/internal/store"
	"github.com/alexjbarnes/marginalio/internal/syncer"
)

// Syncer is the part of the sync engine the library drives.
type Syncer interface {
	Start(ctx context.Context, sess remote.Session) error
	Stop()
	FullSync(ctx context.Context) (syncer.SyncResult, error)
	Session() *remote.Session

	PushArticle(ctx context.Context, id int64) error
	PushArticleDelete(ctx context.Context, cloudID string) error
	PushList(ctx context.Context, id int64) error
	PushListDelete(ctx context.Context, cloudID string) error
	PushMembership(ctx context.Context, articleID, listID int64) error
	PushMembershipDelete(ctx context.Context, articleCloudID, listCloudID string) error
}

var _ Syncer = (*syncer.Engine)(nil)

// Extractor fetches article metadata for a URL.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (*metadata.Metadata, error)
}

// Config holds the library's collaborators. Sync and Extractor are
// optional.
type Config struct {
	Store     *store.Store
	Sync      Syncer
	Extractor Extractor
	Logger    *slog.Logger
	Now       func() time.Time

	// RetryDelay is the wait before the first retry of a push that
	// failed transiently. It doubles on each further attempt. Zero uses
	// DefaultRetryDelay.
	RetryDelay time.Duration
}

const (
	// DefaultRetryDelay is the initial backoff for transient push
	// failures.
	DefaultRetryDelay = time.Second

	// pushAttempts bounds how often one push is tried.
	pushAttempts = 3
)

// Library is safe for concurrent use.
type Library struct {
	store   *store.Store
	sync    Syncer
	extract Extractor
	logger  *slog.Logger
	now     func() time.Time
	hub     *live.Hub

	retryDelay time.Duration

	// ctx bounds background pushes; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Pushes run one at a time in the order they were queued, so two
	// edits of the same record reach the backend in order.
	pushMu   sync.Mutex
	pending  []pushJob
	draining bool
}

type pushJob struct {
	op    string
	fn    func(ctx context.Context, s Syncer) error
	attrs []slog.Attr
}

// New creates a library over cfg.Store.
func New(cfg Config) *Library {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Library{
		store:   cfg.Store,
		sync:    cfg.Sync,
		extract: cfg.Extractor,
		logger:  logger,
		now:     now,
		hub:     live.NewHub(cfg.Store, logger),
		ctx:     ctx,

		retryDelay: retryDelay,
		cancel:  cancel,
	}
}

// Connect activates sess on the sync engine and runs a full sync.
func (l *Library) Connect(ctx context.Context, sess remote.Session) (syncer.SyncResult, error) {
	if l.sync == nil {
		return syncer.SyncResult{}, fmt.Errorf("connecting: sync is not configured")
	}

	if err := l.sync.Start(ctx, sess); err != nil {
		return syncer.SyncResult{}, err
	}

	return l.sync.FullSync(ctx)
}

// Sync runs a full sync for the active session.
func (l *Library) Sync(ctx context.Context) (syncer.SyncResult, error) {
	if l.sync == nil {
		return syncer.SyncResult{}, fmt.Errorf("syncing: sync is not configured")
	}

	return l.sync.FullSync(ctx)
}

// Disconnect waits for queued pushes and ends the sync session.
func (l *Library) Disconnect() {
	l.Flush()

	if l.sync != nil {
		l.sync.Stop()
	}
}

// Flush blocks until every queued push has finished.
func (l *Library) Flush() {
	l.wg.Wait()
}

// Close flushes pending pushes, then closes all live subscriptions. The
// store is owned by the caller and stays open.
func (l *Library) Close() {
	l.Flush()
	l.cancel()
	l.hub.Close()
}

// connected reports whether pushes should be sent.
func (l *Library) connected() bool {
	return l.sync != nil && l.sync.Session() != nil
}

// push queues fn to run in the background when a session is active.
func (l *Library) push(op string, fn func(ctx context.Context, s Syncer) error, attrs ...slog.Attr) {
	if !l.connected() {
		return
	}

	l.wg.Add(1)

	l.pushMu.Lock()
	l.pending = append(l.pending, pushJob{op: op, fn: fn, attrs: attrs})

	start := !l.draining
	l.draining = true
	l.pushMu.Unlock()

	if start {
		go l.drain()
	}
}

// drain runs queued pushes until the queue is empty.
func (l *Library) drain() {
	for {
		l.pushMu.Lock()
		if len(l.pending) == 0 {
			l.draining = false
			l.pushMu.Unlock()

			return
		}

		job := l.pending[0]
		l.pending = l.pending[1:]
		l.pushMu.Unlock()

		l.run(job)
		l.wg.Done()
	}
}

// run executes one push. Transient failures are retried with a
// doubling delay until pushAttempts is reached or the library closes.
func (l *Library) run(job pushJob) {
	delay := l.retryDelay

	var err error

	for attempt := 1; ; attempt++ {
		err = job.fn(l.ctx, l.sync)
		if err == nil || !remote.IsTransient(err) || attempt == pushAttempts {
			break
		}

		l.logger.Debug("retrying remote push",
			slog.String("op", job.op),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-l.ctx.Done():
			timer.Stop()
		case <-timer.C:
		}

		if l.ctx.Err() != nil {
			break
		}

		delay *= 2
	}

	if err == nil {
		return
	}

	args := make([]any, 0, len(job.attrs)+2)
	args = append(args, slog.String("op", job.op))

	for _, a := range job.attrs {
		args = append(args, a)
	}

	args = append(args, slog.String("error", err.Error()))
	l.logger.Warn("remote push failed", args...)
}

// touch returns a modification time that is strictly after prev so
// last-write-wins comparisons see every local edit.
func (l *Library) touch(prev time.Time) time.Time {
	now := models.StoredTime(l.now())
	if !now.After(prev) {
		return models.StoredTime(prev).Add(models.TimePrecision)
	}

	return now
}
