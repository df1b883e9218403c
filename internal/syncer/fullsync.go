package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/alexjbarnes/marginalio/internal/errors"
	"github.com/alexjbarnes/marginalio/internal/models"
	"github.com/alexjbarnes/marginalio/internal/remote"
	"github.com/alexjbarnes/marginalio/internal/store"
)

// SyncResult summarises one full sync.
type SyncResult struct {
	// Skipped is set when another full sync was already running.
	Skipped bool

	ArticlesUploaded    int
	ListsUploaded       int
	MembershipsUploaded int

	ArticlesInserted    int
	ArticlesUpdated     int
	ListsInserted       int
	ListsUpdated        int
	MembershipsInserted int

	// Failures counts records that could not be uploaded or applied.
	Failures int

	Duration time.Duration
}

// snapshot indexes remote rows by natural key and by id.
type snapshot struct {
	articlesByURL map[string]*remote.ArticleRow
	articlesByID  map[string]*remote.ArticleRow
	listsByName   map[string]*remote.ListRow
	listsByID     map[string]*remote.ListRow
}

func newSnapshot(articles []remote.ArticleRow, lists []remote.ListRow) snapshot {
	s := snapshot{
		articlesByURL: make(map[string]*remote.ArticleRow, len(articles)),
		articlesByID:  make(map[string]*remote.ArticleRow, len(articles)),
		listsByName:   make(map[string]*remote.ListRow, len(lists)),
		listsByID:     make(map[string]*remote.ListRow, len(lists)),
	}

	for i := range articles {
		r := &articles[i]
		s.articlesByURL[r.URL] = r
		s.articlesByID[r.ID] = r
	}

	for i := range lists {
		r := &lists[i]
		s.listsByName[store.NameKey(r.Name)] = r
		s.listsByID[r.ID] = r
	}

	return s
}

func (s snapshot) article(a models.Article) *remote.ArticleRow {
	if r, ok := s.articlesByURL[a.URL]; ok {
		return r
	}

	if a.CloudID != "" {
		return s.articlesByID[a.CloudID]
	}

	return nil
}

func (s snapshot) list(l models.List) *remote.ListRow {
	if r, ok := s.listsByName[store.NameKey(l.Name)]; ok {
		return r
	}

	if l.CloudID != "" {
		return s.listsByID[l.CloudID]
	}

	return nil
}

// FullSync runs one bidirectional pass for the active session. It
// returns at once with Skipped set when a pass is already running.
// Individual record failures are logged and counted; failure of a whole
// listing request aborts the pass with an error.
func (e *Engine) FullSync(ctx context.Context) (SyncResult, error) {
	userID, ok := e.userID()
	if !ok {
		return SyncResult{}, fmt.Errorf("full sync: %w", apperrors.ErrNoSession)
	}

	if !e.syncing.CompareAndSwap(false, true) {
		e.logger.Debug("full sync already running")
		return SyncResult{Skipped: true}, nil
	}
	defer e.syncing.Store(false)

	start := e.now()
	e.logger.Info("full sync started")

	var res SyncResult

	if err := e.fullSync(ctx, userID, &res); err != nil {
		e.logger.Error("full sync failed", slog.String("error", err.Error()))
		return res, err
	}

	res.Duration = e.now().Sub(start)

	e.logger.Info("full sync complete",
		slog.Int("articles_uploaded", res.ArticlesUploaded),
		slog.Int("lists_uploaded", res.ListsUploaded),
		slog.Int("memberships_uploaded", res.MembershipsUploaded),
		slog.Int("articles_inserted", res.ArticlesInserted),
		slog.Int("articles_updated", res.ArticlesUpdated),
		slog.Int("lists_inserted", res.ListsInserted),
		slog.Int("memberships_inserted", res.MembershipsInserted),
		slog.Int("failures", res.Failures),
		slog.Duration("duration", res.Duration),
	)

	return res, nil
}

func (e *Engine) fullSync(ctx context.Context, userID string, res *SyncResult) error {
	before, err := e.remoteSnapshot(ctx, userID)
	if err != nil {
		return err
	}

	if err := e.uploadArticles(ctx, userID, before, res); err != nil {
		return err
	}

	if err := e.uploadLists(ctx, userID, before, res); err != nil {
		return err
	}

	if err := e.uploadMemberships(ctx, res); err != nil {
		return err
	}

	articles, err := e.remote.ListArticles(ctx, userID)
	if err != nil {
		return fmt.Errorf("downloading articles: %w", err)
	}

	if err := e.downloadArticles(articles, res); err != nil {
		return err
	}

	lists, err := e.remote.ListLists(ctx, userID)
	if err != nil {
		return fmt.Errorf("downloading lists: %w", err)
	}

	if err := e.downloadLists(lists, res); err != nil {
		return err
	}

	memberships, err := e.remote.ListMemberships(ctx, userID)
	if err != nil {
		return fmt.Errorf("downloading memberships: %w", err)
	}

	return e.downloadMemberships(memberships, res)
}

func (e *Engine) remoteSnapshot(ctx context.Context, userID string) (snapshot, error) {
	articles, err := e.remote.ListArticles(ctx, userID)
	if err != nil {
		return snapshot{}, fmt.Errorf("listing remote articles: %w", err)
	}

	lists, err := e.remote.ListLists(ctx, userID)
	if err != nil {
		return snapshot{}, fmt.Errorf("listing remote lists: %w", err)
	}

	return newSnapshot(articles, lists), nil
}

// uploadArticles pushes every local article the remote does not already
// hold at the same or a newer version. A local article that matches a
// remote row but has no cloud id adopts the row id.
func (e *Engine) uploadArticles(ctx context.Context, userID string, snap snapshot, res *SyncResult) error {
	locals, err := e.store.Articles()
	if err != nil {
		return fmt.Errorf("reading local articles: %w", err)
	}

	for _, a := range locals {
		if err := ctx.Err(); err != nil {
			return err
		}

		match := snap.article(a)
		if match != nil && !match.UpdatedAt.Before(models.StoredTime(a.UpdatedAt)) {
			continue
		}

		hadCloudID := a.CloudID != ""
		if !hadCloudID && match != nil {
			a.CloudID = match.ID
		}

		row, err := e.remote.UpsertArticle(ctx, a, userID)
		if err != nil {
			e.recordFailure(res, "uploading article", err, slog.Int64("article_id", a.ID))
			continue
		}

		res.ArticlesUploaded++

		if !hadCloudID {
			if err := e.store.SetArticleCloudID(a.ID, row.ID); err != nil {
				e.recordFailure(res, "saving article cloud id", err, slog.Int64("article_id", a.ID))
			}
		}
	}

	return nil
}

func (e *Engine) uploadLists(ctx context.Context, userID string, snap snapshot, res *SyncResult) error {
	locals, err := e.store.Lists()
	if err != nil {
		return fmt.Errorf("reading local lists: %w", err)
	}

	for _, l := range locals {
		if err := ctx.Err(); err != nil {
			return err
		}

		if l.IsDefault {
			continue
		}

		match := snap.list(l)

		hadCloudID := l.CloudID != ""
		if !hadCloudID && match != nil {
			l.CloudID = match.ID
		}

		if match != nil && match.ID == l.CloudID && store.NameKey(match.Name) == l.Name && match.IsCurrentlyReading == l.IsCurrentlyReading {
			if !hadCloudID {
				if err := e.store.SetListCloudID(l.ID, match.ID); err != nil {
					e.recordFailure(res, "saving list cloud id", err, slog.Int64("list_id", l.ID))
				}
			}

			continue
		}

		row, err := e.remote.UpsertList(ctx, l, userID)
		if err != nil {
			e.recordFailure(res, "uploading list", err, slog.Int64("list_id", l.ID))
			continue
		}

		res.ListsUploaded++

		if !hadCloudID && row != nil {
			if err := e.store.SetListCloudID(l.ID, row.ID); err != nil {
				e.recordFailure(res, "saving list cloud id", err, slog.Int64("list_id", l.ID))
			}
		}
	}

	return nil
}

// uploadMemberships pushes memberships whose article and list both have
// cloud ids. The rest are picked up by a later pass.
func (e *Engine) uploadMemberships(ctx context.Context, res *SyncResult) error {
	memberships, err := e.store.Memberships()
	if err != nil {
		return fmt.Errorf("reading local memberships: %w", err)
	}

	if len(memberships) == 0 {
		return nil
	}

	articleCloud, listCloud, err := e.cloudIDs()
	if err != nil {
		return err
	}

	for _, m := range memberships {
		if err := ctx.Err(); err != nil {
			return err
		}

		aid, lid := articleCloud[m.ArticleID], listCloud[m.ListID]
		if aid == "" || lid == "" {
			continue
		}

		if _, err := e.remote.UpsertMembership(ctx, aid, lid); err != nil {
			e.recordFailure(res, "uploading membership", err,
				slog.Int64("article_id", m.ArticleID),
				slog.Int64("list_id", m.ListID),
			)

			continue
		}

		res.MembershipsUploaded++
	}

	return nil
}

// cloudIDs maps local ids to cloud ids for records that have one.
// Default lists are never included.
func (e *Engine) cloudIDs() (map[int64]string, map[int64]string, error) {
	articles, err := e.store.Articles()
	if err != nil {
		return nil, nil, fmt.Errorf("reading local articles: %w", err)
	}

	lists, err := e.store.Lists()
	if err != nil {
		return nil, nil, fmt.Errorf("reading local lists: %w", err)
	}

	articleCloud := make(map[int64]string, len(articles))
	for _, a := range articles {
		if a.CloudID != "" {
			articleCloud[a.ID] = a.CloudID
		}
	}

	listCloud := make(map[int64]string, len(lists))
	for _, l := range lists {
		if l.CloudID != "" && !l.IsDefault {
			listCloud[l.ID] = l.CloudID
		}
	}

	return articleCloud, listCloud, nil
}

// downloadArticles merges remote article rows into the store. Matching
// is by url, then cloud id. A matched article is overwritten only when
// the row is strictly newer; otherwise a missing cloud id is backfilled.
func (e *Engine) downloadArticles(rows []remote.ArticleRow, res *SyncResult) error {
	for _, row := range rows {
		if row.URL == "" || row.ID == "" {
			e.recordFailure(res, "skipping malformed remote article", errors.New("missing url or id"), slog.String("cloud_id", row.ID))
			continue
		}

		local, err := e.matchArticle(row)
		if err != nil {
			return err
		}

		if local == nil {
			if _, err := e.store.PutArticle(row.Article()); err != nil {
				e.recordFailure(res, "inserting remote article", err, slog.String("cloud_id", row.ID))
				continue
			}

			res.ArticlesInserted++

			continue
		}

		if row.UpdatedAt.After(local.UpdatedAt) {
			_, err := e.store.UpdateArticle(local.ID, func(a *models.Article) error {
				overwriteArticle(a, row)
				return nil
			})
			if err != nil {
				e.recordFailure(res, "updating local article", err, slog.Int64("article_id", local.ID))
				continue
			}

			res.ArticlesUpdated++

			continue
		}

		if local.CloudID == "" {
			if err := e.store.SetArticleCloudID(local.ID, row.ID); err != nil {
				e.recordFailure(res, "backfilling article cloud id", err, slog.Int64("article_id", local.ID))
			}
		}
	}

	return nil
}

func (e *Engine) matchArticle(row remote.ArticleRow) (*models.Article, error) {
	local, err := e.store.ArticleByURL(row.URL)
	if err != nil {
		return nil, fmt.Errorf("matching article by url: %w", err)
	}

	if local != nil {
		return local, nil
	}

	local, err = e.store.ArticleByCloudID(row.ID)
	if err != nil {
		return nil, fmt.Errorf("matching article by cloud id: %w", err)
	}

	return local, nil
}

// downloadLists merges remote list rows by name, then cloud id.
func (e *Engine) downloadLists(rows []remote.ListRow, res *SyncResult) error {
	for _, row := range rows {
		if row.ID == "" || store.NameKey(row.Name) == "" || row.IsDefault {
			continue
		}

		local, err := e.store.ListByName(row.Name)
		if err != nil {
			return fmt.Errorf("matching list by name: %w", err)
		}

		if local == nil {
			local, err = e.store.ListByCloudID(row.ID)
			if err != nil {
				return fmt.Errorf("matching list by cloud id: %w", err)
			}
		}

		if local == nil {
			if _, err := e.store.PutList(row.List()); err != nil {
				e.recordFailure(res, "inserting remote list", err, slog.String("cloud_id", row.ID))
				continue
			}

			res.ListsInserted++

			continue
		}

		if local.IsDefault {
			continue
		}

		want := mergeListRow(*local, row)
		if want == *local {
			continue
		}

		_, err = e.store.UpdateList(local.ID, func(l *models.List) error {
			*l = mergeListRow(*l, row)
			return nil
		})
		if err != nil {
			e.recordFailure(res, "updating local list", err, slog.Int64("list_id", local.ID))
			continue
		}

		res.ListsUpdated++
	}

	return nil
}

func (e *Engine) downloadMemberships(rows []remote.MembershipRow, res *SyncResult) error {
	for _, row := range rows {
		articleID, listID, ok, err := e.resolveMembership(row)
		if err != nil {
			return err
		}

		if !ok {
			continue
		}

		existing, err := e.store.Membership(articleID, listID)
		if err != nil {
			return fmt.Errorf("reading membership: %w", err)
		}

		if existing != nil {
			continue
		}

		if _, err := e.store.PutMembership(articleID, listID); err != nil {
			if errors.Is(err, apperrors.ErrDuplicateMembership) {
				continue
			}

			e.recordFailure(res, "inserting remote membership", err,
				slog.String("article_cloud_id", row.ArticleID),
				slog.String("list_cloud_id", row.ListID),
			)

			continue
		}

		res.MembershipsInserted++
	}

	return nil
}

// resolveMembership maps both remote ids of row to local ids. ok is
// false when either side is missing locally or the list is a default.
func (e *Engine) resolveMembership(row remote.MembershipRow) (int64, int64, bool, error) {
	if row.ArticleID == "" || row.ListID == "" {
		return 0, 0, false, nil
	}

	a, err := e.store.ArticleByCloudID(row.ArticleID)
	if err != nil {
		return 0, 0, false, fmt.Errorf("resolving membership article: %w", err)
	}

	l, err := e.store.ListByCloudID(row.ListID)
	if err != nil {
		return 0, 0, false, fmt.Errorf("resolving membership list: %w", err)
	}

	if a == nil || l == nil || l.IsDefault {
		return 0, 0, false, nil
	}

	return a.ID, l.ID, true, nil
}

// mergeListRow applies a remote list row to l. The name follows the row
// only when l is already mapped to it; a list matched by name keeps its
// own cloud id.
func mergeListRow(l models.List, row remote.ListRow) models.List {
	if l.CloudID == "" {
		l.CloudID = row.ID
	}

	if l.CloudID == row.ID {
		l.Name = store.NameKey(row.Name)
	}

	l.IsCurrentlyReading = row.IsCurrentlyReading

	return l
}

// overwriteArticle copies the mutable fields of row onto a. The url and
// local id are kept; a missing cloud id is backfilled.
func overwriteArticle(a *models.Article, row remote.ArticleRow) {
	incoming := row.Article()

	if a.CloudID == "" {
		a.CloudID = row.ID
	}

	a.Title = incoming.Title
	a.Publication = incoming.Publication
	a.Summary = incoming.Summary
	a.ImageURL = incoming.ImageURL
	a.FaviconURL = incoming.FaviconURL
	a.ReadingTime = incoming.ReadingTime
	a.Tags = incoming.Tags
	a.IsRead = incoming.IsRead
	a.IsStarred = incoming.IsStarred
	a.UpdatedAt = incoming.UpdatedAt
}

// sameArticleContent reports whether applying row to a would change
// nothing.
func sameArticleContent(a models.Article, row remote.ArticleRow) bool {
	next := a
	next.Tags = append([]string(nil), a.Tags...)
	overwriteArticle(&next, row)

	if next.CloudID != a.CloudID || !next.UpdatedAt.Equal(a.UpdatedAt) {
		return false
	}

	if len(next.Tags) != len(a.Tags) {
		return false
	}

	for i := range next.Tags {
		if next.Tags[i] != a.Tags[i] {
			return false
		}
	}

	return next.Title == a.Title &&
		next.Publication == a.Publication &&
		next.Summary == a.Summary &&
		next.ImageURL == a.ImageURL &&
		next.FaviconURL == a.FaviconURL &&
		next.ReadingTime == a.ReadingTime &&
		next.IsRead == a.IsRead &&
		next.IsStarred == a.IsStarred
}

func (e *Engine) recordFailure(res *SyncResult, msg string, err error, attrs ...slog.Attr) {
	res.Failures++

	args := make([]any, 0, len(attrs)+1)
	for _, a := range attrs {
		args = append(args, a)
	}

	args = append(args, slog.String("error", err.Error()))
	e.logger.Warn(msg, args...)
}
