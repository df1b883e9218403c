package syncer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/alexjbarnes/marginalio/internal/errors"
	"github.com/alexjbarnes/marginalio/internal/models"
	"github.com/alexjbarnes/marginalio/internal/remote"
)

// Outcome describes what applying a change event did.
type Outcome int

const (
	// Applied means the local store was written.
	Applied Outcome = iota

	// Duplicate means the same event key was seen within the dedup window.
	Duplicate

	// NotOwned means the row belongs to another user.
	NotOwned

	// Noop means the event was valid but nothing needed to change, or
	// a referenced record does not exist locally.
	Noop
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Duplicate:
		return "duplicate"
	case NotOwned:
		return "not_owned"
	case Noop:
		return "noop"
	default:
		return "unknown"
	}
}

var errMalformedChange = errors.New("malformed change event")

// Apply reconciles one realtime change with the local store for the
// active session. Malformed events return an error and change nothing.
func (e *Engine) Apply(c remote.Change) (Outcome, error) {
	userID, ok := e.userID()
	if !ok {
		return Noop, fmt.Errorf("applying change: %w", apperrors.ErrNoSession)
	}

	return e.apply(userID, c)
}

// handleChange is the realtime feed handler. It never propagates
// errors; dropped events are logged.
func (e *Engine) handleChange(userID string, c remote.Change) {
	outcome, err := e.apply(userID, c)
	if err != nil {
		e.logger.Warn("dropping change event",
			slog.String("table", c.Table),
			slog.String("type", string(c.Type)),
			slog.String("error", err.Error()),
		)

		return
	}

	e.logger.Debug("change event",
		slog.String("table", c.Table),
		slog.String("type", string(c.Type)),
		slog.String("outcome", outcome.String()),
	)
}

func (e *Engine) apply(userID string, c remote.Change) (Outcome, error) {
	switch c.Type {
	case remote.EventInsert, remote.EventUpdate, remote.EventDelete:
	default:
		return Noop, fmt.Errorf("event type %q: %w", c.Type, errMalformedChange)
	}

	switch c.Table {
	case remote.TableArticles:
		return e.applyArticle(userID, c)
	case remote.TableLists:
		return e.applyList(userID, c)
	case remote.TableMemberships:
		return e.applyMembership(c)
	default:
		return Noop, fmt.Errorf("table %q: %w", c.Table, errMalformedChange)
	}
}

// decodeRecords decodes the new and old records of c. An absent, null
// or empty record decodes to the zero value.
func decodeRecords[T any](c remote.Change) (T, T, error) {
	var rec, old T

	if hasRecord(c.Record) {
		if err := json.Unmarshal(c.Record, &rec); err != nil {
			return rec, old, fmt.Errorf("record: %w: %w", errMalformedChange, err)
		}
	}

	if hasRecord(c.OldRecord) {
		if err := json.Unmarshal(c.OldRecord, &old); err != nil {
			return rec, old, fmt.Errorf("old record: %w: %w", errMalformedChange, err)
		}
	}

	return rec, old, nil
}

func hasRecord(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && !bytes.Equal(t, []byte("null")) && !bytes.Equal(t, []byte("{}"))
}

// owned reports whether either side of the change belongs to userID.
func owned(userID, newOwner, oldOwner string) bool {
	return newOwner == userID || oldOwner == userID
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}

	return b
}

func (e *Engine) applyArticle(userID string, c remote.Change) (Outcome, error) {
	rec, old, err := decodeRecords[remote.ArticleRow](c)
	if err != nil {
		return Noop, err
	}

	id := firstNonEmpty(rec.ID, old.ID)
	if id == "" {
		return Noop, fmt.Errorf("article without id: %w", errMalformedChange)
	}

	if !e.shouldProcess(c.Type, c.Table, id) {
		return Duplicate, nil
	}

	if !owned(userID, rec.UserID, old.UserID) {
		return NotOwned, nil
	}

	switch c.Type {
	case remote.EventInsert:
		return e.insertArticle(rec)
	case remote.EventUpdate:
		return e.updateArticle(rec)
	default:
		return e.deleteArticle(id)
	}
}

func (e *Engine) insertArticle(row remote.ArticleRow) (Outcome, error) {
	if row.ID == "" || row.URL == "" {
		return Noop, fmt.Errorf("article insert without id or url: %w", errMalformedChange)
	}

	existing, err := e.store.ArticleByCloudID(row.ID)
	if err != nil {
		return Noop, err
	}

	if existing != nil {
		return Noop, nil
	}

	byURL, err := e.store.ArticleByURL(row.URL)
	if err != nil {
		return Noop, err
	}

	if byURL != nil {
		if byURL.CloudID != "" {
			return Noop, nil
		}

		if err := e.store.SetArticleCloudID(byURL.ID, row.ID); err != nil {
			return Noop, err
		}

		return Applied, nil
	}

	if _, err := e.store.PutArticle(row.Article()); err != nil {
		return Noop, err
	}

	return Applied, nil
}

// updateArticle overwrites the mutable fields of the mapped article
// without comparing timestamps. Unknown cloud ids are ignored.
func (e *Engine) updateArticle(row remote.ArticleRow) (Outcome, error) {
	if row.ID == "" {
		return Noop, fmt.Errorf("article update without new record: %w", errMalformedChange)
	}

	local, err := e.store.ArticleByCloudID(row.ID)
	if err != nil {
		return Noop, err
	}

	if local == nil || sameArticleContent(*local, row) {
		return Noop, nil
	}

	_, err = e.store.UpdateArticle(local.ID, func(a *models.Article) error {
		overwriteArticle(a, row)
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return Noop, nil
		}

		return Noop, err
	}

	return Applied, nil
}

func (e *Engine) deleteArticle(cloudID string) (Outcome, error) {
	local, err := e.store.ArticleByCloudID(cloudID)
	if err != nil {
		return Noop, err
	}

	if local == nil {
		return Noop, nil
	}

	if err := e.store.DeleteArticle(local.ID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return Noop, nil
		}

		return Noop, err
	}

	return Applied, nil
}

func (e *Engine) applyList(userID string, c remote.Change) (Outcome, error) {
	rec, old, err := decodeRecords[remote.ListRow](c)
	if err != nil {
		return Noop, err
	}

	id := firstNonEmpty(rec.ID, old.ID)
	if id == "" {
		return Noop, fmt.Errorf("list without id: %w", errMalformedChange)
	}

	if !e.shouldProcess(c.Type, c.Table, id) {
		return Duplicate, nil
	}

	if !owned(userID, rec.UserID, old.UserID) {
		return NotOwned, nil
	}

	switch c.Type {
	case remote.EventInsert:
		return e.insertList(rec)
	case remote.EventUpdate:
		return e.updateList(rec)
	default:
		return e.deleteList(id)
	}
}

func (e *Engine) insertList(row remote.ListRow) (Outcome, error) {
	if row.ID == "" || row.Name == "" {
		return Noop, fmt.Errorf("list insert without id or name: %w", errMalformedChange)
	}

	if row.IsDefault {
		return Noop, nil
	}

	existing, err := e.store.ListByCloudID(row.ID)
	if err != nil {
		return Noop, err
	}

	if existing != nil {
		return Noop, nil
	}

	byName, err := e.store.ListByName(row.Name)
	if err != nil {
		return Noop, err
	}

	if byName != nil {
		if byName.IsDefault || byName.CloudID != "" {
			return Noop, nil
		}

		if err := e.store.SetListCloudID(byName.ID, row.ID); err != nil {
			return Noop, err
		}

		return Applied, nil
	}

	if _, err := e.store.PutList(row.List()); err != nil {
		return Noop, err
	}

	return Applied, nil
}

func (e *Engine) updateList(row remote.ListRow) (Outcome, error) {
	if row.ID == "" {
		return Noop, fmt.Errorf("list update without new record: %w", errMalformedChange)
	}

	local, err := e.store.ListByCloudID(row.ID)
	if err != nil {
		return Noop, err
	}

	if local == nil || local.IsDefault {
		return Noop, nil
	}

	if mergeListRow(*local, row) == *local {
		return Noop, nil
	}

	_, err = e.store.UpdateList(local.ID, func(l *models.List) error {
		*l = mergeListRow(*l, row)
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return Noop, nil
		}

		return Noop, err
	}

	return Applied, nil
}

func (e *Engine) deleteList(cloudID string) (Outcome, error) {
	local, err := e.store.ListByCloudID(cloudID)
	if err != nil {
		return Noop, err
	}

	if local == nil || local.IsDefault {
		return Noop, nil
	}

	if err := e.store.DeleteList(local.ID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return Noop, nil
		}

		return Noop, err
	}

	return Applied, nil
}

// applyMembership handles the unscoped article_lists feed. Rows carry
// no owner; an event is applied only when both ids resolve to local
// records, which only this user's records do.
func (e *Engine) applyMembership(c remote.Change) (Outcome, error) {
	rec, old, err := decodeRecords[remote.MembershipRow](c)
	if err != nil {
		return Noop, err
	}

	row := rec
	if c.Type == remote.EventDelete || row.ArticleID == "" {
		row = old
	}

	if row.ArticleID == "" || row.ListID == "" {
		return Noop, fmt.Errorf("membership without article or list id: %w", errMalformedChange)
	}

	if !e.shouldProcess(c.Type, c.Table, row.ArticleID+"/"+row.ListID) {
		return Duplicate, nil
	}

	articleID, listID, ok, err := e.resolveMembership(row)
	if err != nil {
		return Noop, err
	}

	if !ok {
		return Noop, nil
	}

	switch c.Type {
	case remote.EventInsert:
		if _, err := e.store.PutMembership(articleID, listID); err != nil {
			if errors.Is(err, apperrors.ErrDuplicateMembership) || errors.Is(err, apperrors.ErrNotFound) {
				return Noop, nil
			}

			return Noop, err
		}

		return Applied, nil

	case remote.EventDelete:
		if err := e.store.DeleteMembership(articleID, listID); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return Noop, nil
			}

			return Noop, err
		}

		return Applied, nil

	default:
		// Membership rows have no mutable fields.
		return Noop, nil
	}
}

// shouldProcess records the event key and reports whether it was not
// already seen within the dedup window. Entries older than twice the
// window are evicted once the cache grows past dedupTrimThreshold.
func (e *Engine) shouldProcess(typ remote.EventType, table, id string) bool {
	key := string(typ) + ":" + table + ":" + id
	now := e.now()

	e.dedupMu.Lock()
	defer e.dedupMu.Unlock()

	if last, ok := e.seen[key]; ok && now.Sub(last) < e.window {
		return false
	}

	e.seen[key] = now

	if len(e.seen) > dedupTrimThreshold {
		cutoff := now.Add(-2 * e.window)
		for k, t := range e.seen {
			if t.Before(cutoff) {
				delete(e.seen, k)
			}
		}
	}

	return true
}

// dedupSize returns the number of remembered event keys.
func (e *Engine) dedupSize() int {
	e.dedupMu.Lock()
	defer e.dedupMu.Unlock()

	return len(e.seen)
}
