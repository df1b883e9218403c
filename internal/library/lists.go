package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	apperrors "github.com/alexjbarnes/marginalio/internal/errors"
	"github.com/alexjbarnes/marginalio/internal/models"
	"github.com/alexjbarnes/marginalio/internal/store"
)

// MaxListNameLength is the longest list name accepted, in characters.
const MaxListNameLength = 50

func validListName(name string) (string, error) {
	key := store.NameKey(name)

	if n := utf8.RuneCountInString(key); n == 0 || n > MaxListNameLength {
		return "", fmt.Errorf("list name %q: %w", name, apperrors.ErrInvalidListName)
	}

	return key, nil
}

// CreateList adds a user list.
func (l *Library) CreateList(name string) (int64, error) {
	key, err := validListName(name)
	if err != nil {
		return 0, err
	}

	id, err := l.store.PutList(models.List{Name: key, CreatedAt: models.StoredTime(l.now())})
	if err != nil {
		return 0, err
	}

	l.pushList(id)

	return id, nil
}

// RenameList renames a user list. Default lists yield ErrDefaultList.
func (l *Library) RenameList(id int64, name string) (*models.List, error) {
	key, err := validListName(name)
	if err != nil {
		return nil, err
	}

	cur, err := l.store.List(id)
	if err != nil {
		return nil, err
	}

	if cur.IsDefault {
		return nil, fmt.Errorf("renaming %q: %w", cur.Name, apperrors.ErrDefaultList)
	}

	updated, err := l.store.UpdateList(id, func(list *models.List) error {
		list.Name = key
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.pushList(id)

	return updated, nil
}

// DeleteList removes a user list and its memberships. Default lists
// yield ErrDefaultList and the store is left unchanged.
func (l *Library) DeleteList(id int64) error {
	cur, err := l.store.List(id)
	if err != nil {
		return err
	}

	if cur.IsDefault {
		return fmt.Errorf("deleting %q: %w", cur.Name, apperrors.ErrDefaultList)
	}

	cloudID := cur.CloudID

	if err := l.store.DeleteList(id); err != nil {
		return err
	}

	if cloudID != "" {
		l.push("list_delete", func(ctx context.Context, s Syncer) error {
			return s.PushListDelete(ctx, cloudID)
		}, slog.String("cloud_id", cloudID))
	}

	return nil
}

// SetCurrentlyReading marks list id as the one being read and clears
// the flag everywhere else. An id of 0 clears it everywhere. Each list
// whose flag flips is pushed on its own.
func (l *Library) SetCurrentlyReading(id int64) error {
	if id != 0 {
		if _, err := l.store.List(id); err != nil {
			return err
		}
	}

	lists, err := l.store.Lists()
	if err != nil {
		return err
	}

	for _, list := range lists {
		if !list.IsCurrentlyReading || list.ID == id {
			continue
		}

		if err := l.setReadingFlag(list.ID, false); err != nil {
			return err
		}
	}

	if id == 0 {
		return nil
	}

	for _, list := range lists {
		if list.ID == id && list.IsCurrentlyReading {
			return nil
		}
	}

	return l.setReadingFlag(id, true)
}

func (l *Library) setReadingFlag(id int64, on bool) error {
	_, err := l.store.UpdateList(id, func(list *models.List) error {
		list.IsCurrentlyReading = on
		return nil
	})
	if err != nil {
		return err
	}

	l.pushList(id)

	return nil
}

func (l *Library) pushList(id int64) {
	l.push("list", func(ctx context.Context, s Syncer) error {
		return s.PushList(ctx, id)
	}, slog.Int64("list_id", id))
}

// userList returns the list, rejecting defaults, whose membership is
// derived rather than stored.
func (l *Library) userList(id int64) (*models.List, error) {
	list, err := l.store.List(id)
	if err != nil {
		return nil, err
	}

	if list.IsDefault {
		return nil, fmt.Errorf("membership of %q: %w", list.Name, apperrors.ErrDefaultList)
	}

	return list, nil
}

// ToggleMembership adds the article to the list, or removes it if it
// is already there. It reports whether the article is now in the list.
func (l *Library) ToggleMembership(articleID, listID int64) (bool, error) {
	if _, err := l.userList(listID); err != nil {
		return false, err
	}

	existing, err := l.store.Membership(articleID, listID)
	if err != nil {
		return false, err
	}

	if existing != nil {
		return false, l.RemoveFromList(articleID, listID)
	}

	return true, l.AddToList(articleID, listID)
}

// AddToList puts the article in the list. Adding twice is a no-op.
func (l *Library) AddToList(articleID, listID int64) error {
	if _, err := l.userList(listID); err != nil {
		return err
	}

	if _, err := l.store.PutMembership(articleID, listID); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateMembership) {
			return nil
		}

		return err
	}

	l.push("membership", func(ctx context.Context, s Syncer) error {
		return s.PushMembership(ctx, articleID, listID)
	}, slog.Int64("article_id", articleID), slog.Int64("list_id", listID))

	return nil
}

// RemoveFromList takes the article out of the list. A pair that does
// not exist yields ErrNotFound.
func (l *Library) RemoveFromList(articleID, listID int64) error {
	var articleCloudID, listCloudID string

	if a, err := l.store.Article(articleID); err == nil {
		articleCloudID = a.CloudID
	}

	if list, err := l.store.List(listID); err == nil {
		listCloudID = list.CloudID
	}

	if err := l.store.DeleteMembership(articleID, listID); err != nil {
		return err
	}

	if articleCloudID != "" && listCloudID != "" {
		l.push("membership_delete", func(ctx context.Context, s Syncer) error {
			return s.PushMembershipDelete(ctx, articleCloudID, listCloudID)
		}, slog.Int64("article_id", articleID), slog.Int64("list_id", listID))
	}

	return nil
}
