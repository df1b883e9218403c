package store

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/alexjbarnes/marginalio/internal/errors"
	"github.com/alexjbarnes/marginalio/internal/models"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/text/unicode/norm"
)

// NameKey is the index key for a list name: trimmed and NFC-normalised
// so names typed on different platforms compare equal. Case is
// significant, as in the backend's (user_id, name) key.
func NameKey(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// PutList inserts a new list and returns its local id. A name already
// in use yields ErrDuplicateListName.
func (s *Store) PutList(l models.List) (int64, error) {
	var id int64

	err := s.write(Lists, func(tx *bolt.Tx) error {
		var err error
		id, err = putList(tx, l)

		return err
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

func putList(tx *bolt.Tx, l models.List) (int64, error) {
	key := NameKey(l.Name)
	if key == "" {
		return 0, apperrors.ErrInvalidListName
	}

	if existing := lookup(tx, listNameIndex, key); existing != 0 {
		return 0, fmt.Errorf("list %q is %d: %w", key, existing, apperrors.ErrDuplicateListName)
	}

	if l.CloudID != "" && lookup(tx, listCloudIndex, l.CloudID) != 0 {
		return 0, fmt.Errorf("cloud id %s already mapped: %w", l.CloudID, apperrors.ErrCloudIDConflict)
	}

	b := tx.Bucket(listsBucket)

	seq, err := b.NextSequence()
	if err != nil {
		return 0, err
	}

	id := int64(seq)
	l.ID = id
	l.Name = key

	if err := putRecord(b, id, l); err != nil {
		return 0, err
	}

	if err := tx.Bucket(listNameIndex).Put([]byte(key), itob(id)); err != nil {
		return 0, err
	}

	if l.CloudID != "" {
		if err := tx.Bucket(listCloudIndex).Put([]byte(l.CloudID), itob(id)); err != nil {
			return 0, err
		}
	}

	return id, nil
}

// EnsureDefaultLists creates "All Articles" and "Favorites" when the
// lists table is empty. It reports whether the lists were created.
func (s *Store) EnsureDefaultLists(now time.Time) (bool, error) {
	created := false

	err := s.write(Lists, func(tx *bolt.Tx) error {
		if tx.Bucket(listsBucket).Stats().KeyN > 0 {
			return nil
		}

		for _, name := range []string{models.AllArticlesList, models.FavoritesList} {
			if _, err := putList(tx, models.List{Name: name, IsDefault: true, CreatedAt: now}); err != nil {
				return err
			}
		}

		created = true

		return nil
	})

	return created, err
}

// List returns the list with the given id, or ErrNotFound.
func (s *Store) List(id int64) (*models.List, error) {
	var l models.List

	err := s.db.View(func(tx *bolt.Tx) error {
		return getRecord(tx.Bucket(listsBucket), id, &l)
	})
	if err != nil {
		return nil, fmt.Errorf("list %d: %w", id, err)
	}

	return &l, nil
}

// ListByName returns the list whose normalised name matches, or nil.
func (s *Store) ListByName(name string) (*models.List, error) {
	return s.listByIndex(listNameIndex, NameKey(name))
}

// ListByCloudID returns the list mapped to cloudID, or nil.
func (s *Store) ListByCloudID(cloudID string) (*models.List, error) {
	return s.listByIndex(listCloudIndex, cloudID)
}

func (s *Store) listByIndex(index []byte, key string) (*models.List, error) {
	var l *models.List

	err := s.db.View(func(tx *bolt.Tx) error {
		id := lookup(tx, index, key)
		if id == 0 {
			return nil
		}

		l = &models.List{}

		return getRecord(tx.Bucket(listsBucket), id, l)
	})

	return l, err
}

// Lists returns every list ordered by local id, which is creation
// order.
func (s *Store) Lists() ([]models.List, error) {
	var out []models.List

	err := s.db.View(func(tx *bolt.Tx) error {
		return forEachRecord(tx.Bucket(listsBucket), func(l models.List) error {
			out = append(out, l)
			return nil
		})
	})

	return out, err
}

// UpdateList applies fn to the stored list. Renames are checked against
// the name index; IsDefault cannot be changed.
func (s *Store) UpdateList(id int64, fn func(*models.List) error) (*models.List, error) {
	var updated models.List

	err := s.write(Lists, func(tx *bolt.Tx) error {
		b := tx.Bucket(listsBucket)

		var cur models.List
		if err := getRecord(b, id, &cur); err != nil {
			return err
		}

		next := cur
		if err := fn(&next); err != nil {
			return err
		}

		next.ID = id
		next.IsDefault = cur.IsDefault
		next.Name = NameKey(next.Name)

		if next.Name != cur.Name {
			if cur.IsDefault {
				return apperrors.ErrDefaultList
			}

			if next.Name == "" {
				return apperrors.ErrInvalidListName
			}

			if other := lookup(tx, listNameIndex, next.Name); other != 0 && other != id {
				return fmt.Errorf("list %q is %d: %w", next.Name, other, apperrors.ErrDuplicateListName)
			}

			idx := tx.Bucket(listNameIndex)
			if err := idx.Delete([]byte(cur.Name)); err != nil {
				return err
			}

			if err := idx.Put([]byte(next.Name), itob(id)); err != nil {
				return err
			}
		}

		if err := reindexCloudID(tx, listCloudIndex, id, cur.CloudID, next.CloudID); err != nil {
			return err
		}

		updated = next

		return putRecord(b, id, next)
	})
	if err != nil {
		return nil, fmt.Errorf("updating list %d: %w", id, err)
	}

	return &updated, nil
}

// SetListCloudID backfills the cloud id of a list.
func (s *Store) SetListCloudID(id int64, cloudID string) error {
	_, err := s.UpdateList(id, func(l *models.List) error {
		l.CloudID = cloudID
		return nil
	})

	return err
}

// DeleteList removes a non-default list and its memberships. Default
// lists yield ErrDefaultList and are left untouched.
func (s *Store) DeleteList(id int64) error {
	err := s.write(Lists|Memberships, func(tx *bolt.Tx) error {
		var l models.List
		if err := getRecord(tx.Bucket(listsBucket), id, &l); err != nil {
			return err
		}

		if l.IsDefault {
			return apperrors.ErrDefaultList
		}

		if err := deleteMembershipsByPrefix(tx, membershipListIndex, id); err != nil {
			return err
		}

		if err := tx.Bucket(listNameIndex).Delete([]byte(l.Name)); err != nil {
			return err
		}

		if l.CloudID != "" {
			if err := tx.Bucket(listCloudIndex).Delete([]byte(l.CloudID)); err != nil {
				return err
			}
		}

		return tx.Bucket(listsBucket).Delete(itob(id))
	})
	if err != nil {
		return fmt.Errorf("deleting list %d: %w", id, err)
	}

	return nil
}
