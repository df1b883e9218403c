package store

import (
	"bytes"
	"fmt"

	apperrors "github.com/alexjbarnes/marginalio/internal/errors"
	"github.com/alexjbarnes/marginalio/internal/models"
	bolt "go.etcd.io/bbolt"
)

// PutMembership adds articleID to listID and returns the membership id.
// Both records must exist. An existing pair yields
// ErrDuplicateMembership.
func (s *Store) PutMembership(articleID, listID int64) (int64, error) {
	var id int64

	err := s.write(Memberships, func(tx *bolt.Tx) error {
		if tx.Bucket(articlesBucket).Get(itob(articleID)) == nil {
			return fmt.Errorf("article %d: %w", articleID, apperrors.ErrNotFound)
		}

		if tx.Bucket(listsBucket).Get(itob(listID)) == nil {
			return fmt.Errorf("list %d: %w", listID, apperrors.ErrNotFound)
		}

		pk := pairKey(articleID, listID)
		if tx.Bucket(membershipPairIndex).Get(pk) != nil {
			return apperrors.ErrDuplicateMembership
		}

		b := tx.Bucket(membershipsBucket)

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		id = int64(seq)

		if err := putRecord(b, id, models.Membership{ID: id, ArticleID: articleID, ListID: listID}); err != nil {
			return err
		}

		if err := tx.Bucket(membershipPairIndex).Put(pk, itob(id)); err != nil {
			return err
		}

		return tx.Bucket(membershipListIndex).Put(pairKey(listID, articleID), itob(id))
	})
	if err != nil {
		return 0, fmt.Errorf("adding article %d to list %d: %w", articleID, listID, err)
	}

	return id, nil
}

// Membership returns the row joining articleID and listID, or nil.
func (s *Store) Membership(articleID, listID int64) (*models.Membership, error) {
	var m *models.Membership

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(membershipPairIndex).Get(pairKey(articleID, listID))
		if v == nil {
			return nil
		}

		m = &models.Membership{}

		return getRecord(tx.Bucket(membershipsBucket), btoi(v), m)
	})

	return m, err
}

// DeleteMembership removes the pair. A missing pair yields ErrNotFound.
func (s *Store) DeleteMembership(articleID, listID int64) error {
	err := s.write(Memberships, func(tx *bolt.Tx) error {
		v := tx.Bucket(membershipPairIndex).Get(pairKey(articleID, listID))
		if v == nil {
			return apperrors.ErrNotFound
		}

		return deleteMembership(tx, btoi(v), articleID, listID)
	})
	if err != nil {
		return fmt.Errorf("removing article %d from list %d: %w", articleID, listID, err)
	}

	return nil
}

// Memberships returns every membership row ordered by id.
func (s *Store) Memberships() ([]models.Membership, error) {
	var out []models.Membership

	err := s.db.View(func(tx *bolt.Tx) error {
		return forEachRecord(tx.Bucket(membershipsBucket), func(m models.Membership) error {
			out = append(out, m)
			return nil
		})
	})

	return out, err
}

// MembershipsForArticle returns the rows for one article.
func (s *Store) MembershipsForArticle(articleID int64) ([]models.Membership, error) {
	return s.membershipsByPrefix(membershipPairIndex, articleID)
}

// MembershipsForList returns the rows for one list.
func (s *Store) MembershipsForList(listID int64) ([]models.Membership, error) {
	return s.membershipsByPrefix(membershipListIndex, listID)
}

func (s *Store) membershipsByPrefix(index []byte, owner int64) ([]models.Membership, error) {
	var out []models.Membership

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(membershipsBucket)
		prefix := itob(owner)
		c := tx.Bucket(index).Cursor()

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var m models.Membership
			if err := getRecord(b, btoi(v), &m); err != nil {
				return err
			}

			out = append(out, m)
		}

		return nil
	})

	return out, err
}

// deleteMembershipsByPrefix removes every membership whose key in index
// starts with owner. Used for cascades from articles and lists.
func deleteMembershipsByPrefix(tx *bolt.Tx, index []byte, owner int64) error {
	prefix := itob(owner)
	c := tx.Bucket(index).Cursor()

	type victim struct {
		id, articleID, listID int64
	}

	var victims []victim

	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		other := btoi(k[8:])
		vi := victim{id: btoi(v)}

		if bytes.Equal(index, membershipPairIndex) {
			vi.articleID, vi.listID = owner, other
		} else {
			vi.articleID, vi.listID = other, owner
		}

		victims = append(victims, vi)
	}

	for _, vi := range victims {
		if err := deleteMembership(tx, vi.id, vi.articleID, vi.listID); err != nil {
			return err
		}
	}

	return nil
}

func deleteMembership(tx *bolt.Tx, id, articleID, listID int64) error {
	if err := tx.Bucket(membershipsBucket).Delete(itob(id)); err != nil {
		return err
	}

	if err := tx.Bucket(membershipPairIndex).Delete(pairKey(articleID, listID)); err != nil {
		return err
	}

	return tx.Bucket(membershipListIndex).Delete(pairKey(listID, articleID))
}
