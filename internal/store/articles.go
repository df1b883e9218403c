package store

import (
	"errors"
	"fmt"
	"sort"

	apperrors "github.com/alexjbarnes/marginalio/internal/errors"
	"github.com/alexjbarnes/marginalio/internal/models"
	bolt "go.etcd.io/bbolt"
)

// PutArticle inserts a new article and returns its local id. The ID
// field of a is ignored. A URL that is already stored is rejected with
// ErrDuplicateURL and nothing is written.
func (s *Store) PutArticle(a models.Article) (int64, error) {
	var id int64

	err := s.write(Articles, func(tx *bolt.Tx) error {
		if a.URL == "" {
			return fmt.Errorf("article url is empty: %w", apperrors.ErrInvalidURL)
		}

		if existing := lookup(tx, articleURLIndex, a.URL); existing != 0 {
			return fmt.Errorf("url %q is article %d: %w", a.URL, existing, apperrors.ErrDuplicateURL)
		}

		if a.CloudID != "" && lookup(tx, articleCloudIndex, a.CloudID) != 0 {
			return fmt.Errorf("cloud id %s already mapped: %w", a.CloudID, apperrors.ErrCloudIDConflict)
		}

		b := tx.Bucket(articlesBucket)

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		id = int64(seq)
		a.ID = id
		a.Tags = models.NormalizeTags(a.Tags)

		if err := putRecord(b, id, a); err != nil {
			return err
		}

		if err := tx.Bucket(articleURLIndex).Put([]byte(a.URL), itob(id)); err != nil {
			return err
		}

		if a.CloudID != "" {
			return tx.Bucket(articleCloudIndex).Put([]byte(a.CloudID), itob(id))
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

// Article returns the article with the given id, or ErrNotFound.
func (s *Store) Article(id int64) (*models.Article, error) {
	var a models.Article

	err := s.db.View(func(tx *bolt.Tx) error {
		return getRecord(tx.Bucket(articlesBucket), id, &a)
	})
	if err != nil {
		return nil, fmt.Errorf("article %d: %w", id, err)
	}

	return &a, nil
}

// ArticleByURL returns the article stored under url, or nil.
func (s *Store) ArticleByURL(url string) (*models.Article, error) {
	return s.articleByIndex(articleURLIndex, url)
}

// ArticleByCloudID returns the article mapped to cloudID, or nil.
func (s *Store) ArticleByCloudID(cloudID string) (*models.Article, error) {
	return s.articleByIndex(articleCloudIndex, cloudID)
}

func (s *Store) articleByIndex(index []byte, key string) (*models.Article, error) {
	var a *models.Article

	err := s.db.View(func(tx *bolt.Tx) error {
		id := lookup(tx, index, key)
		if id == 0 {
			return nil
		}

		a = &models.Article{}

		return getRecord(tx.Bucket(articlesBucket), id, a)
	})

	return a, err
}

// Articles returns every article ordered by local id.
func (s *Store) Articles() ([]models.Article, error) {
	var out []models.Article

	err := s.db.View(func(tx *bolt.Tx) error {
		return forEachRecord(tx.Bucket(articlesBucket), func(a models.Article) error {
			out = append(out, a)
			return nil
		})
	})

	return out, err
}

// ArticlesByID returns the articles with the given ids that exist,
// ordered by id. Missing ids are skipped.
func (s *Store) ArticlesByID(ids []int64) ([]models.Article, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var out []models.Article

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(articlesBucket)

		for _, id := range sorted {
			var a models.Article

			err := getRecord(b, id, &a)
			if errors.Is(err, apperrors.ErrNotFound) {
				continue
			}

			if err != nil {
				return err
			}

			out = append(out, a)
		}

		return nil
	})

	return out, err
}

// UpdateArticle loads the article, applies fn, and writes it back in
// one transaction. It returns the stored result. A missing id yields
// ErrNotFound. Changing the URL to one held by another article yields
// ErrDuplicateURL; changing an already assigned cloud id yields
// ErrCloudIDConflict. fn must not change the ID.
func (s *Store) UpdateArticle(id int64, fn func(*models.Article) error) (*models.Article, error) {
	var updated models.Article

	err := s.write(Articles, func(tx *bolt.Tx) error {
		b := tx.Bucket(articlesBucket)

		var cur models.Article
		if err := getRecord(b, id, &cur); err != nil {
			return err
		}

		next := cur
		next.Tags = append([]string(nil), cur.Tags...)

		if err := fn(&next); err != nil {
			return err
		}

		next.ID = id
		next.Tags = models.NormalizeTags(next.Tags)

		if next.URL != cur.URL {
			if next.URL == "" {
				return fmt.Errorf("article url is empty: %w", apperrors.ErrInvalidURL)
			}

			if other := lookup(tx, articleURLIndex, next.URL); other != 0 && other != id {
				return fmt.Errorf("url %q is article %d: %w", next.URL, other, apperrors.ErrDuplicateURL)
			}

			idx := tx.Bucket(articleURLIndex)
			if err := idx.Delete([]byte(cur.URL)); err != nil {
				return err
			}

			if err := idx.Put([]byte(next.URL), itob(id)); err != nil {
				return err
			}
		}

		if err := reindexCloudID(tx, articleCloudIndex, id, cur.CloudID, next.CloudID); err != nil {
			return err
		}

		updated = next

		return putRecord(b, id, next)
	})
	if err != nil {
		return nil, fmt.Errorf("updating article %d: %w", id, err)
	}

	return &updated, nil
}

// SetArticleCloudID backfills the cloud id without touching any other
// field. Setting the id the article already has is a no-op.
func (s *Store) SetArticleCloudID(id int64, cloudID string) error {
	_, err := s.UpdateArticle(id, func(a *models.Article) error {
		a.CloudID = cloudID
		return nil
	})

	return err
}

// DeleteArticle removes the article and every membership row that
// references it. A missing id yields ErrNotFound.
func (s *Store) DeleteArticle(id int64) error {
	err := s.write(Articles|Memberships, func(tx *bolt.Tx) error {
		var a models.Article
		if err := getRecord(tx.Bucket(articlesBucket), id, &a); err != nil {
			return err
		}

		if err := deleteMembershipsByPrefix(tx, membershipPairIndex, id); err != nil {
			return err
		}

		if err := tx.Bucket(articleURLIndex).Delete([]byte(a.URL)); err != nil {
			return err
		}

		if a.CloudID != "" {
			if err := tx.Bucket(articleCloudIndex).Delete([]byte(a.CloudID)); err != nil {
				return err
			}
		}

		return tx.Bucket(articlesBucket).Delete(itob(id))
	})
	if err != nil {
		return fmt.Errorf("deleting article %d: %w", id, err)
	}

	return nil
}

// reindexCloudID enforces that a cloud id, once set, never changes and
// is mapped to at most one record.
func reindexCloudID(tx *bolt.Tx, index []byte, id int64, cur, next string) error {
	if cur == next {
		return nil
	}

	if cur != "" {
		return fmt.Errorf("cloud id %s cannot become %q: %w", cur, next, apperrors.ErrCloudIDConflict)
	}

	if other := lookup(tx, index, next); other != 0 && other != id {
		return fmt.Errorf("cloud id %s already mapped to %d: %w", next, other, apperrors.ErrCloudIDConflict)
	}

	return tx.Bucket(index).Put([]byte(next), itob(id))
}
