package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	apperrors "github.com/alexjbarnes/marginalio/internal/errors"
	"github.com/alexjbarnes/marginalio/internal/metadata"
	"github.com/alexjbarnes/marginalio/internal/models"
	"golang.org/x/text/unicode/norm"
)

// ArticleChanges lists the fields UpdateArticle should set. Nil fields
// are left as they are.
type ArticleChanges struct {
	Title       *string
	Publication *string
	Summary     *string
	ImageURL    *string
	FaviconURL  *string
	ReadingTime *int
	Tags        *[]string
	IsRead      *bool
	IsStarred   *bool
}

func (c ArticleChanges) apply(a *models.Article) {
	if c.Title != nil {
		a.Title = *c.Title
	}

	if c.Publication != nil {
		a.Publication = *c.Publication
	}

	if c.Summary != nil {
		a.Summary = *c.Summary
	}

	if c.ImageURL != nil {
		a.ImageURL = *c.ImageURL
	}

	if c.FaviconURL != nil {
		a.FaviconURL = *c.FaviconURL
	}

	if c.ReadingTime != nil {
		a.ReadingTime = *c.ReadingTime
		if a.ReadingTime <= 0 {
			a.ReadingTime = models.DefaultReadingTime
		}
	}

	if c.Tags != nil {
		a.Tags = cleanTags(*c.Tags)
	}

	if c.IsRead != nil {
		a.IsRead = *c.IsRead
	}

	if c.IsStarred != nil {
		a.IsStarred = *c.IsStarred
	}
}

// cleanTags trims and NFC-normalises tags, dropping empties and repeats.
func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, norm.NFC.String(strings.TrimSpace(t)))
	}

	return models.NormalizeTags(out)
}

// AddArticle saves a new unread, unstarred article. If the URL is
// already saved it returns the existing id with ErrDuplicateURL and
// writes nothing.
func (l *Library) AddArticle(a models.Article) (int64, error) {
	a.URL = strings.TrimSpace(a.URL)
	if !metadata.IsValidURL(a.URL) {
		return 0, fmt.Errorf("adding %q: %w", a.URL, apperrors.ErrInvalidURL)
	}

	if existing, err := l.store.ArticleByURL(a.URL); err != nil {
		return 0, err
	} else if existing != nil {
		return existing.ID, fmt.Errorf("adding %s: %w", a.URL, apperrors.ErrDuplicateURL)
	}

	now := models.StoredTime(l.now())

	a.ID = 0
	a.CloudID = ""
	a.IsRead = false
	a.IsStarred = false
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Tags = cleanTags(a.Tags)

	if a.ReadingTime <= 0 {
		a.ReadingTime = models.DefaultReadingTime
	}

	id, err := l.store.PutArticle(a)
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicateURL) {
			if existing, lookupErr := l.store.ArticleByURL(a.URL); lookupErr == nil && existing != nil {
				return existing.ID, err
			}
		}

		return 0, err
	}

	l.logger.Info("article added", slog.Int64("article_id", id), slog.String("url", a.URL))

	l.push("article", func(ctx context.Context, s Syncer) error {
		return s.PushArticle(ctx, id)
	}, slog.Int64("article_id", id))

	return id, nil
}

// SaveURL extracts metadata for rawURL and adds the article. The
// duplicate check runs before the extractor is called.
func (l *Library) SaveURL(ctx context.Context, rawURL string) (int64, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !metadata.IsValidURL(rawURL) {
		return 0, fmt.Errorf("saving %q: %w", rawURL, apperrors.ErrInvalidURL)
	}

	if existing, err := l.store.ArticleByURL(rawURL); err != nil {
		return 0, err
	} else if existing != nil {
		return existing.ID, fmt.Errorf("saving %s: %w", rawURL, apperrors.ErrDuplicateURL)
	}

	if l.extract == nil {
		return 0, fmt.Errorf("saving %s: no extractor configured: %w", rawURL, apperrors.ErrExtractFailed)
	}

	md, err := l.extract.Extract(ctx, rawURL)
	if err != nil {
		return 0, err
	}

	return l.AddArticle(models.Article{
		URL:         rawURL,
		Title:       md.Title,
		Publication: md.Publication,
		Summary:     md.Summary,
		ImageURL:    md.ImageURL,
		FaviconURL:  md.FaviconURL,
		ReadingTime: md.ReadingTime,
		Tags:        md.SuggestedTags,
	})
}

// UpdateArticle applies changes and bumps UpdatedAt. A missing id
// yields ErrNotFound.
func (l *Library) UpdateArticle(id int64, changes ArticleChanges) (*models.Article, error) {
	return l.updateArticle(id, changes.apply)
}

// ToggleRead flips the read flag.
func (l *Library) ToggleRead(id int64) (*models.Article, error) {
	return l.updateArticle(id, func(a *models.Article) { a.IsRead = !a.IsRead })
}

// ToggleStar flips the starred flag.
func (l *Library) ToggleStar(id int64) (*models.Article, error) {
	return l.updateArticle(id, func(a *models.Article) { a.IsStarred = !a.IsStarred })
}

func (l *Library) updateArticle(id int64, fn func(*models.Article)) (*models.Article, error) {
	a, err := l.store.UpdateArticle(id, func(a *models.Article) error {
		fn(a)
		a.UpdatedAt = l.touch(a.UpdatedAt)

		return nil
	})
	if err != nil {
		return nil, err
	}

	l.push("article", func(ctx context.Context, s Syncer) error {
		return s.PushArticle(ctx, id)
	}, slog.Int64("article_id", id))

	return a, nil
}

// DeleteArticle removes the article and its memberships. The cloud id
// is read before the delete so the remote row can be removed after it.
func (l *Library) DeleteArticle(id int64) error {
	a, err := l.store.Article(id)
	if err != nil {
		return err
	}

	cloudID := a.CloudID

	if err := l.store.DeleteArticle(id); err != nil {
		return err
	}

	l.logger.Info("article deleted", slog.Int64("article_id", id))

	if cloudID != "" {
		l.push("article_delete", func(ctx context.Context, s Syncer) error {
			return s.PushArticleDelete(ctx, cloudID)
		}, slog.String("cloud_id", cloudID))
	}

	return nil
}
