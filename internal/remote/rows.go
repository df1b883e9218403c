package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alexjbarnes/marginalio/internal/models"
)

// Timestamp decodes the timestamp shapes the backend emits. REST
// responses carry RFC 3339 with an offset; realtime records can carry a
// space separator or no offset at all. Null decodes to the zero time
// and the zero time encodes as null.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}

	if s == "" {
		t.Time = time.Time{}
		return nil
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}

	return fmt.Errorf("timestamp: unrecognised format %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}

	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// ArticleRow is the remote articles table row.
type ArticleRow struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Publication string    `json:"publication"`
	Summary     string    `json:"summary"`
	ImageURL    *string   `json:"image_url"`
	FaviconURL  *string   `json:"favicon_url"`
	ReadingTime int       `json:"reading_time"`
	Tags        []string  `json:"tags"`
	IsRead      bool      `json:"is_read"`
	IsStarred   bool      `json:"is_starred"`
	CreatedAt   Timestamp `json:"created_at"`
	UpdatedAt   Timestamp `json:"updated_at"`
}

// NewArticleRow shapes a local article for upload. The row id is the
// article's cloud id, which may be empty. updated_at carries the local
// updatedAt so a round trip does not look like a remote edit.
func NewArticleRow(a models.Article, userID string, now time.Time) ArticleRow {
	created := a.CreatedAt
	if created.IsZero() {
		created = now
	}

	updated := a.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	readingTime := a.ReadingTime
	if readingTime <= 0 {
		readingTime = models.DefaultReadingTime
	}

	return ArticleRow{
		ID:          a.CloudID,
		UserID:      userID,
		URL:         a.URL,
		Title:       a.Title,
		Publication: a.Publication,
		Summary:     a.Summary,
		ImageURL:    optional(a.ImageURL),
		FaviconURL:  optional(a.FaviconURL),
		ReadingTime: readingTime,
		Tags:        models.NormalizeTags(a.Tags),
		IsRead:      a.IsRead,
		IsStarred:   a.IsStarred,
		CreatedAt:   Timestamp{models.StoredTime(created)},
		UpdatedAt:   Timestamp{models.StoredTime(updated)},
	}
}

// Article converts the row to a local article tagged with the row id.
// The local id is left zero.
func (r ArticleRow) Article() models.Article {
	readingTime := r.ReadingTime
	if readingTime <= 0 {
		readingTime = models.DefaultReadingTime
	}

	updated := r.UpdatedAt.Time
	if updated.IsZero() {
		updated = r.CreatedAt.Time
	}

	return models.Article{
		CloudID:     r.ID,
		URL:         r.URL,
		Title:       r.Title,
		Publication: r.Publication,
		Summary:     r.Summary,
		ImageURL:    deref(r.ImageURL),
		FaviconURL:  deref(r.FaviconURL),
		ReadingTime: readingTime,
		Tags:        models.NormalizeTags(r.Tags),
		IsRead:      r.IsRead,
		IsStarred:   r.IsStarred,
		CreatedAt:   r.CreatedAt.Time,
		UpdatedAt:   updated,
	}
}

// ListRow is the remote lists table row.
type ListRow struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	Name               string    `json:"name"`
	IsDefault          bool      `json:"is_default"`
	IsCurrentlyReading bool      `json:"is_currently_reading"`
	CreatedAt          Timestamp `json:"created_at"`
}

// NewListRow shapes a local list for upload.
func NewListRow(l models.List, userID string, now time.Time) ListRow {
	created := l.CreatedAt
	if created.IsZero() {
		created = now
	}

	return ListRow{
		ID:                 l.CloudID,
		UserID:             userID,
		Name:               strings.TrimSpace(l.Name),
		IsDefault:          false,
		IsCurrentlyReading: l.IsCurrentlyReading,
		CreatedAt:          Timestamp{models.StoredTime(created)},
	}
}

// List converts the row to a local, never default, list.
func (r ListRow) List() models.List {
	return models.List{
		CloudID:            r.ID,
		Name:               r.Name,
		IsCurrentlyReading: r.IsCurrentlyReading,
		CreatedAt:          r.CreatedAt.Time,
	}
}

// MembershipRow is the remote article_lists row. Both ids are remote
// ids. The row carries no owner column.
type MembershipRow struct {
	ArticleID string     `json:"article_id"`
	ListID    string     `json:"list_id"`
	CreatedAt *Timestamp `json:"created_at,omitempty"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
