// Package models defines the library records shared across internal
// packages.
package models

import "time"

// Names of the two system lists created on first run.
const (
	AllArticlesList = "All Articles"
	FavoritesList   = "Favorites"
)

// DefaultReadingTime is used when a reading time is missing or not
// positive.
const DefaultReadingTime = 5

// TimePrecision is the resolution the backend stores timestamps at.
// Local timestamps are kept at the same resolution so a round trip
// compares equal.
const TimePrecision = time.Microsecond

// StoredTime returns t in UTC truncated to TimePrecision.
func StoredTime(t time.Time) time.Time {
	return t.UTC().Truncate(TimePrecision)
}

// Article is a saved article. URL is unique within a local store.
// CloudID is empty until the article has been uploaded and never
// changes once set.
type Article struct {
	ID          int64     `json:"id"`
	CloudID     string    `json:"cloudId"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Publication string    `json:"publication"`
	Summary     string    `json:"summary"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	FaviconURL  string    `json:"faviconUrl,omitempty"`
	ReadingTime int       `json:"readingTime"`
	Tags        []string  `json:"tags"`
	IsRead      bool      `json:"isRead"`
	IsStarred   bool      `json:"isStarred"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// HasTag reports whether the article carries tag.
func (a *Article) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}

	return false
}

// List is a user-created or default list.
type List struct {
	ID                 int64     `json:"id"`
	CloudID            string    `json:"cloudId"`
	Name               string    `json:"name"`
	IsDefault          bool      `json:"isDefault"`
	IsCurrentlyReading bool      `json:"isCurrentlyReading"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Membership joins an article to a list. The pair is unique.
type Membership struct {
	ID        int64 `json:"id"`
	ArticleID int64 `json:"articleId"`
	ListID    int64 `json:"listId"`
}

// NormalizeTags drops empty and repeated tags, keeping the first
// occurrence of each so display order is preserved.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))

	for _, t := range tags {
		if t == "" {
			continue
		}

		if _, dup := seen[t]; dup {
			continue
		}

		seen[t] = struct{}{}
		out = append(out, t)
	}

	return out
}
