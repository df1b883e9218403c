package library

import (
	"sort"
	"strings"

	"github.com/alexjbarnes/marginalio/internal/live"
	"github.com/alexjbarnes/marginalio/internal/models"
	"github.com/alexjbarnes/marginalio/internal/store"
)

// ReadStatus filters articles by their read flag.
type ReadStatus string

const (
	ReadAny ReadStatus = ""
	Read    ReadStatus = "read"
	Unread  ReadStatus = "unread"
)

// Filter selects articles. The zero value matches everything.
type Filter struct {
	// Search matches title or publication, case-insensitively.
	Search string

	Read        ReadStatus
	StarredOnly bool

	// Tags matches articles carrying any of the tags.
	Tags []string

	// ListID restricts to members of a user list; 0 means all.
	ListID int64
}

// Article returns one article. A missing id yields ErrNotFound.
func (l *Library) Article(id int64) (*models.Article, error) {
	return l.store.Article(id)
}

// List returns one list. A missing id yields ErrNotFound.
func (l *Library) List(id int64) (*models.List, error) {
	return l.store.List(id)
}

// Articles returns the matching articles, newest first.
func (l *Library) Articles(f Filter) ([]models.Article, error) {
	all, err := l.candidates(f.ListID)
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]models.Article, 0, len(all))

	for _, a := range all {
		if f.StarredOnly && !a.IsStarred {
			continue
		}

		if search != "" &&
			!strings.Contains(strings.ToLower(a.Title), search) &&
			!strings.Contains(strings.ToLower(a.Publication), search) {
			continue
		}

		switch f.Read {
		case Read:
			if !a.IsRead {
				continue
			}
		case Unread:
			if a.IsRead {
				continue
			}
		}

		if len(f.Tags) > 0 && !hasAnyTag(a, f.Tags) {
			continue
		}

		out = append(out, a)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}

		return out[i].ID > out[j].ID
	})

	return out, nil
}

// candidates loads the articles a filter can match: the members of
// listID, or every article when listID is 0.
func (l *Library) candidates(listID int64) ([]models.Article, error) {
	if listID == 0 {
		return l.store.Articles()
	}

	rows, err := l.store.MembershipsForList(listID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(rows))
	for _, m := range rows {
		ids = append(ids, m.ArticleID)
	}

	return l.store.ArticlesByID(ids)
}

func hasAnyTag(a models.Article, tags []string) bool {
	for _, t := range tags {
		if a.HasTag(t) {
			return true
		}
	}

	return false
}

// AllTags returns every tag in use, sorted.
func (l *Library) AllTags() ([]string, error) {
	all, err := l.store.Articles()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, a := range all {
		for _, t := range a.Tags {
			seen[t] = struct{}{}
		}
	}

	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}

	sort.Strings(tags)

	return tags, nil
}

// ListSummary is a list with the number of articles it shows.
type ListSummary struct {
	models.List
	ArticleCount int `json:"articleCount"`
}

// Lists returns every list in creation order with its article count.
// "All Articles" counts every article and "Favorites" counts starred
// ones.
func (l *Library) Lists() ([]ListSummary, error) {
	lists, err := l.store.Lists()
	if err != nil {
		return nil, err
	}

	articles, err := l.store.Articles()
	if err != nil {
		return nil, err
	}

	memberships, err := l.store.Memberships()
	if err != nil {
		return nil, err
	}

	starred := 0
	for _, a := range articles {
		if a.IsStarred {
			starred++
		}
	}

	counts := make(map[int64]int)
	for _, m := range memberships {
		counts[m.ListID]++
	}

	sort.SliceStable(lists, func(i, j int) bool {
		if !lists[i].CreatedAt.Equal(lists[j].CreatedAt) {
			return lists[i].CreatedAt.Before(lists[j].CreatedAt)
		}

		return lists[i].ID < lists[j].ID
	})

	out := make([]ListSummary, 0, len(lists))

	for _, list := range lists {
		n := counts[list.ID]

		if list.IsDefault {
			switch list.Name {
			case models.AllArticlesList:
				n = len(articles)
			case models.FavoritesList:
				n = starred
			}
		}

		out = append(out, ListSummary{List: list, ArticleCount: n})
	}

	return out, nil
}

// CurrentlyReading returns the list flagged as currently reading, or
// nil.
func (l *Library) CurrentlyReading() (*models.List, error) {
	lists, err := l.store.Lists()
	if err != nil {
		return nil, err
	}

	for i := range lists {
		if lists[i].IsCurrentlyReading {
			return &lists[i], nil
		}
	}

	return nil, nil
}

// ArticleListIDs returns the ids of the user lists holding the article.
func (l *Library) ArticleListIDs(articleID int64) ([]int64, error) {
	rows, err := l.store.MembershipsForArticle(articleID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(rows))
	for _, m := range rows {
		ids = append(ids, m.ListID)
	}

	return ids, nil
}

// ListsForArticle returns the user lists holding the article.
func (l *Library) ListsForArticle(articleID int64) ([]models.List, error) {
	ids, err := l.ArticleListIDs(articleID)
	if err != nil {
		return nil, err
	}

	out := make([]models.List, 0, len(ids))

	for _, id := range ids {
		list, err := l.store.List(id)
		if err != nil {
			continue
		}

		out = append(out, *list)
	}

	return out, nil
}

// WatchArticles re-runs Articles(f) whenever articles or memberships
// change.
func (l *Library) WatchArticles(f Filter) *live.Subscription[[]models.Article] {
	f.Tags = append([]string(nil), f.Tags...)

	return live.Subscribe(l.hub, store.Articles|store.Memberships, func() ([]models.Article, error) {
		return l.Articles(f)
	})
}

// WatchTags re-runs AllTags whenever articles change.
func (l *Library) WatchTags() *live.Subscription[[]string] {
	return live.Subscribe(l.hub, store.Articles, l.AllTags)
}

// WatchLists re-runs Lists whenever any table changes.
func (l *Library) WatchLists() *live.Subscription[[]ListSummary] {
	return live.Subscribe(l.hub, store.Articles|store.Lists|store.Memberships, l.Lists)
}

// WatchArticleListIDs re-runs ArticleListIDs whenever memberships
// change.
func (l *Library) WatchArticleListIDs(articleID int64) *live.Subscription[[]int64] {
	return live.Subscribe(l.hub, store.Memberships, func() ([]int64, error) {
		return l.ArticleListIDs(articleID)
	})
}
