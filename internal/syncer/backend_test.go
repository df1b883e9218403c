package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alexjbarnes/marginalio/internal/models"
	"github.com/alexjbarnes/marginalio/internal/remote"
	"github.com/alexjbarnes/marginalio/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const testUser = "user-1"

var errBackendDown = errors.New("backend down")

// fakeBackend is an in-memory Remote holding several users' rows.
// writes counts mutating calls that changed stored state.
type fakeBackend struct {
	mu          sync.Mutex
	articles    []remote.ArticleRow
	lists       []remote.ListRow
	memberships []remote.MembershipRow
	writes      int

	// failUpsertURL makes UpsertArticle fail for that url.
	failUpsertURL string

	// precision, when set, truncates stored article timestamps the way
	// a timestamptz column does.
	precision time.Duration
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{}
}

func sameJSON(a, b any) bool {
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)

	return bytes.Equal(ja, jb)
}

func (f *fakeBackend) UpsertArticle(_ context.Context, a models.Article, userID string) (*remote.ArticleRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failUpsertURL != "" && a.URL == f.failUpsertURL {
		return nil, errBackendDown
	}

	row := remote.NewArticleRow(a, userID, t0)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}

	if f.precision > 0 {
		row.CreatedAt.Time = row.CreatedAt.Truncate(f.precision)
		row.UpdatedAt.Time = row.UpdatedAt.Truncate(f.precision)
	}

	for i := range f.articles {
		if f.articles[i].ID == row.ID {
			if !sameJSON(f.articles[i], row) {
				f.articles[i] = row
				f.writes++
			}

			out := row
			return &out, nil
		}
	}

	f.articles = append(f.articles, row)
	f.writes++

	out := row

	return &out, nil
}

func (f *fakeBackend) UpsertList(_ context.Context, l models.List, userID string) (*remote.ListRow, error) {
	if l.IsDefault {
		return nil, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	row := remote.NewListRow(l, userID, t0)

	for i := range f.lists {
		cur := f.lists[i]

		match := row.ID != "" && cur.ID == row.ID
		if row.ID == "" && cur.UserID == userID && store.NameKey(cur.Name) == store.NameKey(row.Name) {
			match = true
			row.ID = cur.ID
		}

		if match {
			if !sameJSON(cur, row) {
				f.lists[i] = row
				f.writes++
			}

			out := row
			return &out, nil
		}
	}

	if row.ID == "" {
		row.ID = uuid.NewString()
	}

	f.lists = append(f.lists, row)
	f.writes++

	out := row

	return &out, nil
}

func (f *fakeBackend) UpsertMembership(_ context.Context, articleCloudID, listCloudID string) (*remote.MembershipRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	row := remote.MembershipRow{ArticleID: articleCloudID, ListID: listCloudID}

	for _, m := range f.memberships {
		if m.ArticleID == articleCloudID && m.ListID == listCloudID {
			return &row, nil
		}
	}

	f.memberships = append(f.memberships, row)
	f.writes++

	return &row, nil
}

func (f *fakeBackend) DeleteArticle(_ context.Context, cloudID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, a := range f.articles {
		if a.ID == cloudID {
			f.articles = append(f.articles[:i], f.articles[i+1:]...)
			f.dropMemberships(func(m remote.MembershipRow) bool { return m.ArticleID == cloudID })
			f.writes++

			return true, nil
		}
	}

	return false, nil
}

func (f *fakeBackend) DeleteList(_ context.Context, cloudID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, l := range f.lists {
		if l.ID == cloudID {
			f.lists = append(f.lists[:i], f.lists[i+1:]...)
			f.dropMemberships(func(m remote.MembershipRow) bool { return m.ListID == cloudID })
			f.writes++

			return true, nil
		}
	}

	return false, nil
}

func (f *fakeBackend) DeleteMembership(_ context.Context, articleCloudID, listCloudID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	before := len(f.memberships)
	f.dropMemberships(func(m remote.MembershipRow) bool {
		return m.ArticleID == articleCloudID && m.ListID == listCloudID
	})

	if len(f.memberships) == before {
		return false, nil
	}

	f.writes++

	return true, nil
}

func (f *fakeBackend) dropMemberships(match func(remote.MembershipRow) bool) {
	kept := f.memberships[:0]
	for _, m := range f.memberships {
		if !match(m) {
			kept = append(kept, m)
		}
	}

	f.memberships = kept
}

func (f *fakeBackend) ListArticles(_ context.Context, userID string) ([]remote.ArticleRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []remote.ArticleRow
	for _, a := range f.articles {
		if a.UserID == userID {
			out = append(out, a)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt.Time) })

	return out, nil
}

func (f *fakeBackend) ListLists(_ context.Context, userID string) ([]remote.ListRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []remote.ListRow
	for _, l := range f.lists {
		if l.UserID == userID {
			out = append(out, l)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt.Time) })

	return out, nil
}

func (f *fakeBackend) ListMemberships(_ context.Context, userID string) ([]remote.MembershipRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	owned := make(map[string]bool)
	for _, a := range f.articles {
		if a.UserID == userID {
			owned[a.ID] = true
		}
	}

	var out []remote.MembershipRow
	for _, m := range f.memberships {
		if owned[m.ArticleID] {
			out = append(out, m)
		}
	}

	return out, nil
}

// seedArticle stores a row directly, as another client would.
func (f *fakeBackend) seedArticle(row remote.ArticleRow) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if row.UserID == "" {
		row.UserID = testUser
	}

	f.articles = append(f.articles, row)
}

func (f *fakeBackend) seedList(row remote.ListRow) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if row.UserID == "" {
		row.UserID = testUser
	}

	f.lists = append(f.lists, row)
}

func (f *fakeBackend) seedMembership(articleID, listID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.memberships = append(f.memberships, remote.MembershipRow{ArticleID: articleID, ListID: listID})
}

func (f *fakeBackend) article(id string) *remote.ArticleRow {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, a := range f.articles {
		if a.ID == id {
			out := a
			return &out
		}
	}

	return nil
}

func (f *fakeBackend) counts() (articles, lists, memberships, writes int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.articles), len(f.lists), len(f.memberships), f.writes
}

// testClock is a settable clock for dedup tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.EnsureDefaultLists(t0)
	require.NoError(t, err)

	return s
}

// newTestEngine returns an engine with an active session and no
// realtime feed.
func newTestEngine(t *testing.T, r Remote) (*Engine, *store.Store, *testClock) {
	t.Helper()

	s := testStore(t)
	clock := &testClock{now: t0}

	e := New(Config{Store: s, Remote: r, Now: clock.Now})
	require.NoError(t, e.Start(context.Background(), remote.Session{UserID: testUser, AccessToken: "token"}))
	t.Cleanup(e.Stop)

	return e, s, clock
}

func localArticle(url string, updated time.Time) models.Article {
	return models.Article{
		URL:         url,
		Title:       "Title of " + url,
		Publication: "Example",
		ReadingTime: 4,
		Tags:        []string{"go"},
		CreatedAt:   t0,
		UpdatedAt:   updated,
	}
}

func remoteArticle(id, url string, updated time.Time) remote.ArticleRow {
	return remote.ArticleRow{
		ID:          id,
		UserID:      testUser,
		URL:         url,
		Title:       "Remote " + url,
		Publication: "Remote",
		ReadingTime: 6,
		Tags:        []string{"remote"},
		CreatedAt:   remote.Timestamp{Time: t0},
		UpdatedAt:   remote.Timestamp{Time: updated},
	}
}

func mustPutArticle(t *testing.T, s *store.Store, a models.Article) int64 {
	t.Helper()

	id, err := s.PutArticle(a)
	require.NoError(t, err)

	return id
}

func mustPutList(t *testing.T, s *store.Store, name string) int64 {
	t.Helper()

	id, err := s.PutList(models.List{Name: name, CreatedAt: t0})
	require.NoError(t, err)

	return id
}

func mustGetArticle(t *testing.T, s *store.Store, id int64) *models.Article {
	t.Helper()

	a, err := s.Article(id)
	require.NoError(t, err)

	return a
}

// change builds a realtime event with JSON encoded records. A nil
// record is sent as an empty object.
func change(typ remote.EventType, table string, rec, old any) remote.Change {
	enc := func(v any) json.RawMessage {
		if v == nil {
			return json.RawMessage(`{}`)
		}

		b, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}

		return b
	}

	return remote.Change{Type: typ, Table: table, Record: enc(rec), OldRecord: enc(old)}
}
