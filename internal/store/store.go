// Package store is the local record store for articles, lists and
// article-list memberships. Records are JSON documents in bbolt
// buckets keyed by a big-endian local id, with separate buckets acting
// as unique indexes on natural keys and cloud ids.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	apperrors "github.com/alexjbarnes/marginalio/internal/errors"
	bolt "go.etcd.io/bbolt"
)

const (
	// storeDirPerm is the permission mode for the database directory.
	storeDirPerm = fs.FileMode(0o700)

	// storeFilePerm is the permission mode for the database file.
	storeFilePerm = fs.FileMode(0o600)

	// storeOpenTimeout is the maximum time to wait for the bolt file lock.
	storeOpenTimeout = 5 * time.Second
)

var (
	metaBucket = []byte("meta")
	appBucket  = []byte("app")

	schemaVersionKey = []byte("schema_version")
	tokenKey         = []byte("token")

	articlesBucket    = []byte("articles")
	listsBucket       = []byte("lists")
	membershipsBucket = []byte("article_lists")

	articleURLIndex   = []byte("idx:articles:url")
	articleCloudIndex = []byte("idx:articles:cloud")
	listNameIndex     = []byte("idx:lists:name")
	listCloudIndex    = []byte("idx:lists:cloud")

	// membershipPairIndex keys are articleID|listID, membershipListIndex
	// keys are listID|articleID. Both map to the membership id and give
	// prefix scans in either direction.
	membershipPairIndex = []byte("idx:article_lists:pair")
	membershipListIndex = []byte("idx:article_lists:list")
)

// Table identifies a record kind. Values are bit flags so a set of
// touched tables fits in one Table.
type Table uint8

const (
	Articles Table = 1 << iota
	Lists
	Memberships
)

// AllTables is the union of every table.
const AllTables = Articles | Lists | Memberships

// Has reports whether any table in o is also in t.
func (t Table) Has(o Table) bool {
	return t&o != 0
}

func (t Table) String() string {
	var names []string
	if t.Has(Articles) {
		names = append(names, "articles")
	}

	if t.Has(Lists) {
		names = append(names, "lists")
	}

	if t.Has(Memberships) {
		names = append(names, "article_lists")
	}

	return strings.Join(names, ",")
}

// Store wraps a bbolt database. It is safe for concurrent use; bbolt
// serialises writers and every operation is a single transaction.
type Store struct {
	db *bolt.DB

	mu        sync.Mutex
	observers map[int]func(Table)
	nextObs   int
}

// Open opens the library database at path, creating it if needed, and
// applies any pending schema migrations before returning.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), storeDirPerm); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := bolt.Open(path, storeFilePerm, &bolt.Options{Timeout: storeOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}

	if err := db.Update(migrate); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating store db: %w", err)
	}

	return &Store{db: db, observers: make(map[int]func(Table))}, nil
}

// DefaultPath returns ~/.marginalio/library.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".marginalio", "library.db"), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the applied schema version.
func (s *Store) SchemaVersion() (uint64, error) {
	var v uint64

	err := s.db.View(func(tx *bolt.Tx) error {
		v = readSchemaVersion(tx)
		return nil
	})

	return v, err
}

// Observe registers fn to be called after every committed write with
// the set of tables the write touched. The returned func unregisters.
// fn runs on the writer's goroutine after the write lock is released
// and must not block.
func (s *Store) Observe(fn func(Table)) (cancel func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(t Table) {
	s.mu.Lock()
	fns := make([]func(Table), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(t)
	}
}

// write runs fn in a read-write transaction and notifies observers of
// touched once it commits.
func (s *Store) write(touched Table, fn func(tx *bolt.Tx) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}

		tx.OnCommit(func() { s.notify(touched) })

		return nil
	})
}

// Token returns the cached remote access token, or empty string.
func (s *Store) Token() string {
	var token string

	_ = s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(appBucket).Get(tokenKey); v != nil {
			token = string(v)
		}

		return nil
	})

	return token
}

// SetToken persists the remote access token.
func (s *Store) SetToken(token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put(tokenKey, []byte(token))
	})
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))

	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func pairKey(a, b int64) []byte {
	k := make([]byte, 16)
	binary.BigEndian.PutUint64(k[:8], uint64(a))
	binary.BigEndian.PutUint64(k[8:], uint64(b))

	return k
}

func getRecord(b *bolt.Bucket, id int64, v any) error {
	data := b.Get(itob(id))
	if data == nil {
		return apperrors.ErrNotFound
	}

	return json.Unmarshal(data, v)
}

func putRecord(b *bolt.Bucket, id int64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return b.Put(itob(id), data)
}

// lookup resolves a unique index key to a local id, or 0.
func lookup(tx *bolt.Tx, index []byte, key string) int64 {
	if key == "" {
		return 0
	}

	v := tx.Bucket(index).Get([]byte(key))
	if v == nil {
		return 0
	}

	return btoi(v)
}

func forEachRecord[T any](b *bolt.Bucket, fn func(T) error) error {
	return b.ForEach(func(_, v []byte) error {
		var rec T
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}

		return fn(rec)
	})
}
