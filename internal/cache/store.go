package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// DefaultTTL is the cache entry lifetime used when no option overrides it.
const DefaultTTL = 24 * time.Hour

// dirPerm is the permission for created cache directories.
const dirPerm = 0750

// filePerm is the permission for cache entry files.
const filePerm = 0600

// Store is a file-backed cache under a single root directory, organized
// into buckets (one subdirectory per concern: fetched pages, search
// results, LLM responses). Entries expire by file modification time,
// evaluated at read time; nothing ever deletes expired files, they are
// simply overwritten by the next Put.
//
// Design decision: every failure mode degrades to a miss (Get) or a
// no-op (Put). The cache is an optimization, never a correctness
// dependency, so a full disk or permission problem must not fail a run.
type Store struct {
	// root is the cache root directory.
	root string

	// ttl is how long entries stay valid.
	ttl time.Duration

	// now returns the current time; replaceable for tests.
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the entry lifetime. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// New creates a Store rooted at dir. The directory is created lazily on
// first Put, so constructing a Store never touches the filesystem.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		root: dir,
		ttl:  DefaultTTL,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// URLKey converts a URL into a filesystem-safe cache key.
// Query escaping keeps the key loosely human-readable while guaranteeing
// no path separators survive.
func URLKey(rawURL string) string {
	return url.QueryEscape(rawURL)
}

// HashKey converts arbitrary content into a fixed-length hex cache key.
// Used for LLM prompts and search queries, whose raw text is too long or
// too hostile for a filename.
func HashKey(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached entry for key in bucket, or ok=false when the
// entry is absent, expired, or unreadable. Expiry is judged against the
// file's modification time at the moment of the read.
func (s *Store) Get(bucket, key string) ([]byte, bool) {
	path := s.entryPath(bucket, key)

	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if s.now().Sub(info.ModTime()) > s.ttl {
		return nil, false
	}

	data, err := os.ReadFile(path) //nolint:gosec // Path is derived from our own key encoding
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores data under key in bucket, overwriting any previous entry.
// Failures are silently ignored; the cache must never fail a run.
func (s *Store) Put(bucket, key string, data []byte) {
	dir := filepath.Join(s.root, bucket)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return
	}
	_ = os.WriteFile(s.entryPath(bucket, key), data, filePerm)
}

// Age returns how old the entry for key is, or ok=false when absent.
// Useful for surfacing cache freshness in reports.
func (s *Store) Age(bucket, key string) (time.Duration, bool) {
	info, err := os.Stat(s.entryPath(bucket, key))
	if err != nil {
		return 0, false
	}
	return s.now().Sub(info.ModTime()), true
}

// entryPath builds the file path for a bucket/key pair.
func (s *Store) entryPath(bucket, key string) string {
	return filepath.Join(s.root, bucket, key)
}
