package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestStorePutGet tests the basic round trip through a bucket.
func TestStorePutGet(t *testing.T) {
	t.Parallel()

	t.Run("returns stored data", func(t *testing.T) {
		t.Parallel()

		store := New(t.TempDir())
		store.Put("content", URLKey("https://example.com/page"), []byte("page text"))

		data, ok := store.Get("content", URLKey("https://example.com/page"))
		if !ok {
			t.Fatal("expected cache hit")
		}
		if string(data) != "page text" {
			t.Errorf("got %q, want %q", data, "page text")
		}
	})

	t.Run("miss for absent key", func(t *testing.T) {
		t.Parallel()

		store := New(t.TempDir())
		if _, ok := store.Get("content", "nothing"); ok {
			t.Error("expected miss for absent key")
		}
	})

	t.Run("buckets are isolated", func(t *testing.T) {
		t.Parallel()

		store := New(t.TempDir())
		store.Put("search", "key", []byte("search data"))

		if _, ok := store.Get("content", "key"); ok {
			t.Error("expected miss in a different bucket")
		}
	})

	t.Run("put overwrites previous entry", func(t *testing.T) {
		t.Parallel()

		store := New(t.TempDir())
		store.Put("content", "key", []byte("old"))
		store.Put("content", "key", []byte("new"))

		data, ok := store.Get("content", "key")
		if !ok {
			t.Fatal("expected cache hit")
		}
		if string(data) != "new" {
			t.Errorf("got %q, want %q", data, "new")
		}
	})
}

// TestStoreTTL tests mtime-based expiry evaluated at read time.
func TestStoreTTL(t *testing.T) {
	t.Parallel()

	t.Run("fresh entry within TTL is a hit", func(t *testing.T) {
		t.Parallel()

		store := New(t.TempDir(), WithTTL(time.Hour))
		store.Put("content", "key", []byte("data"))

		if _, ok := store.Get("content", "key"); !ok {
			t.Error("expected hit for fresh entry")
		}
	})

	t.Run("entry older than TTL is a miss", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		store := New(dir, WithTTL(time.Hour))
		store.Put("content", "key", []byte("data"))

		// Age the entry past the TTL by backdating its mtime
		stale := time.Now().Add(-2 * time.Hour)
		path := filepath.Join(dir, "content", "key")
		if err := os.Chtimes(path, stale, stale); err != nil {
			t.Fatalf("failed to backdate entry: %v", err)
		}

		if _, ok := store.Get("content", "key"); ok {
			t.Error("expected miss for expired entry")
		}
	})

	t.Run("expired entry revives after overwrite", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		store := New(dir, WithTTL(time.Hour))
		store.Put("content", "key", []byte("old"))

		stale := time.Now().Add(-2 * time.Hour)
		path := filepath.Join(dir, "content", "key")
		if err := os.Chtimes(path, stale, stale); err != nil {
			t.Fatalf("failed to backdate entry: %v", err)
		}

		store.Put("content", "key", []byte("fresh"))
		data, ok := store.Get("content", "key")
		if !ok {
			t.Fatal("expected hit after overwrite")
		}
		if string(data) != "fresh" {
			t.Errorf("got %q, want %q", data, "fresh")
		}
	})
}

// TestStoreAge tests the Age helper.
func TestStoreAge(t *testing.T) {
	t.Parallel()

	t.Run("reports age for existing entry", func(t *testing.T) {
		t.Parallel()

		store := New(t.TempDir())
		store.Put("content", "key", []byte("data"))

		age, ok := store.Age("content", "key")
		if !ok {
			t.Fatal("expected age for existing entry")
		}
		if age < 0 || age > time.Minute {
			t.Errorf("unexpected age %v", age)
		}
	})

	t.Run("absent entry has no age", func(t *testing.T) {
		t.Parallel()

		store := New(t.TempDir())
		if _, ok := store.Age("content", "missing"); ok {
			t.Error("expected no age for absent entry")
		}
	})
}

// TestURLKey tests that URL keys are filesystem safe.
func TestURLKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
	}{
		{name: "path separators", url: "https://example.com/a/b/c"},
		{name: "query string", url: "https://example.com/search?q=go&page=2"},
		{name: "parent traversal", url: "https://example.com/../../etc/passwd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			key := URLKey(tt.url)
			if strings.ContainsAny(key, "/\\") {
				t.Errorf("key %q contains a path separator", key)
			}
		})
	}
}

// TestHashKey tests hex hash key properties.
func TestHashKey(t *testing.T) {
	t.Parallel()

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()

		if HashKey("prompt") != HashKey("prompt") {
			t.Error("expected identical keys for identical content")
		}
	})

	t.Run("distinct content gives distinct keys", func(t *testing.T) {
		t.Parallel()

		if HashKey("prompt a") == HashKey("prompt b") {
			t.Error("expected distinct keys for distinct content")
		}
	})

	t.Run("fixed length hex", func(t *testing.T) {
		t.Parallel()

		key := HashKey("anything at all")
		if len(key) != 64 {
			t.Errorf("expected 64 hex chars, got %d", len(key))
		}
	})
}
