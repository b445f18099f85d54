package crawler

import (
	"testing"

	"github.com/nao1215/deepresearch/internal/model"
)

// TestFrontier tests arena ordering and merge-on-add.
func TestFrontier(t *testing.T) {
	t.Parallel()

	t.Run("preserves admission order", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier()
		for _, u := range []string{"https://c.test", "https://a.test", "https://b.test"} {
			if !f.Add(model.Link{URL: u}) {
				t.Errorf("expected %s to be a new entry", u)
			}
		}

		links := f.Links()
		if len(links) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(links))
		}
		if links[0].URL != "https://c.test" || links[2].URL != "https://b.test" {
			t.Errorf("admission order not preserved: %v", links)
		}
	})

	t.Run("re-add merges context instead of duplicating", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier()
		f.Add(model.Link{URL: "https://a.test", ParentContext: "first"})
		if f.Add(model.Link{URL: "https://a.test", ParentContext: "second"}) {
			t.Error("expected re-add to merge, not create")
		}

		if f.Len() != 1 {
			t.Fatalf("expected 1 entry, got %d", f.Len())
		}
		link, ok := f.Get("https://a.test")
		if !ok {
			t.Fatal("expected entry to exist")
		}
		if link.ParentContext != "first | second" {
			t.Errorf("expected merged context, got %q", link.ParentContext)
		}
	})

	t.Run("contains and get", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier()
		f.Add(model.Link{URL: "https://a.test"})

		if !f.Contains("https://a.test") {
			t.Error("expected Contains to find admitted URL")
		}
		if f.Contains("https://missing.test") {
			t.Error("expected Contains to miss unknown URL")
		}
		if _, ok := f.Get("https://missing.test"); ok {
			t.Error("expected Get to miss unknown URL")
		}
	})

	t.Run("links returns a copy", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier()
		f.Add(model.Link{URL: "https://a.test", ParentContext: "original"})

		links := f.Links()
		links[0].ParentContext = "mutated"

		stored, _ := f.Get("https://a.test")
		if stored.ParentContext != "original" {
			t.Error("mutating the returned slice must not affect the arena")
		}
	})
}
