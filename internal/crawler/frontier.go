package crawler

import "github.com/nao1215/deepresearch/internal/model"

// Frontier is the ordered arena of crawl candidates. Links keep their
// admission order, and re-adding a URL merges the new sighting's context
// into the existing entry instead of duplicating it.
//
// The frontier never forgets: fetched links stay in the arena (the
// engine tracks processing separately), so the pending residue can be
// reported at the end of a crawl.
type Frontier struct {
	// links is the arena in admission order.
	links []model.Link

	// index maps URL to arena position.
	index map[string]int
}

// NewFrontier creates an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{index: make(map[string]int)}
}

// Add admits a link, or merges its context into the existing entry when
// the URL is already present. Reports whether a new entry was created.
func (f *Frontier) Add(link model.Link) bool {
	if i, ok := f.index[link.URL]; ok {
		f.links[i].Merge(link)
		return false
	}
	f.index[link.URL] = len(f.links)
	f.links = append(f.links, link)
	return true
}

// Contains reports whether the URL is in the arena.
func (f *Frontier) Contains(url string) bool {
	_, ok := f.index[url]
	return ok
}

// Get returns the current entry for url.
func (f *Frontier) Get(url string) (model.Link, bool) {
	i, ok := f.index[url]
	if !ok {
		return model.Link{}, false
	}
	return f.links[i], true
}

// Len returns the number of entries in the arena.
func (f *Frontier) Len() int {
	return len(f.links)
}

// Links returns a copy of the arena in admission order.
func (f *Frontier) Links() []model.Link {
	out := make([]model.Link, len(f.links))
	copy(out, f.links)
	return out
}
