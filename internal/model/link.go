package model

import "strings"

// contextSeparator joins provenance strings when two sightings of the
// same URL are merged.
const contextSeparator = " | "

// Link is a crawl candidate: a URL plus the provenance that makes it
// rankable. ParentContext describes where the link was found (the search
// query for seeds, the chained context of ancestor pages for extracted
// links); Snippet is the text immediately around the link on the page it
// was found on.
//
// The JSON tags define the snapshot wire format, so renaming a field is
// a breaking change for saved snapshots.
type Link struct {
	// URL is the absolute URL of the candidate page.
	URL string `json:"url"`

	// ParentContext describes the path that led to this link.
	ParentContext string `json:"parent_context"`

	// Snippet is the surrounding text from the page the link appeared on.
	Snippet string `json:"snippet"`
}

// Merge folds another sighting of the same URL into this link.
// Context from the other sighting is appended with a " | " separator
// unless it is already contained in the existing value; this keeps
// repeated discoveries from inflating the context with duplicates while
// still accumulating genuinely new provenance.
func (l *Link) Merge(other Link) {
	l.ParentContext = mergeContext(l.ParentContext, other.ParentContext)
	l.Snippet = mergeContext(l.Snippet, other.Snippet)
}

// mergeContext combines two provenance strings per the merge rule.
func mergeContext(existing, incoming string) string {
	if incoming == "" {
		return existing
	}
	if existing == "" {
		return incoming
	}
	if strings.Contains(existing, incoming) {
		return existing
	}
	return existing + contextSeparator + incoming
}

// DedupeLinks merges links that share a URL, preserving first-seen order.
// Later sightings contribute their context to the first via Merge.
func DedupeLinks(links []Link) []Link {
	index := make(map[string]int, len(links))
	result := make([]Link, 0, len(links))
	for _, link := range links {
		if i, ok := index[link.URL]; ok {
			result[i].Merge(link)
			continue
		}
		index[link.URL] = len(result)
		result = append(result, link)
	}
	return result
}
