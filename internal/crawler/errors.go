package crawler

import "fmt"

// ExhaustionError reports a crawl where every attempted fetch failed.
// It distinguishes "the selected links were all dead" (recoverable by
// replanning with different queries) from a crawl that simply found
// nothing worth fetching, which is not an error at all.
type ExhaustionError struct {
	// Attempted is how many links were selected and tried.
	Attempted int
}

// Error implements the error interface.
func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("crawl exhausted: all %d attempted fetches failed", e.Attempted)
}
