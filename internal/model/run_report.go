package model

import "time"

// SourceOutcome describes how a source ended up in the run report.
type SourceOutcome string

// Source outcomes.
const (
	// OutcomeFetched means the page was fetched from the network.
	OutcomeFetched SourceOutcome = "fetched"

	// OutcomeCached means the page was served from the local cache.
	OutcomeCached SourceOutcome = "cached"

	// OutcomeFailed means the fetch was attempted but failed.
	OutcomeFailed SourceOutcome = "failed"
)

// Source is one consulted URL in a run report.
type Source struct {
	// URL is the page address.
	URL string `json:"url"`

	// Title is the page title, empty for failed fetches.
	Title string `json:"title,omitempty"`

	// ContentType is "html" or "pdf", empty for failed fetches.
	ContentType string `json:"content_type,omitempty"`

	// Outcome records how the fetch ended.
	Outcome SourceOutcome `json:"outcome"`
}

// RunReport summarizes one research run for the sources report.
type RunReport struct {
	// Topic is the research topic from the working directory.
	Topic string `json:"topic"`

	// GeneratedAt is when the report was built.
	GeneratedAt time.Time `json:"generated_at"`

	// Iteration is the final search iteration of the run.
	Iteration int `json:"iteration"`

	// Attempted is the number of fetches counted against the budget.
	Attempted int `json:"attempted"`

	// Sources lists every consulted URL with its outcome.
	Sources []Source `json:"sources"`

	// FailedURLs lists the URLs whose fetch failed.
	FailedURLs []string `json:"failed_urls,omitempty"`
}

// NewRunReport builds a report from the crawl output of a run.
func NewRunReport(topic string, iteration int, set *DownloadSet) *RunReport {
	report := &RunReport{
		Topic:       topic,
		GeneratedAt: time.Now(),
		Iteration:   iteration,
	}
	if set == nil {
		return report
	}

	report.Attempted = set.Attempted
	report.FailedURLs = set.FailedURLs
	for _, result := range set.Results {
		outcome := OutcomeFetched
		switch {
		case !result.Success:
			outcome = OutcomeFailed
		case result.FromCache:
			outcome = OutcomeCached
		}
		report.Sources = append(report.Sources, Source{
			URL:         result.URL,
			Title:       result.Title,
			ContentType: result.ContentType,
			Outcome:     outcome,
		})
	}
	return report
}

// Succeeded returns the number of successfully fetched sources.
func (r *RunReport) Succeeded() int {
	var n int
	for _, s := range r.Sources {
		if s.Outcome != OutcomeFailed {
			n++
		}
	}
	return n
}

// CachedCount returns the number of sources served from the cache.
func (r *RunReport) CachedCount() int {
	var n int
	for _, s := range r.Sources {
		if s.Outcome == OutcomeCached {
			n++
		}
	}
	return n
}

// Failed returns the number of failed fetches.
func (r *RunReport) Failed() int {
	return len(r.FailedURLs)
}

// HasFailures reports whether any fetch failed during the run.
func (r *RunReport) HasFailures() bool {
	return len(r.FailedURLs) > 0
}
