package model

// Plan is the research plan produced by the planner from the topic
// statement. It drives the search stage (SearchQueries) and the
// summarization stage (KeyAreas).
type Plan struct {
	// SearchQueries are the web search queries to run, in order.
	// A valid plan has at least one, each under fifteen words.
	SearchQueries []string `json:"search_queries"`

	// KeyAreas are the thematic areas the final answer must cover.
	KeyAreas []string `json:"key_areas"`

	// ImportantAspects are finer-grained points worth attention during
	// summarization.
	ImportantAspects []string `json:"important_aspects"`

	// TargetSources describe the kinds of sources worth prioritizing
	// (documentation, papers, benchmarks). Informational only.
	TargetSources []string `json:"target_sources"`
}
