// Package planner turns the research topic into a structured plan: the
// search queries to run and the key areas the final answer must cover.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nao1215/deepresearch/internal/llm"
	"github.com/nao1215/deepresearch/internal/model"
)

// MaxQueryWords is the upper bound on words per search query.
// Search engines truncate or mishandle longer queries, and a query this
// long usually means the model wrote a sentence instead of a query.
const MaxQueryWords = 15

// ErrEmptyPlan is returned when the model produced no usable search
// queries at all.
var ErrEmptyPlan = errors.New("plan contains no usable search queries")

// ErrMalformedPlan is returned when the plan response is not JSON.
var ErrMalformedPlan = errors.New("plan response is not a JSON object")

// systemPrompt frames the planning task.
const systemPrompt = `You are a research planner. Given a research topic, produce a research
plan as a JSON object with exactly these keys:

  "search_queries":    3-6 web search queries, each UNDER 15 words
  "key_areas":         the thematic areas a complete answer must cover
  "important_aspects": finer-grained points worth special attention
  "target_sources":    the kinds of sources to prioritize

Queries should be the kind a skilled researcher types into a search
engine: specific, keyword-dense, no full sentences.

Respond with ONLY the JSON object.`

// Planner generates research plans through the LLM.
type Planner struct {
	completer llm.Completer
	logger    *slog.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger for planning diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Planner over the given completer.
func New(completer llm.Completer, opts ...Option) *Planner {
	p := &Planner{
		completer: completer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate produces a validated plan for the topic.
// Over-long queries are dropped rather than failing the plan; the run
// fails only when no valid query survives.
func (p *Planner) Generate(ctx context.Context, topic string) (*model.Plan, error) {
	response, err := p.completer.Complete(ctx, systemPrompt, "Research topic:\n"+topic)
	if err != nil {
		return nil, fmt.Errorf("plan request failed: %w", err)
	}

	plan, err := parsePlan(response)
	if err != nil {
		return nil, err
	}

	valid := make([]string, 0, len(plan.SearchQueries))
	for _, query := range plan.SearchQueries {
		query = strings.TrimSpace(query)
		if query == "" {
			continue
		}
		if len(strings.Fields(query)) >= MaxQueryWords {
			p.logger.Warn("dropping over-long search query", "query", query)
			continue
		}
		valid = append(valid, query)
	}
	if len(valid) == 0 {
		return nil, ErrEmptyPlan
	}
	plan.SearchQueries = valid

	p.logger.Info("plan generated",
		"queries", len(plan.SearchQueries), "key_areas", len(plan.KeyAreas))
	return plan, nil
}

// parsePlan decodes the model's response, tolerating prose around the
// JSON object.
func parsePlan(response string) (*model.Plan, error) {
	var plan model.Plan
	if err := json.Unmarshal([]byte(response), &plan); err == nil {
		return &plan, nil
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(response[start:end+1]), &plan); err == nil {
			return &plan, nil
		}
	}

	return nil, fmt.Errorf("%w: %.120q", ErrMalformedPlan, response)
}
