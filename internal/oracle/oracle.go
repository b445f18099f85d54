// Package oracle implements the relevance oracle: an LLM-backed ranker
// that decides which frontier links are worth downloading next. The
// oracle speaks a narrow wire format (a JSON array of candidate
// indices) and the package is deliberately forgiving about everything
// except a completely unparsable response.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nao1215/deepresearch/internal/llm"
	"github.com/nao1215/deepresearch/internal/model"
)

// DefaultMaxSelect caps how many candidates one ranking round may pick.
const DefaultMaxSelect = 10

// ErrMalformedResponse is returned when the oracle's response cannot be
// parsed as a JSON array at all. Callers treat this as "stop expanding"
// rather than a run failure.
var ErrMalformedResponse = errors.New("oracle response is not a JSON array of indices")

// systemPrompt frames the ranking task. The response contract is spelled
// out twice because models follow formats better when reminded at the end.
const systemPrompt = `You are a research assistant deciding which web links to download next.
You will be given a research topic and a numbered list of candidate links,
each with the context it was discovered in and a text snippet.

Select the links most likely to contain substantive information about the
research topic. Prefer primary sources, documentation, and in-depth
articles over index pages, login pages, and advertising.

Respond with ONLY a JSON array of the selected candidate numbers, most
relevant first, e.g. [3, 0, 7]. Select at most %d. Do not explain.`

// Oracle ranks crawl candidates for relevance to a research topic.
type Oracle struct {
	completer llm.Completer
	topic     string
	maxSelect int
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithMaxSelect caps the selections per ranking round.
// Values below one are ignored.
func WithMaxSelect(n int) Option {
	return func(o *Oracle) {
		if n >= 1 {
			o.maxSelect = n
		}
	}
}

// New creates an Oracle ranking candidates against the given topic.
func New(completer llm.Completer, topic string, opts ...Option) *Oracle {
	o := &Oracle{
		completer: completer,
		topic:     topic,
		maxSelect: DefaultMaxSelect,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Rank asks the oracle to pick the most relevant candidates and returns
// their indices into the candidates slice, most relevant first.
//
// The response contract is a JSON array of integers. Non-integer
// elements, out-of-range indices, and duplicates are dropped silently;
// at most maxSelect indices are returned. An empty array is a valid
// "nothing is worth fetching" answer. Only a response that cannot be
// parsed as an array at all yields ErrMalformedResponse.
func (o *Oracle) Rank(ctx context.Context, candidates []model.Link) ([]int, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	response, err := o.completer.Complete(ctx,
		fmt.Sprintf(systemPrompt, o.maxSelect),
		o.buildPrompt(candidates),
	)
	if err != nil {
		return nil, fmt.Errorf("oracle request failed: %w", err)
	}

	return o.parseSelection(response, len(candidates))
}

// buildPrompt renders the topic and the numbered candidate list.
func (o *Oracle) buildPrompt(candidates []model.Link) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research topic:\n%s\n\nCandidate links:\n", o.topic)
	for i, link := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i, link.URL)
		if link.ParentContext != "" {
			fmt.Fprintf(&b, "   found via: %s\n", link.ParentContext)
		}
		if link.Snippet != "" {
			fmt.Fprintf(&b, "   snippet: %s\n", link.Snippet)
		}
	}
	return b.String()
}

// parseSelection extracts valid candidate indices from the response.
func (o *Oracle) parseSelection(response string, candidateCount int) ([]int, error) {
	raw, err := parseJSONArray(response)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(raw))
	selected := make([]int, 0, o.maxSelect)
	for _, element := range raw {
		index, ok := asIndex(element)
		if !ok || index < 0 || index >= candidateCount || seen[index] {
			continue
		}
		seen[index] = true
		selected = append(selected, index)
		if len(selected) == o.maxSelect {
			break
		}
	}
	return selected, nil
}

// parseJSONArray parses the response as a JSON array, falling back to
// the outermost bracketed span when the model wrapped the array in prose.
func parseJSONArray(response string) ([]any, error) {
	var raw []any
	if err := json.Unmarshal([]byte(response), &raw); err == nil {
		return raw, nil
	}

	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err == nil {
			return raw, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrMalformedResponse, truncate(response, 120))
}

// asIndex converts a decoded JSON element to an integer index.
// JSON numbers decode as float64; only whole values count as integers.
func asIndex(element any) (int, bool) {
	f, ok := element.(float64)
	if !ok {
		return 0, false
	}
	if f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// truncate shortens s for inclusion in an error message.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
