// Package summarizer produces the final research answer from the
// content index.
//
// The summarizer retrieves the chunks most relevant to each key area of
// the plan, groups them by source URL, and feeds them to the model in
// budget-sized batches. The answer is rewritten after each batch, so
// answer.md always holds the best draft even if a later request fails.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/nao1215/deepresearch/internal/indexer"
	"github.com/nao1215/deepresearch/internal/llm"
	"github.com/nao1215/deepresearch/internal/model"
	"github.com/nao1215/deepresearch/internal/workspace"
)

// DefaultChunksPerArea is the number of index chunks retrieved per key
// area of the plan.
const DefaultChunksPerArea = 8

// requestTokenBudget caps the estimated size of one summarization
// request. Staying well under the model's context window leaves room
// for the system prompt and the current draft.
const requestTokenBudget = 8000

// filePerm is the permission for the written answer file.
const filePerm = 0600

// ErrNoExcerpts is returned when retrieval finds nothing to summarize.
var ErrNoExcerpts = errors.New("no relevant content found in the index")

// systemPrompt frames the answer-writing task.
const systemPrompt = `You are a research writer. You receive a research topic, the key areas a
complete answer must cover, excerpts from web sources, and possibly an
existing draft answer.

Write a thorough, well-structured markdown answer to the research topic.
Ground every claim in the provided excerpts and cite sources by URL.
When a draft is provided, revise and extend it with the new excerpts
instead of starting over; keep everything in the draft that the new
excerpts do not contradict.

Respond with ONLY the markdown answer.`

// Retriever finds index chunks relevant to a query.
// *indexer.Indexer satisfies it.
type Retriever interface {
	SearchSimilar(ctx context.Context, query string, k int) ([]indexer.ScoredChunk, error)
}

// Summarizer writes the final answer from retrieved excerpts.
type Summarizer struct {
	ws            *workspace.Workspace
	completer     llm.Completer
	retriever     Retriever
	chunksPerArea int
	logger        *slog.Logger
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithChunksPerArea sets how many chunks are retrieved per key area.
func WithChunksPerArea(k int) Option {
	return func(s *Summarizer) {
		if k > 0 {
			s.chunksPerArea = k
		}
	}
}

// WithLogger sets the logger for summarization diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Summarizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Summarizer over the given workspace, completer, and
// retriever.
func New(ws *workspace.Workspace, completer llm.Completer, retriever Retriever, opts ...Option) *Summarizer {
	s := &Summarizer{
		ws:            ws,
		completer:     completer,
		retriever:     retriever,
		chunksPerArea: DefaultChunksPerArea,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// sourceExcerpts is the retrieved text for one URL.
type sourceExcerpts struct {
	url   string
	title string
	texts []string
}

// Summarize writes answer.md for the topic and plan and returns the
// final answer text. A previous answer is removed before the first
// request so a failed run cannot leave a stale answer in place.
func (s *Summarizer) Summarize(ctx context.Context, plan *model.Plan) (string, error) {
	topic, err := s.ws.Topic()
	if err != nil {
		return "", err
	}

	areas := plan.KeyAreas
	if len(areas) == 0 {
		areas = []string{topic}
	}

	sources, err := s.gatherExcerpts(ctx, areas)
	if err != nil {
		return "", err
	}
	if len(sources) == 0 {
		return "", ErrNoExcerpts
	}

	// Stale output from an earlier run must not survive a failure below
	answerPath := s.ws.Path(workspace.AnswerFile)
	if err := os.Remove(answerPath); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to remove previous answer: %w", err)
	}

	batches := packBatches(sources, requestTokenBudget)
	s.logger.Info("summarizing retrieved content",
		"sources", len(sources), "batches", len(batches))

	var answer string
	for n, batch := range batches {
		prompt := buildPrompt(topic, areas, answer, batch)

		answer, err = s.completer.Complete(ctx, systemPrompt, prompt)
		if err != nil {
			return "", fmt.Errorf("summarization request %d failed: %w", n+1, err)
		}

		// Write after every batch so progress survives a later failure
		if err := os.WriteFile(answerPath, []byte(answer+"\n"), filePerm); err != nil {
			return "", fmt.Errorf("failed to write answer: %w", err)
		}
	}

	return answer, nil
}

// gatherExcerpts retrieves chunks for every key area and groups them by
// source URL, keeping retrieval order and dropping duplicate chunks.
func (s *Summarizer) gatherExcerpts(ctx context.Context, areas []string) ([]*sourceExcerpts, error) {
	seen := make(map[int]bool)
	byURL := make(map[string]*sourceExcerpts)
	var order []*sourceExcerpts

	for _, area := range areas {
		hits, err := s.retriever.SearchSimilar(ctx, area, s.chunksPerArea)
		if err != nil {
			return nil, fmt.Errorf("retrieval for %q failed: %w", area, err)
		}

		for _, hit := range hits {
			if seen[hit.Chunk.ID] {
				continue
			}
			seen[hit.Chunk.ID] = true

			source, ok := byURL[hit.Chunk.URL]
			if !ok {
				source = &sourceExcerpts{url: hit.Chunk.URL, title: hit.Chunk.Title}
				byURL[hit.Chunk.URL] = source
				order = append(order, source)
			}
			source.texts = append(source.texts, hit.Chunk.Text)
		}
	}
	return order, nil
}

// render formats one source's excerpts for the prompt.
func (e *sourceExcerpts) render() string {
	var sb strings.Builder
	sb.WriteString("Source: " + e.url + "\n")
	if e.title != "" {
		sb.WriteString("Title: " + e.title + "\n")
	}
	for _, text := range e.texts {
		sb.WriteString("Excerpt:\n" + text + "\n")
	}
	return sb.String()
}

// packBatches groups sources into request batches whose estimated token
// count stays under the budget. A single oversized source still forms a
// batch of its own rather than being dropped.
func packBatches(sources []*sourceExcerpts, budget int) [][]*sourceExcerpts {
	var batches [][]*sourceExcerpts
	var current []*sourceExcerpts
	var currentTokens int

	for _, source := range sources {
		tokens := estimateTokens(source.render())
		if len(current) > 0 && currentTokens+tokens > budget {
			batches = append(batches, current)
			current = nil
			currentTokens = 0
		}
		current = append(current, source)
		currentTokens += tokens
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// estimateTokens approximates the token count of s.
// English text averages roughly 4 tokens per 3 words.
func estimateTokens(s string) int {
	return len(strings.Fields(s)) * 4 / 3
}

// buildPrompt assembles the user prompt for one summarization request.
func buildPrompt(topic string, areas []string, draft string, batch []*sourceExcerpts) string {
	var sb strings.Builder

	sb.WriteString("Research topic:\n" + topic + "\n\n")
	sb.WriteString("Key areas to cover:\n")
	for _, area := range areas {
		sb.WriteString("- " + area + "\n")
	}
	sb.WriteString("\n")

	if draft != "" {
		sb.WriteString("Existing draft answer:\n" + draft + "\n\n")
	}

	sb.WriteString("Source excerpts:\n\n")
	for _, source := range batch {
		sb.WriteString(source.render() + "\n")
	}
	return sb.String()
}
