package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/genai"
)

// ErrEmptyResponse is returned when the model produces no usable text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Completer generates a text completion for a system/user prompt pair.
// Implementations must be safe for concurrent use.
type Completer interface {
	// Complete returns the model's response text, cleaned of reasoning
	// blocks and markdown fences.
	Complete(ctx context.Context, system, user string) (string, error)
}

// Embedder converts text into embedding vectors.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// GenAIClient talks to the Gemini API for both completions and
// embeddings. One client is shared by every stage of a run.
type GenAIClient struct {
	client         *genai.Client
	model          string
	embeddingModel string
}

// NewGenAIClient creates a client for the given API key and models.
func NewGenAIClient(ctx context.Context, apiKey, model, embeddingModel string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GenAIClient{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
	}, nil
}

// Complete sends one generation request and returns the cleaned text.
func (c *GenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(user, genai.RoleUser),
	}

	var cfg *genai.GenerateContentConfig
	if system != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}

	text := cleanResponse(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Embed returns the embedding vector for a single text.
func (c *GenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds multiple texts in one API call.
func (c *GenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := c.client.Models.EmbedContent(ctx,
		c.embeddingModel,
		contents,
		&genai.EmbedContentConfig{
			TaskType: "RETRIEVAL_DOCUMENT",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// thinkBlockRe matches reasoning blocks some models emit before the answer.
var thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// cleanResponse strips reasoning blocks and surrounding markdown code
// fences from a model response. Models often wrap JSON answers in
// ```json fences even when asked not to; downstream parsers expect the
// bare payload.
func cleanResponse(text string) string {
	text = thinkBlockRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		// Drop the opening fence line (``` or ```json)
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
		text = strings.TrimSpace(text)
		text = strings.TrimSuffix(text, "```")
	}

	return strings.TrimSpace(text)
}
