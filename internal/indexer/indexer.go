// Package indexer builds a searchable index over downloaded content.
//
// The index lives in the working directory's index/ subdirectory as two
// JSONL files: chunks.jsonl holds the text chunks cut from each page,
// vectors.jsonl holds one embedding vector per chunk. Keeping both as
// plain line-oriented JSON makes the index inspectable with standard
// tools and trivially resumable: rebuilding just overwrites the files.
package indexer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/deepresearch/internal/llm"
	"github.com/nao1215/deepresearch/internal/model"
	"github.com/nao1215/deepresearch/internal/workspace"
)

// Chunking and embedding defaults.
const (
	// DefaultChunkWords is the target chunk size in words. Around 500
	// words keeps a chunk within one embedding request and small enough
	// that a retrieved chunk is mostly on-topic.
	DefaultChunkWords = 500

	// DefaultOverlapWords is the overlap between consecutive chunks so
	// sentences on a chunk boundary appear whole in at least one chunk.
	DefaultOverlapWords = 50

	// DefaultBatchSize is the number of chunks embedded per API call.
	DefaultBatchSize = 16

	// DefaultConcurrency bounds concurrent embedding requests.
	DefaultConcurrency = 4
)

// Index file names inside the index/ directory.
const (
	// ChunksFile holds one Chunk per line.
	ChunksFile = "chunks.jsonl"

	// VectorsFile holds one Vector per line.
	VectorsFile = "vectors.jsonl"
)

// filePerm is the permission for written index files.
const filePerm = 0600

// ErrNoContent is returned by Build when the results directory holds no
// downloaded content to index.
var ErrNoContent = errors.New("no downloaded content to index")

// ErrNoIndex is returned by SearchSimilar before Build has run.
var ErrNoIndex = errors.New("index has not been built")

// resultSnapshotRe matches downloaded-content snapshot file names and
// captures the iteration number.
var resultSnapshotRe = regexp.MustCompile(`^downloaded_content_(\d+)\.json$`)

// Chunk is one indexed slice of a downloaded page.
type Chunk struct {
	// ID is the chunk's position in the index, used to join vectors.
	ID int `json:"id"`

	// URL is the source page.
	URL string `json:"url"`

	// Title is the source page title.
	Title string `json:"title,omitempty"`

	// Text is the NFC-normalized chunk text.
	Text string `json:"text"`
}

// Vector is the embedding for one chunk.
type Vector struct {
	// ChunkID joins the vector to its chunk.
	ChunkID int `json:"chunk_id"`

	// Values is the embedding vector.
	Values []float32 `json:"values"`
}

// ScoredChunk is a search hit with its cosine similarity.
type ScoredChunk struct {
	Chunk Chunk

	// Score is the cosine similarity to the query, in [-1, 1].
	Score float64
}

// Indexer chunks downloaded content and embeds it for similarity search.
type Indexer struct {
	ws          *workspace.Workspace
	embedder    llm.Embedder
	chunkWords  int
	overlap     int
	batchSize   int
	concurrency int
	logger      *slog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithChunkWords sets the chunk size in words.
func WithChunkWords(words int) Option {
	return func(i *Indexer) {
		if words > 0 {
			i.chunkWords = words
		}
	}
}

// WithOverlapWords sets the overlap between consecutive chunks.
func WithOverlapWords(words int) Option {
	return func(i *Indexer) {
		if words >= 0 {
			i.overlap = words
		}
	}
}

// WithBatchSize sets the number of chunks per embedding request.
func WithBatchSize(size int) Option {
	return func(i *Indexer) {
		if size > 0 {
			i.batchSize = size
		}
	}
}

// WithConcurrency bounds concurrent embedding requests.
func WithConcurrency(n int) Option {
	return func(i *Indexer) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// WithLogger sets the logger for indexing diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Indexer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// New creates an Indexer over the given workspace and embedder.
func New(ws *workspace.Workspace, embedder llm.Embedder, opts ...Option) *Indexer {
	i := &Indexer{
		ws:          ws,
		embedder:    embedder,
		chunkWords:  DefaultChunkWords,
		overlap:     DefaultOverlapWords,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Build reads every downloaded-content snapshot, chunks and embeds the
// text, and writes chunks.jsonl and vectors.jsonl. A rebuild overwrites
// the previous index.
func (i *Indexer) Build(ctx context.Context) error {
	results, err := i.loadResults()
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return ErrNoContent
	}

	var chunks []Chunk
	for _, result := range results {
		text := norm.NFC.String(result.Content)
		for _, piece := range chunkText(text, i.chunkWords, i.overlap) {
			chunks = append(chunks, Chunk{
				ID:    len(chunks),
				URL:   result.URL,
				Title: result.Title,
				Text:  piece,
			})
		}
	}
	if len(chunks) == 0 {
		return ErrNoContent
	}
	i.logger.Info("indexing downloaded content",
		"pages", len(results), "chunks", len(chunks))

	vectors, err := i.embedAll(ctx, chunks)
	if err != nil {
		return err
	}

	if err := writeJSONL(i.ws.Path(workspace.IndexDir, ChunksFile), chunks); err != nil {
		return fmt.Errorf("failed to write chunk index: %w", err)
	}
	if err := writeJSONL(i.ws.Path(workspace.IndexDir, VectorsFile), vectors); err != nil {
		return fmt.Errorf("failed to write vector index: %w", err)
	}
	return nil
}

// embedAll embeds chunks in batches with bounded concurrency.
// Each batch writes into a disjoint slice range, so no locking is needed.
func (i *Indexer) embedAll(ctx context.Context, chunks []Chunk) ([]Vector, error) {
	vectors := make([]Vector, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	for start := 0; start < len(chunks); start += i.batchSize {
		end := min(start+i.batchSize, len(chunks))
		batch := chunks[start:end]
		offset := start

		g.Go(func() error {
			texts := make([]string, len(batch))
			for j, chunk := range batch {
				texts[j] = chunk.Text
			}

			embedded, err := i.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return fmt.Errorf("failed to embed chunks %d-%d: %w", offset, offset+len(batch)-1, err)
			}

			for j, values := range embedded {
				vectors[offset+j] = Vector{ChunkID: batch[j].ID, Values: values}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// SearchSimilar returns the k chunks most similar to the query by
// cosine similarity over the stored vectors.
func (i *Indexer) SearchSimilar(ctx context.Context, query string, k int) ([]ScoredChunk, error) {
	chunks, vectors, err := i.loadIndex()
	if err != nil {
		return nil, err
	}

	queryVec, err := i.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	byID := make(map[int]Chunk, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.ID] = chunk
	}

	scored := make([]ScoredChunk, 0, len(vectors))
	for _, vector := range vectors {
		chunk, ok := byID[vector.ChunkID]
		if !ok {
			continue
		}
		scored = append(scored, ScoredChunk{
			Chunk: chunk,
			Score: cosineSimilarity(queryVec, vector.Values),
		})
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Score > scored[b].Score
	})
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// loadResults reads all downloaded-content snapshots in iteration order.
// When a URL appears in several iterations, the latest fetch wins.
func (i *Indexer) loadResults() ([]model.CrawlResult, error) {
	entries, err := os.ReadDir(i.ws.Path(workspace.ResultsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read results directory: %w", err)
	}

	var iterations []int
	for _, entry := range entries {
		m := resultSnapshotRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		iterations = append(iterations, n)
	}
	sort.Ints(iterations)

	var order []string
	latest := make(map[string]model.CrawlResult)
	for _, iteration := range iterations {
		var set model.DownloadSet
		if err := i.ws.LoadSnapshot(workspace.ResultsDir, "downloaded_content", iteration, &set); err != nil {
			return nil, err
		}
		for _, result := range set.Results {
			// Failure records carry no content to index
			if !result.Success {
				continue
			}
			if _, seen := latest[result.URL]; !seen {
				order = append(order, result.URL)
			}
			latest[result.URL] = result
		}
	}

	results := make([]model.CrawlResult, 0, len(order))
	for _, url := range order {
		results = append(results, latest[url])
	}
	return results, nil
}

// loadIndex reads the chunk and vector files written by Build.
func (i *Indexer) loadIndex() ([]Chunk, []Vector, error) {
	chunks, err := readJSONL[Chunk](i.ws.Path(workspace.IndexDir, ChunksFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNoIndex
		}
		return nil, nil, fmt.Errorf("failed to read chunk index: %w", err)
	}

	vectors, err := readJSONL[Vector](i.ws.Path(workspace.IndexDir, VectorsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNoIndex
		}
		return nil, nil, fmt.Errorf("failed to read vector index: %w", err)
	}

	return chunks, vectors, nil
}

// chunkText splits text into word windows of the given size, stepping by
// size-overlap words. The final window may be shorter.
func chunkText(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if size <= 0 || len(words) <= size {
		return []string{strings.Join(words, " ")}
	}

	step := size - overlap
	if step < 1 {
		step = size
	}

	var chunks []string
	for start := 0; start < len(words); start += step {
		end := min(start+size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// cosineSimilarity computes the cosine of the angle between a and b.
// Mismatched lengths or zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// writeJSONL writes one JSON document per line.
func writeJSONL[T any](path string, items []T) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm) //nolint:gosec // Path is inside the validated workspace
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// readJSONL reads one JSON document per line.
func readJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path) //nolint:gosec // Path is inside the validated workspace
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var items []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var item T
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			return nil, fmt.Errorf("malformed index line: %w", err)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
