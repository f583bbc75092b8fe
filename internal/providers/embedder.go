package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/crystaldolphin/ctxbudget/internal/tokens"
)

const (
	defaultEmbedBudget      = 8191
	defaultEmbedFactor      = 0.5
	defaultEmbedConcurrency = 4
	defaultEmbedMaxShrinks  = 3
	defaultEmbedMaxInFlight = 8
)

// Embedding is the vector for one chunk of one input.
type Embedding struct {
	Input  int // index into the texts passed to Embed
	Chunk  int // index of the chunk within that input
	Text   string
	Vector []float32
}

// EmbedderConfig tunes an Embedder. Zero fields take defaults.
type EmbedderConfig struct {
	Model           string
	TokenBudget     int     // per-request token limit of the embedding model
	ReductionFactor float64 // initial chunk-size factor, see tokens.Chunk
	Concurrency     int     // inputs embedded in parallel per Embed call
	MaxInFlight     int     // requests in flight across all Embed calls
}

// Embedder chunks texts to fit an embedding model and embeds the chunks
// against an OpenAI-compatible /embeddings endpoint.
type Embedder struct {
	api      *OpenAIProvider
	cfg      EmbedderConfig
	inflight *semaphore.Weighted
}

// NewEmbedder builds an embedder that talks to the endpoint described by p.
func NewEmbedder(p Params, cfg EmbedderConfig) *Embedder {
	if cfg.Model == "" {
		if s := p.Spec(); s != nil {
			cfg.Model = s.EmbeddingModel
		}
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = defaultEmbedBudget
	}
	if cfg.ReductionFactor <= 0 {
		cfg.ReductionFactor = defaultEmbedFactor
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultEmbedConcurrency
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultEmbedMaxInFlight
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	api := NewOpenAIProvider(p.ResolvedAPIKey(), p.APIBase, p.DefaultModel, p.ProviderName,
		p.ExtraHeaders, NewHTTPClient(timeout, p.MaxRetries))
	return &Embedder{
		api:      api,
		cfg:      cfg,
		inflight: semaphore.NewWeighted(int64(cfg.MaxInFlight)),
	}
}

// Embed returns the embeddings of every chunk of every text, ordered by
// input and then by chunk. An input the provider rejects as too large is
// re-chunked at half the reduction factor, a bounded number of times.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	if e.cfg.Model == "" {
		return nil, errors.New("embedder: no embedding model configured")
	}

	results := make([][]Embedding, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, text := range texts {
		g.Go(func() error {
			out, err := e.embedOne(ctx, i, text)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Embedding
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

func (e *Embedder) embedOne(ctx context.Context, input int, text string) ([]Embedding, error) {
	factor := e.cfg.ReductionFactor
	for shrink := 0; ; shrink++ {
		chunks, err := tokens.Chunk(text, e.cfg.TokenBudget, factor)
		if err != nil {
			return nil, err
		}
		if len(chunks) == 0 {
			return nil, nil
		}

		vectors, err := e.request(ctx, chunks)
		if err == nil {
			out := make([]Embedding, len(chunks))
			for i := range chunks {
				out[i] = Embedding{Input: input, Chunk: i, Text: chunks[i], Vector: vectors[i]}
			}
			return out, nil
		}
		if !errors.Is(err, ErrTooLarge) || shrink >= defaultEmbedMaxShrinks {
			return nil, err
		}
		factor /= 2
		slog.Warn("embedder: input too large, re-chunking",
			"input", input, "chunks", len(chunks), "factor", factor)
	}
}

type embeddingsResp struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *Embedder) request(ctx context.Context, chunks []string) ([][]float32, error) {
	if err := e.inflight.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.inflight.Release(1)

	raw, err := e.api.post(ctx, "/embeddings", map[string]any{
		"model": e.api.resolveModel(e.cfg.Model),
		"input": chunks,
	})
	if err != nil {
		return nil, err
	}

	var body embeddingsResp
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("parse embeddings response: %w", err)
	}
	if len(body.Data) != len(chunks) {
		return nil, fmt.Errorf("embeddings response has %d vectors for %d chunks", len(body.Data), len(chunks))
	}
	out := make([][]float32, len(chunks))
	for _, d := range body.Data {
		if d.Index < 0 || d.Index >= len(chunks) {
			return nil, fmt.Errorf("embeddings response index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
