package similarity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/lia/internal/embedder"
	"github.com/ajitpratap0/lia/internal/metrics"
)

const (
	defaultBatchSize   = 32
	defaultConcurrency = 4
)

// ErrInvalidTopN is returned when topN is not positive.
var ErrInvalidTopN = errors.New("topN must be positive")

// EmbeddingScorer ranks candidates by the cosine similarity of their
// embeddings. Embeddings are cached by text for the scorer's lifetime, so
// repeated headings are embedded once.
type EmbeddingScorer struct {
	embedder    embedder.Embedder
	metrics     *metrics.Metrics
	logger      *slog.Logger
	batchSize   int
	concurrency int

	mu    sync.RWMutex
	cache map[string][]float32
}

// Option configures an EmbeddingScorer.
type Option func(*EmbeddingScorer)

// WithBatchSize sets how many texts are sent to the embedder per call.
func WithBatchSize(n int) Option {
	return func(s *EmbeddingScorer) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithConcurrency sets how many embedder calls may run at once.
func WithConcurrency(n int) Option {
	return func(s *EmbeddingScorer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewEmbeddingScorer creates an in-process scorer. m may be nil.
func NewEmbeddingScorer(emb embedder.Embedder, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *EmbeddingScorer {
	s := &EmbeddingScorer{
		embedder:    emb,
		metrics:     m,
		logger:      logger,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
		cache:       make(map[string][]float32),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Model returns the embedding model name.
func (s *EmbeddingScorer) Model() string {
	return s.embedder.Model()
}

// Rank embeds the query and the candidates and returns the topN closest
// candidates.
func (s *EmbeddingScorer) Rank(ctx context.Context, query string, candidates []string, topN int) ([]Ranking, error) {
	if topN <= 0 {
		return nil, ErrInvalidTopN
	}
	if len(candidates) == 0 {
		return []Ranking{}, nil
	}

	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, query)
	texts = append(texts, candidates...)

	vecs, err := s.embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	queryVec := vecs[query]
	rankings := make([]Ranking, len(candidates))
	for i, c := range candidates {
		rankings[i] = Ranking{Index: i, Score: clamp(CosineSimilarity(queryVec, vecs[c]))}
	}
	return TopN(rankings, topN), nil
}

// embed returns an embedding for every distinct text, filling the cache with
// the ones it has not seen yet.
func (s *EmbeddingScorer) embed(ctx context.Context, texts []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(texts))
	var missing []string

	s.mu.RLock()
	for _, t := range texts {
		if _, done := out[t]; done {
			continue
		}
		if v, ok := s.cache[t]; ok {
			out[t] = v
			continue
		}
		out[t] = nil
		missing = append(missing, t)
	}
	s.mu.RUnlock()

	s.metrics.CacheHits(len(out) - len(missing))
	s.metrics.CacheMisses(len(missing))
	if len(missing) == 0 {
		return out, nil
	}

	results := make([][]float32, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for start := 0; start < len(missing); start += s.batchSize {
		end := min(start+s.batchSize, len(missing))
		g.Go(func() error {
			vecs, err := s.embedder.EmbedBatch(gctx, missing[start:end])
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), end-start)
			}
			copy(results[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(missing), err)
	}

	s.mu.Lock()
	for i, t := range missing {
		s.cache[t] = results[i]
		out[t] = results[i]
	}
	s.mu.Unlock()

	s.logger.Debug("embedded texts", "count", len(missing), "cached", len(texts)-len(missing))
	return out, nil
}

// CacheSize returns the number of cached embeddings.
func (s *EmbeddingScorer) CacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// Start is a no-op; the scorer is ready once constructed.
func (s *EmbeddingScorer) Start(context.Context) error { return nil }

// Stop drops the cache.
func (s *EmbeddingScorer) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string][]float32)
	return nil
}

// IsRunning always reports true.
func (s *EmbeddingScorer) IsRunning() bool { return true }
