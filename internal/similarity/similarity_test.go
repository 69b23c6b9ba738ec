package similarity

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/lia/internal/metrics"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeEmbedder maps known texts to fixed vectors and everything else to a
// vector orthogonal to all of them.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
	texts   int
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts += len(texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = []float32{0, 0, 1}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }
func (f *fakeEmbedder) Model() string { return "fake" }

func newFake() *fakeEmbedder {
	return &fakeEmbedder{vectors: map[string][]float32{
		"list files":      {1, 0, 0},
		"show files":      {0.9, 0.1, 0},
		"remove a branch": {0.1, 0.9, 0},
		"opposite":        {-1, 0, 0},
	}}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 0}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}

func TestTopN_TiesByIndex(t *testing.T) {
	got := TopN([]Ranking{{0, 0.5}, {1, 0.9}, {2, 0.5}, {3, 0.1}}, 3)
	assert.Equal(t, []Ranking{{1, 0.9}, {0, 0.5}, {2, 0.5}}, got)

	got = TopN([]Ranking{{0, 0.2}}, 3)
	assert.Len(t, got, 1)
}

func TestEmbeddingScorer_Rank(t *testing.T) {
	s := NewEmbeddingScorer(newFake(), nil, quietLogger())

	got, err := s.Rank(context.Background(), "list files",
		[]string{"remove a branch", "show files", "opposite", "list files"}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, 3, got[0].Index)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	assert.Equal(t, 1, got[1].Index)
	assert.Equal(t, 0, got[2].Index)
	for _, r := range got {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestEmbeddingScorer_NegativeScoresClamp(t *testing.T) {
	s := NewEmbeddingScorer(newFake(), nil, quietLogger())
	got, err := s.Rank(context.Background(), "list files", []string{"opposite"}, 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Zero(t, got[0].Score)
}

func TestEmbeddingScorer_EmptyCandidates(t *testing.T) {
	fake := newFake()
	s := NewEmbeddingScorer(fake, nil, quietLogger())
	got, err := s.Rank(context.Background(), "anything", nil, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, fake.calls)
}

func TestEmbeddingScorer_InvalidTopN(t *testing.T) {
	s := NewEmbeddingScorer(newFake(), nil, quietLogger())
	_, err := s.Rank(context.Background(), "q", []string{"a"}, 0)
	assert.ErrorIs(t, err, ErrInvalidTopN)
}

func TestEmbeddingScorer_CachesEmbeddings(t *testing.T) {
	fake := newFake()
	m := metrics.New()
	s := NewEmbeddingScorer(fake, m, quietLogger())
	ctx := context.Background()
	candidates := []string{"show files", "remove a branch", "show files"}

	_, err := s.Rank(ctx, "list files", candidates, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, fake.texts, "duplicates are embedded once")
	assert.Equal(t, 3, s.CacheSize())

	_, err = s.Rank(ctx, "list files", candidates, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, fake.texts, "second call is served from cache")

	require.NoError(t, s.Stop(ctx))
	assert.Zero(t, s.CacheSize())
}

func TestEmbeddingScorer_Batches(t *testing.T) {
	fake := newFake()
	s := NewEmbeddingScorer(fake, nil, quietLogger(), WithBatchSize(2), WithConcurrency(2))

	candidates := []string{"a", "b", "c", "d", "e"}
	got, err := s.Rank(context.Background(), "q", candidates, 10)
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.Equal(t, 3, fake.calls, "six texts in batches of two")
}

func TestEmbeddingScorer_EmbedderError(t *testing.T) {
	fake := newFake()
	fake.err = errors.New("connection refused")
	s := NewEmbeddingScorer(fake, nil, quietLogger())

	_, err := s.Rank(context.Background(), "q", []string{"a"}, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, fake.err)
	assert.Zero(t, s.CacheSize())
}

func TestEmbeddingScorer_Lifecycle(t *testing.T) {
	var sc Scorer = NewEmbeddingScorer(newFake(), nil, quietLogger())
	assert.True(t, sc.IsRunning())
	assert.NoError(t, sc.Start(context.Background()))
	assert.NoError(t, sc.Start(context.Background()))
}
