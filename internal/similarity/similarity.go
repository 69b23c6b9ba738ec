// Package similarity ranks candidate texts against a query by semantic
// similarity.
package similarity

import (
	"context"
	"math"
	"sort"
)

// Ranking is one scored candidate: its index in the candidate list and a
// similarity score in [0, 1].
type Ranking struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Scorer ranks candidates against a query.
type Scorer interface {
	// Rank returns at most topN rankings sorted by descending score. Every
	// index is valid for candidates.
	Rank(ctx context.Context, query string, candidates []string, topN int) ([]Ranking, error)

	// Start makes the scorer ready. Starting a running scorer is a no-op.
	Start(ctx context.Context) error

	// Stop releases the scorer.
	Stop(ctx context.Context) error

	// IsRunning reports whether the scorer can serve Rank right now.
	IsRunning() bool
}

// CosineSimilarity returns the cosine of the angle between a and b. Vectors of
// different length or with zero norm score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// TopN sorts rankings by descending score, ties by ascending index, and
// keeps the first n.
func TopN(rankings []Ranking, n int) []Ranking {
	sort.SliceStable(rankings, func(i, j int) bool {
		if rankings[i].Score != rankings[j].Score {
			return rankings[i].Score > rankings[j].Score
		}
		return rankings[i].Index < rankings[j].Index
	})
	if n < len(rankings) {
		rankings = rankings[:n]
	}
	return rankings
}

func clamp(score float64) float64 {
	switch {
	case math.IsNaN(score), score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
