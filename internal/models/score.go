package models

// ScoreBand classifies a similarity score.
type ScoreBand string

const (
	ScoreLow    ScoreBand = "low"
	ScoreMedium ScoreBand = "medium"
	ScoreHigh   ScoreBand = "high"
)

// ScoreRange is a half-open [Lower, Upper) interval. The highest band also
// includes its upper bound.
type ScoreRange struct {
	Lower float64
	Upper float64
}

// ScoreBands maps each band to its score interval.
var ScoreBands = map[ScoreBand]ScoreRange{
	ScoreLow:    {Lower: 0.0, Upper: 0.6},
	ScoreMedium: {Lower: 0.6, Upper: 0.8},
	ScoreHigh:   {Lower: 0.8, Upper: 1.0},
}

// LowerBound returns the inclusive lower bound of the band.
func (b ScoreBand) LowerBound() float64 {
	return ScoreBands[b].Lower
}

// UpperBound returns the upper bound of the band.
func (b ScoreBand) UpperBound() float64 {
	return ScoreBands[b].Upper
}

// BandFor returns the band a score falls into. Scores outside [0, 1] are
// clamped to the nearest band.
func BandFor(score float64) ScoreBand {
	switch {
	case score >= ScoreHigh.LowerBound():
		return ScoreHigh
	case score >= ScoreMedium.LowerBound():
		return ScoreMedium
	default:
		return ScoreLow
	}
}

// IsRelevant reports whether a score clears the relevance gate.
func IsRelevant(score float64) bool {
	return score >= ScoreMedium.LowerBound()
}
