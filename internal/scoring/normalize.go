package scoring

import (
	"math"

	"github.com/ZanzyTHEbar/core-view/internal/types"
)

const (
	// SelfReportBand is the per-contribution working range [-8, +8] that
	// maps onto 0..100 for self-report answers.
	SelfReportBand = 8.0
	// NeutralScore is reported for dimensions without any signal.
	NeutralScore = 50
)

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// ScaleAverage maps an average in [-band, +band] onto [0, 100], clamping
// anything outside the band, and rounds to the nearest integer.
func ScaleAverage(average, band float64) int {
	return int(math.Round(clip((average+band)*(100/(2*band)), 0, 100)))
}

// NormalizeEntry converts one dimension's running state into a score using
// the given band. Count zero yields the neutral score with zero confidence.
func NormalizeEntry(d types.Dimension, e Entry, band float64) types.DimensionScore {
	if e.Count == 0 {
		return types.DimensionScore{DimensionID: d, Score: NeutralScore, Confidence: 0}
	}
	return types.DimensionScore{
		DimensionID: d,
		Score:       ScaleAverage(e.Sum/float64(e.Count), band),
		Confidence:  e.Count,
	}
}

// NormalizeScores returns one score per dimension in the fixed dimension order.
func NormalizeScores(acc Accumulator) []types.DimensionScore {
	return NormalizeBand(acc, SelfReportBand)
}

// NormalizeBand is NormalizeScores for a different calibration band.
func NormalizeBand(acc Accumulator, band float64) []types.DimensionScore {
	out := make([]types.DimensionScore, 0, types.DimensionCount)
	for i, d := range types.AllDimensions() {
		out = append(out, NormalizeEntry(d, acc.entries[i], band))
	}
	return out
}
