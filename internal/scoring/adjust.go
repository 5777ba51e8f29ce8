package scoring

import (
	"math"
	"sort"

	apperrors "github.com/ZanzyTHEbar/core-view/internal/errors"
	"github.com/ZanzyTHEbar/core-view/internal/types"
)

// DefaultConfidenceThreshold separates well-covered dimensions from those
// worth a follow-up question.
const DefaultConfidenceThreshold = 5

// ApplyAdjustments applies post-hoc deltas to already normalized scores and
// returns a new slice. Scores are clamped to [0,100]; boosts add to confidence.
// Dimensions missing from both maps are copied unchanged.
func ApplyAdjustments(scores []types.DimensionScore, adjustments, boosts map[types.Dimension]float64) []types.DimensionScore {
	for d := range adjustments {
		if !d.Valid() {
			apperrors.Violatef("unknown dimension %q in adjustments", d)
		}
	}
	for d := range boosts {
		if !d.Valid() {
			apperrors.Violatef("unknown dimension %q in confidence boosts", d)
		}
	}

	out := make([]types.DimensionScore, len(scores))
	for i, s := range scores {
		adj := adjustments[s.DimensionID]
		boost := boosts[s.DimensionID]
		out[i] = types.DimensionScore{
			DimensionID: s.DimensionID,
			Score:       int(math.Round(clip(float64(s.Score)+adj, 0, 100))),
			Confidence:  max(0, s.Confidence+int(math.Round(boost))),
		}
	}
	return out
}

// LowestConfidenceDimensions returns the dimensions whose confidence is below
// threshold, least covered first. Equal confidences keep their input order.
func LowestConfidenceDimensions(scores []types.DimensionScore, threshold int) []types.DimensionScore {
	out := make([]types.DimensionScore, 0, len(scores))
	for _, s := range scores {
		if s.Confidence < threshold {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence < out[j].Confidence
	})
	return out
}
