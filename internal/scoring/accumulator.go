// Package scoring turns self-report answers into five bounded trait scores.
//
// An Accumulator collects weighted contributions per dimension for one
// scoring pass. It is a plain value: assigning it copies it, so a pipeline
// that wants to keep the previous state works on a Clone. Malformed input
// (unknown dimensions, a ranking that is not four items long, a zero time
// limit) is a caller defect and panics with *errors.ContractViolation.
package scoring

import (
	"encoding/json"
	"fmt"
	"math"

	apperrors "github.com/ZanzyTHEbar/core-view/internal/errors"
	"github.com/ZanzyTHEbar/core-view/internal/types"
)

// RankingSize is the number of items in one ranking exercise.
const RankingSize = 4

var (
	positionMultipliers = [RankingSize]float64{1.0, 0.5, -0.5, -1.0}
	invertedMultipliers = [RankingSize]float64{-1.0, -0.5, 0.5, 1.0}
)

// Entry is the running state of one dimension. Sum is a total, not an average.
type Entry struct {
	Sum   float64 `json:"sum"`
	Count int     `json:"count"`
}

type Accumulator struct {
	entries [types.DimensionCount]Entry
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() Accumulator {
	return Accumulator{}
}

// Clone returns an independent copy.
func (a Accumulator) Clone() Accumulator {
	return a
}

// Entry returns the state of a single dimension.
func (a Accumulator) Entry(d types.Dimension) Entry {
	i := d.Index()
	if i < 0 {
		apperrors.Violatef("unknown dimension %q", d)
	}
	return a.entries[i]
}

// Empty reports whether nothing has been accumulated yet.
func (a Accumulator) Empty() bool {
	for _, e := range a.entries {
		if e.Count > 0 {
			return false
		}
	}
	return true
}

// AccumulateScores adds each delta with weight 1.
func (a *Accumulator) AccumulateScores(deltas types.DimensionScoreMap) {
	a.AccumulateWeighted(deltas, 1.0)
}

// AccumulateWeighted adds delta*weight to every dimension present in deltas
// and bumps its count. Absent dimensions are untouched.
func (a *Accumulator) AccumulateWeighted(deltas types.DimensionScoreMap, weight float64) {
	checkDeltas(deltas)
	for d, delta := range deltas {
		e := &a.entries[d.Index()]
		e.Sum += delta * weight
		e.Count++
	}
}

// AccumulateRankingScores scores one ranking exercise. items is in the order
// the user ranked them, each carrying its base dimension weights. A single
// reaction-time multiplier applies to the whole ranking; count grows once per
// (item, dimension) pair.
func (a *Accumulator) AccumulateRankingScores(items []types.DimensionScoreMap, elapsedMs, timeLimitMs int64, inverted bool) {
	if len(items) != RankingSize {
		apperrors.Violatef("ranking must have %d items, got %d", RankingSize, len(items))
	}
	for _, weights := range items {
		checkDeltas(weights)
	}

	rt := ReactionTimeWeight(elapsedMs, timeLimitMs)
	multipliers := positionMultipliers
	if inverted {
		multipliers = invertedMultipliers
	}

	for pos, weights := range items {
		a.AccumulateWeighted(weights, multipliers[pos]*rt)
	}
}

func checkDeltas(deltas types.DimensionScoreMap) {
	for d, v := range deltas {
		if !d.Valid() {
			apperrors.Violatef("unknown dimension %q", d)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			apperrors.Violatef("non-finite delta for %s", d)
		}
	}
}

// MarshalJSON encodes the accumulator as {"energy":{"sum":..,"count":..},...}.
func (a Accumulator) MarshalJSON() ([]byte, error) {
	out := make(map[types.Dimension]Entry, types.DimensionCount)
	for i, d := range types.AllDimensions() {
		out[d] = a.entries[i]
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the MarshalJSON form. Missing dimensions decode as empty.
func (a *Accumulator) UnmarshalJSON(data []byte) error {
	var in map[types.Dimension]Entry
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var next Accumulator
	for d, e := range in {
		i := d.Index()
		if i < 0 {
			return fmt.Errorf("accumulator: unknown dimension %q", d)
		}
		if e.Count < 0 {
			return fmt.Errorf("accumulator: negative count for %s", d)
		}
		next.entries[i] = e
	}
	*a = next
	return nil
}
