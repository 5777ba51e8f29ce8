package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ZanzyTHEbar/core-view/internal/types"
)

func TestNormalizeEmpty(t *testing.T) {
	scores := NormalizeScores(NewAccumulator())

	assert.Len(t, scores, types.DimensionCount)
	for i, d := range types.AllDimensions() {
		assert.Equal(t, types.DimensionScore{DimensionID: d, Score: 50, Confidence: 0}, scores[i])
	}
}

func TestNormalizeSingleWarmupAnswer(t *testing.T) {
	acc := NewAccumulator()
	acc.AccumulateScores(types.DimensionScoreMap{types.Energy: -8, types.Social: -5})

	scores := NormalizeScores(acc)
	assert.Equal(t, []types.DimensionScore{
		{DimensionID: types.Energy, Score: 0, Confidence: 1},
		{DimensionID: types.Processing, Score: 50, Confidence: 0},
		{DimensionID: types.Uncertainty, Score: 50, Confidence: 0},
		{DimensionID: types.Social, Score: 19, Confidence: 1},
		{DimensionID: types.Response, Score: 50, Confidence: 0},
	}, scores)
}

func TestScaleAverage(t *testing.T) {
	tests := []struct {
		name     string
		average  float64
		band     float64
		expected int
	}{
		{name: "self-report midpoint", average: 0, band: 8, expected: 50},
		{name: "self-report floor", average: -8, band: 8, expected: 0},
		{name: "self-report ceiling", average: 8, band: 8, expected: 100},
		{name: "rounds half up", average: -5, band: 8, expected: 19},
		{name: "clamps far above", average: 1000, band: 8, expected: 100},
		{name: "clamps far below", average: -1000, band: 8, expected: 0},
		{name: "feedback midpoint", average: 0, band: 15, expected: 50},
		{name: "feedback partial", average: 6, band: 15, expected: 70},
		{name: "feedback ceiling", average: 15, band: 15, expected: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ScaleAverage(tt.average, tt.band))
		})
	}
}

func TestNormalizeClamps(t *testing.T) {
	acc := NewAccumulator()
	acc.AccumulateScores(types.DimensionScoreMap{types.Processing: 1000, types.Response: -1000})

	scores := NormalizeScores(acc)
	assert.Equal(t, 100, scores[types.Processing.Index()].Score)
	assert.Equal(t, 0, scores[types.Response.Index()].Score)
}

func TestNormalizeMonotonic(t *testing.T) {
	const count = 3
	prev := -1
	for sum := -40.0; sum <= 40; sum += 0.5 {
		acc := NewAccumulator()
		for i := 0; i < count; i++ {
			acc.AccumulateScores(types.DimensionScoreMap{types.Energy: sum / count})
		}
		score := NormalizeScores(acc)[0].Score
		assert.GreaterOrEqual(t, score, prev, "sum %v", sum)
		assert.GreaterOrEqual(t, score, 0)
		assert.LessOrEqual(t, score, 100)
		prev = score
	}
}

func TestNormalizeConfidenceIsCount(t *testing.T) {
	acc := NewAccumulator()
	for i := 0; i < 7; i++ {
		acc.AccumulateScores(types.DimensionScoreMap{types.Uncertainty: 2})
	}
	acc.ApplyWritingMeta(types.WritingMeta{TimeToFirstKeystrokeMs: 1000, TotalCharacters: 200, PauseCount: 0})

	scores := NormalizeScores(acc)
	assert.Equal(t, 7, scores[types.Uncertainty.Index()].Confidence)
	assert.Equal(t, 2, scores[types.Response.Index()].Confidence)
	// average (8+5)/2 = 6.5 -> 90.625
	assert.Equal(t, 91, scores[types.Response.Index()].Score)
}
