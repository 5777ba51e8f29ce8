package scoring

import (
	apperrors "github.com/ZanzyTHEbar/core-view/internal/errors"
	"github.com/ZanzyTHEbar/core-view/internal/types"
)

// Writing-behavior thresholds. Fast, short and unbroken writing leans
// reactive and broad; slow, long and paused writing leans reflective and deep.
const (
	quickStartMs   = 3000
	slowStartMs    = 8000
	startDelta     = 8.0
	longTextChars  = 400
	shortTextChars = 100
	lengthDelta    = 5.0
	manyPauses     = 3
	pauseDelta     = 5.0
)

// ApplyWritingMeta derives indirect signal from how a writing prompt was
// answered. Every branch that fires is an ordinary weight-1 contribution.
func (a *Accumulator) ApplyWritingMeta(meta types.WritingMeta) {
	if meta.TimeToFirstKeystrokeMs < 0 || meta.TotalCharacters < 0 || meta.PauseCount < 0 {
		apperrors.Violatef("writing metadata must not be negative: %+v", meta)
	}

	switch {
	case meta.TimeToFirstKeystrokeMs < quickStartMs:
		a.AccumulateScores(types.DimensionScoreMap{types.Response: startDelta})
	case meta.TimeToFirstKeystrokeMs > slowStartMs:
		a.AccumulateScores(types.DimensionScoreMap{types.Response: -startDelta})
	}

	switch {
	case meta.TotalCharacters > longTextChars:
		a.AccumulateScores(types.DimensionScoreMap{types.Processing: -lengthDelta})
	case meta.TotalCharacters < shortTextChars:
		a.AccumulateScores(types.DimensionScoreMap{types.Processing: lengthDelta})
	}

	switch {
	case meta.PauseCount > manyPauses:
		a.AccumulateScores(types.DimensionScoreMap{types.Response: -pauseDelta})
	case meta.PauseCount == 0:
		a.AccumulateScores(types.DimensionScoreMap{types.Response: pauseDelta})
	}
}
