package scoring

import (
	apperrors "github.com/ZanzyTHEbar/core-view/internal/errors"
)

const (
	FastWeight     = 1.3
	BaselineWeight = 1.0
	SlowWeight     = 0.7

	fastRatio = 0.4
	slowRatio = 0.8
)

// ReactionTimeWeight maps how much of the time limit was used onto a score
// multiplier. Fast answers count more, slow ones less. Ratios above 1 (a
// timeout) land in the slow bucket.
func ReactionTimeWeight(elapsedMs, timeLimitMs int64) float64 {
	if timeLimitMs <= 0 {
		apperrors.Violatef("time limit must be positive, got %d", timeLimitMs)
	}
	if elapsedMs < 0 {
		apperrors.Violatef("elapsed time must not be negative, got %d", elapsedMs)
	}

	ratio := float64(elapsedMs) / float64(timeLimitMs)
	switch {
	case ratio < fastRatio:
		return FastWeight
	case ratio < slowRatio:
		return BaselineWeight
	default:
		return SlowWeight
	}
}
