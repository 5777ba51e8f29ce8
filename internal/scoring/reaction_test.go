package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/ZanzyTHEbar/core-view/internal/errors"
)

func TestReactionTimeWeight(t *testing.T) {
	tests := []struct {
		name     string
		elapsed  int64
		limit    int64
		expected float64
	}{
		{name: "instant answer", elapsed: 0, limit: 8000, expected: 1.3},
		{name: "quarter of the limit", elapsed: 2000, limit: 8000, expected: 1.3},
		{name: "just under fast boundary", elapsed: 3199, limit: 8000, expected: 1.3},
		{name: "ratio 0.4 is baseline", elapsed: 4000, limit: 10000, expected: 1.0},
		{name: "half the limit", elapsed: 4000, limit: 8000, expected: 1.0},
		{name: "just under slow boundary", elapsed: 7999, limit: 10000, expected: 1.0},
		{name: "ratio 0.8 is slow", elapsed: 8000, limit: 10000, expected: 0.7},
		{name: "full limit", elapsed: 8000, limit: 8000, expected: 0.7},
		{name: "timeout", elapsed: 20000, limit: 8000, expected: 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ReactionTimeWeight(tt.elapsed, tt.limit))
		})
	}
}

func TestReactionTimeWeightContract(t *testing.T) {
	assert.PanicsWithError(t, "contract violation: time limit must be positive, got 0", func() {
		ReactionTimeWeight(1000, 0)
	})

	defer func() {
		r := recover()
		_, ok := r.(*apperrors.ContractViolation)
		assert.True(t, ok, "expected contract violation, got %v", r)
	}()
	ReactionTimeWeight(-1, 1000)
}
