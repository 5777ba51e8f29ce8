// Package feedback scores third-party observations on the same 0..100 axes
// as the self-report profile so the two can be compared.
package feedback

import (
	"errors"
	"log/slog"

	"github.com/ZanzyTHEbar/core-view/internal/catalog"
	"github.com/ZanzyTHEbar/core-view/internal/scoring"
	"github.com/ZanzyTHEbar/core-view/internal/types"
)

const (
	// Band is the working range [-15, +15] feedback options are calibrated for.
	// It is wider than the self-report band because there are far fewer
	// feedback questions, each with larger deltas.
	Band = 15.0

	// MinResponsesForReconciliation is how many feedback answers are needed
	// before a self-vs-other comparison is offered.
	MinResponsesForReconciliation = 3
)

var ErrNotEnoughResponses = errors.New("not enough feedback responses")

// Gap is the difference between how others and the user see one dimension.
type Gap struct {
	DimensionID types.Dimension `json:"dimensionId"`
	Self        int             `json:"self"`
	Other       int             `json:"other"`
	Delta       int             `json:"delta"`
}

// Aggregator turns feedback answers into dimension scores.
type Aggregator struct {
	catalog *catalog.Catalog
	logger  *slog.Logger
}

func NewAggregator(c *catalog.Catalog, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{catalog: c, logger: logger}
}

// Aggregate scores every response with weight 1 and normalizes over Band.
// Answers that reference unknown questions or options are skipped; they
// come from outside the application and are not trusted.
func (a *Aggregator) Aggregate(responses []types.FeedbackResponse) map[types.Dimension]int {
	scores := a.Scores(responses)
	out := make(map[types.Dimension]int, len(scores))
	for _, s := range scores {
		out[s.DimensionID] = s.Score
	}
	return out
}

// Scores is Aggregate in fixed dimension order with contribution counts.
func (a *Aggregator) Scores(responses []types.FeedbackResponse) []types.DimensionScore {
	acc := scoring.NewAccumulator()
	for _, r := range responses {
		opt, err := a.catalog.FeedbackOption(r.QuestionID, r.OptionID)
		if err != nil {
			a.logger.Warn("Skipping feedback response", "question_id", r.QuestionID, "option_id", r.OptionID, "error", err)
			continue
		}
		acc.AccumulateScores(opt.DimensionScores)
	}
	return scoring.NormalizeBand(acc, Band)
}

// CanReconcile reports whether enough feedback has been collected.
func CanReconcile(responseCount int) bool {
	return responseCount >= MinResponsesForReconciliation
}

// Gaps compares self-report and feedback scores, other minus self, in fixed
// dimension order. Dimensions missing from either side count as neutral.
func Gaps(self []types.DimensionScore, other map[types.Dimension]int) []Gap {
	selfByDim := make(map[types.Dimension]int, len(self))
	for _, s := range self {
		selfByDim[s.DimensionID] = s.Score
	}

	out := make([]Gap, 0, types.DimensionCount)
	for _, d := range types.AllDimensions() {
		s, ok := selfByDim[d]
		if !ok {
			s = scoring.NeutralScore
		}
		o, ok := other[d]
		if !ok {
			o = scoring.NeutralScore
		}
		out = append(out, Gap{DimensionID: d, Self: s, Other: o, Delta: o - s})
	}
	return out
}
