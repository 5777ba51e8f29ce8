package session

import (
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/core-view/internal/catalog"
	"github.com/ZanzyTHEbar/core-view/internal/scoring"
	"github.com/ZanzyTHEbar/core-view/internal/types"
)

var (
	ErrQuestionTypeMismatch = errors.New("question type does not match catalog")
	ErrInvalidRanking       = errors.New("invalid ranking")
	ErrInvalidResponse      = errors.New("invalid response")
)

// Scorer turns wire-level response events into accumulator contributions.
// Events are untrusted: anything the catalog cannot resolve is returned as an
// error before the accumulator is touched.
type Scorer struct {
	catalog *catalog.Catalog
}

func NewScorer(c *catalog.Catalog) *Scorer {
	return &Scorer{catalog: c}
}

// Apply returns a copy of acc with ev applied. acc itself is never modified.
func (s *Scorer) Apply(acc scoring.Accumulator, ev types.ResponseEvent) (scoring.Accumulator, error) {
	qt, ok := s.catalog.QuestionType(ev.QuestionID)
	if !ok {
		return acc, fmt.Errorf("%w: %s", catalog.ErrUnknownQuestion, ev.QuestionID)
	}
	if ev.QuestionType != qt {
		return acc, fmt.Errorf("%w: %s is %s, got %s", ErrQuestionTypeMismatch, ev.QuestionID, qt, ev.QuestionType)
	}

	next := acc.Clone()
	switch qt {
	case types.QuestionWarmup, types.QuestionScenario, types.QuestionReflection:
		opt, err := s.catalog.Option(ev.QuestionID, ev.OptionID)
		if err != nil {
			return acc, err
		}
		next.AccumulateScores(opt.DimensionScores)

	case types.QuestionRanking:
		items, limit, inverted, err := s.rankingWeights(ev)
		if err != nil {
			return acc, err
		}
		next.AccumulateRankingScores(items, *ev.ReactionTimeMs, limit, inverted)

	case types.QuestionWriting:
		if ev.Metadata == nil {
			return next, nil
		}
		m := *ev.Metadata
		if m.TimeToFirstKeystrokeMs < 0 || m.TotalCharacters < 0 || m.PauseCount < 0 {
			return acc, fmt.Errorf("%w: writing metadata must not be negative", ErrInvalidResponse)
		}
		next.ApplyWritingMeta(m)

	default:
		return acc, fmt.Errorf("%w: unsupported question type %s", ErrInvalidResponse, qt)
	}
	return next, nil
}

// rankingWeights resolves the ranked item ids to their weights, in ranked order.
// The ranking must be a permutation of the set's items.
func (s *Scorer) rankingWeights(ev types.ResponseEvent) ([]types.DimensionScoreMap, int64, bool, error) {
	rs, err := s.catalog.RankingSet(ev.QuestionID)
	if err != nil {
		return nil, 0, false, err
	}
	if len(ev.Ranking) != len(rs.Items) {
		return nil, 0, false, fmt.Errorf("%w: %s needs %d items, got %d", ErrInvalidRanking, rs.ID, len(rs.Items), len(ev.Ranking))
	}
	switch {
	case ev.ReactionTimeMs == nil:
		return nil, 0, false, fmt.Errorf("%w: %s has no reaction time", ErrInvalidRanking, rs.ID)
	case *ev.ReactionTimeMs < 0:
		return nil, 0, false, fmt.Errorf("%w: negative reaction time", ErrInvalidRanking)
	}

	seen := make(map[string]bool, len(ev.Ranking))
	items := make([]types.DimensionScoreMap, 0, len(ev.Ranking))
	for _, id := range ev.Ranking {
		if seen[id] {
			return nil, 0, false, fmt.Errorf("%w: %s ranked twice", ErrInvalidRanking, id)
		}
		seen[id] = true
		item, ok := rs.Item(id)
		if !ok {
			return nil, 0, false, fmt.Errorf("%w: %s is not in %s", ErrInvalidRanking, id, rs.ID)
		}
		items = append(items, item.DimensionWeights)
	}
	return items, rs.TimeLimitMs, rs.Inverted, nil
}

// Replay folds events into a fresh accumulator, stopping at the first error.
func (s *Scorer) Replay(events []types.ResponseEvent) (scoring.Accumulator, error) {
	acc := scoring.NewAccumulator()
	for i, ev := range events {
		next, err := s.Apply(acc, ev)
		if err != nil {
			return acc, fmt.Errorf("event %d: %w", i, err)
		}
		acc = next
	}
	return acc, nil
}
