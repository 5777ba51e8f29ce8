// Package profile assembles the terminal output of a scoring pass and applies
// later adjustments to it.
package profile

import (
	"time"

	"github.com/ZanzyTHEbar/core-view/internal/archetype"
	"github.com/ZanzyTHEbar/core-view/internal/scoring"
	"github.com/ZanzyTHEbar/core-view/internal/types"
)

// Profile is the result of one scoring pass. Once built it is the source of
// truth; the accumulator it came from is not consulted again.
type Profile struct {
	Dimensions        []types.DimensionScore `json:"dimensions"`
	ArchetypeID       string                 `json:"archetypeId"`
	ArchetypeName     string                 `json:"archetypeName"`
	ArchetypeDistance float64                `json:"archetypeDistance"`
	CompletedAt       time.Time              `json:"completedAt"`
}

// Score returns the score for a dimension.
func (p Profile) Score(d types.Dimension) (types.DimensionScore, bool) {
	for _, s := range p.Dimensions {
		if s.DimensionID == d {
			return s, true
		}
	}
	return types.DimensionScore{}, false
}

// NeedsFitReview reports whether the assigned archetype is a questionable fit.
func (p Profile) NeedsFitReview() bool {
	return archetype.NeedsFitReview(p.ArchetypeDistance)
}

// LowConfidence returns the dimensions worth probing further, least covered first.
func (p Profile) LowConfidence(threshold int) []types.DimensionScore {
	return scoring.LowestConfidenceDimensions(p.Dimensions, threshold)
}

type Builder struct {
	matcher *archetype.Matcher
	now     func() time.Time
}

func NewBuilder(m *archetype.Matcher) *Builder {
	return &Builder{matcher: m, now: time.Now}
}

// WithClock overrides the timestamp source.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build normalizes acc and matches the result against the archetypes.
func (b *Builder) Build(acc scoring.Accumulator) Profile {
	scores := scoring.NormalizeScores(acc)
	a, dist := b.matcher.Match(scores)
	return Profile{
		Dimensions:        scores,
		ArchetypeID:       a.ID,
		ArchetypeName:     a.Name,
		ArchetypeDistance: dist,
		CompletedAt:       b.now().UTC().Truncate(time.Second),
	}
}

// Adjust applies adj to p's scores and re-matches the archetype. p is not modified.
func (b *Builder) Adjust(p Profile, adj Adjustment) Profile {
	scores := scoring.ApplyAdjustments(p.Dimensions, adj.DimensionAdjustments, adj.ConfidenceBoosts)
	a, dist := b.matcher.Match(scores)
	return Profile{
		Dimensions:        scores,
		ArchetypeID:       a.ID,
		ArchetypeName:     a.Name,
		ArchetypeDistance: dist,
		CompletedAt:       p.CompletedAt,
	}
}
