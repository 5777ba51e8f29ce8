// Package archetype assigns a score vector to its nearest archetype prototype.
package archetype

import (
	"math"
	"sort"

	"github.com/ZanzyTHEbar/core-view/internal/catalog"
	apperrors "github.com/ZanzyTHEbar/core-view/internal/errors"
	"github.com/ZanzyTHEbar/core-view/internal/types"
)

// FitThreshold is the distance above which an assignment is treated as a
// questionable fit and worth a follow-up conversation.
const FitThreshold = 15.0

// Match is one archetype together with its distance from a score vector.
type Match struct {
	Archetype catalog.Archetype `json:"archetype"`
	Distance  float64           `json:"distance"`
}

type prototype struct {
	archetype catalog.Archetype
	centroid  [types.DimensionCount]float64
}

// Matcher is a nearest-centroid classifier over a fixed set of archetypes.
// It is immutable and safe for concurrent use.
type Matcher struct {
	prototypes []prototype
}

// NewMatcher builds a matcher over the catalog's archetypes, preserving
// catalog order.
func NewMatcher(c *catalog.Catalog) *Matcher {
	return NewMatcherFor(c.Archetypes())
}

// NewMatcherFor builds a matcher over an explicit archetype list.
func NewMatcherFor(archetypes []catalog.Archetype) *Matcher {
	if len(archetypes) == 0 {
		apperrors.Violatef("matcher needs at least one archetype")
	}
	m := &Matcher{prototypes: make([]prototype, len(archetypes))}
	for i, a := range archetypes {
		p := prototype{archetype: a}
		for j, d := range types.AllDimensions() {
			v, ok := a.Centroid[d]
			if !ok {
				apperrors.Violatef("archetype %q centroid is missing %s", a.ID, d)
			}
			p.centroid[j] = v
		}
		m.prototypes[i] = p
	}
	return m
}

// Match returns the archetype closest to scores and the Euclidean distance to
// it. On an exact tie the archetype listed first in the catalog wins.
func (m *Matcher) Match(scores []types.DimensionScore) (catalog.Archetype, float64) {
	vec := vectorOf(scores)

	best := 0
	bestDist := math.Inf(1)
	for i := range m.prototypes {
		dist := distance(vec, m.prototypes[i].centroid)
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return m.prototypes[best].archetype, bestDist
}

// Ranked returns every archetype ordered by distance, nearest first. Ties
// keep catalog order, so Ranked(scores)[0] agrees with Match.
func (m *Matcher) Ranked(scores []types.DimensionScore) []Match {
	vec := vectorOf(scores)

	out := make([]Match, len(m.prototypes))
	for i := range m.prototypes {
		out[i] = Match{
			Archetype: m.prototypes[i].archetype,
			Distance:  distance(vec, m.prototypes[i].centroid),
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Distance < out[j].Distance
	})
	return out
}

// NeedsFitReview reports whether distance is large enough that the archetype
// assignment should be questioned.
func NeedsFitReview(distance float64) bool {
	return distance > FitThreshold
}

func vectorOf(scores []types.DimensionScore) [types.DimensionCount]float64 {
	if len(scores) != types.DimensionCount {
		apperrors.Violatef("expected %d dimension scores, got %d", types.DimensionCount, len(scores))
	}
	var vec [types.DimensionCount]float64
	var seen [types.DimensionCount]bool
	for _, s := range scores {
		i := s.DimensionID.Index()
		if i < 0 {
			apperrors.Violatef("unknown dimension %q", s.DimensionID)
		}
		if seen[i] {
			apperrors.Violatef("duplicate score for %s", s.DimensionID)
		}
		seen[i] = true
		vec[i] = float64(s.Score)
	}
	return vec
}

func distance(a, b [types.DimensionCount]float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
