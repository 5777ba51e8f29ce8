package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/ZanzyTHEbar/core-view/internal/types"
)

var ErrNoAdjustment = errors.New("text does not carry a completed adjustment")

// Source names the conversation that produced an adjustment.
type Source string

const (
	SourceDeepDive       Source = "deep_dive"
	SourceReconciliation Source = "reconciliation"
)

func (s Source) Valid() bool {
	return s == SourceDeepDive || s == SourceReconciliation
}

// Adjustment is the completion payload of a follow-up conversation: integer
// score deltas and confidence boosts per dimension.
type Adjustment struct {
	Complete             bool                        `json:"complete"`
	DimensionAdjustments map[types.Dimension]float64 `json:"dimension_adjustments"`
	ConfidenceBoosts     map[types.Dimension]float64 `json:"confidence_boosts"`
}

type rawAdjustment struct {
	Complete             bool               `json:"complete"`
	DimensionAdjustments map[string]float64 `json:"dimension_adjustments"`
	ConfidenceBoosts     map[string]float64 `json:"confidence_boosts"`
}

var (
	fencePattern    = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	plusSignPattern = regexp.MustCompile(`:\s*\+(\d)`)
)

// ParseAdjustment extracts an Adjustment from model output. It accepts the
// JSON bare or inside a code fence, tolerates explicit plus signs on numbers
// and repairs minor syntax damage. Keys that are not dimensions are dropped.
// Text that is valid but not a completion yields ErrNoAdjustment.
func ParseAdjustment(text string) (Adjustment, error) {
	body := strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}
	body = plusSignPattern.ReplaceAllString(body, ": $1")

	var raw rawAdjustment
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(body)
		if repairErr != nil {
			return Adjustment{}, fmt.Errorf("failed to parse adjustment: %w", err)
		}
		raw = rawAdjustment{}
		if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
			return Adjustment{}, fmt.Errorf("failed to parse repaired adjustment: %w", err)
		}
	}

	if !raw.Complete || raw.DimensionAdjustments == nil {
		return Adjustment{}, ErrNoAdjustment
	}

	return Adjustment{
		Complete:             true,
		DimensionAdjustments: knownDimensions(raw.DimensionAdjustments),
		ConfidenceBoosts:     knownDimensions(raw.ConfidenceBoosts),
	}, nil
}

func knownDimensions(in map[string]float64) map[types.Dimension]float64 {
	out := make(map[types.Dimension]float64, len(in))
	for k, v := range in {
		d := types.Dimension(strings.ToLower(strings.TrimSpace(k)))
		if d.Valid() {
			out[d] += v
		}
	}
	return out
}
