package types

import (
	"fmt"
	"time"
)

// Dimension identifies one of the five personality axes.
type Dimension string

const (
	Energy      Dimension = "energy"
	Processing  Dimension = "processing"
	Uncertainty Dimension = "uncertainty"
	Social      Dimension = "social"
	Response    Dimension = "response"
)

// DimensionCount is the size of the closed dimension set.
const DimensionCount = 5

var dimensionOrder = [DimensionCount]Dimension{Energy, Processing, Uncertainty, Social, Response}

// AllDimensions returns the dimensions in their fixed display order.
func AllDimensions() []Dimension {
	out := make([]Dimension, DimensionCount)
	copy(out, dimensionOrder[:])
	return out
}

// Index returns the position of d in the fixed order, or -1 if d is not a dimension.
func (d Dimension) Index() int {
	for i, dim := range dimensionOrder {
		if dim == d {
			return i
		}
	}
	return -1
}

// Valid reports whether d is one of the five dimensions.
func (d Dimension) Valid() bool {
	return d.Index() >= 0
}

// ParseDimension converts a raw identifier into a Dimension.
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown dimension %q", s)
	}
	return d, nil
}

// DimensionScoreMap is a sparse dimension to delta (or weight, or centroid) mapping.
type DimensionScoreMap map[Dimension]float64

// DimensionScore is the normalized output for a single dimension.
type DimensionScore struct {
	DimensionID Dimension `json:"dimensionId"`
	Score       int       `json:"score"`
	Confidence  int       `json:"confidence"`
}

// QuestionType tags the kind of answer carried by a ResponseEvent.
type QuestionType string

const (
	QuestionWarmup     QuestionType = "warmup"
	QuestionScenario   QuestionType = "scenario"
	QuestionReflection QuestionType = "reflection"
	QuestionRanking    QuestionType = "ranking"
	QuestionWriting    QuestionType = "writing"
)

// WritingMeta captures typing behavior while answering a writing prompt.
type WritingMeta struct {
	TimeToFirstKeystrokeMs int64 `json:"timeToFirstKeystrokeMs"`
	TotalCharacters        int   `json:"totalCharacters"`
	PauseCount             int   `json:"pauseCount"`
}

// ResponseEvent is a single answer produced by the wizard.
type ResponseEvent struct {
	QuestionID     string       `json:"questionId" binding:"required"`
	QuestionType   QuestionType `json:"questionType" binding:"required"`
	OptionID       string       `json:"optionId,omitempty"`
	Ranking        []string     `json:"ranking,omitempty"`
	Text           string       `json:"text,omitempty"`
	ReactionTimeMs *int64       `json:"reactionTimeMs,omitempty"`
	Metadata       *WritingMeta `json:"metadata,omitempty"`
	AnsweredAt     time.Time    `json:"answeredAt"`
}

// FeedbackResponse is one third-party answer to a feedback question.
type FeedbackResponse struct {
	QuestionID string `json:"questionId" binding:"required"`
	OptionID   string `json:"optionId" binding:"required"`
}

// WizardStep is the position of a session in the self-report flow.
type WizardStep string

const (
	StepWarmup     WizardStep = "warmup"
	StepScenarios  WizardStep = "scenarios"
	StepRanking    WizardStep = "ranking"
	StepWriting    WizardStep = "writing"
	StepProcessing WizardStep = "processing"
)

var stepOrder = []WizardStep{StepWarmup, StepScenarios, StepRanking, StepWriting, StepProcessing}

// Next returns the step after s. The last step has no successor.
func (s WizardStep) Next() (WizardStep, bool) {
	for i, step := range stepOrder {
		if step == s && i+1 < len(stepOrder) {
			return stepOrder[i+1], true
		}
	}
	return "", false
}

// Valid reports whether s is a known wizard step.
func (s WizardStep) Valid() bool {
	for _, step := range stepOrder {
		if step == s {
			return true
		}
	}
	return false
}
