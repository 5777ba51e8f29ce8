// Package catalog holds the static reference data the scoring engine runs
// against: dimension metadata, the self-report question bank, the feedback
// question bank and the archetype prototypes. A Catalog is built once and is
// read-only afterwards; callers must not modify the slices it returns.
package catalog

import (
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/core-view/internal/types"
)

var (
	ErrUnknownQuestion  = errors.New("unknown question")
	ErrUnknownOption    = errors.New("unknown option")
	ErrUnknownArchetype = errors.New("unknown archetype")
)

type Dimension struct {
	ID               types.Dimension `yaml:"id" json:"id"`
	Name             string          `yaml:"name" json:"name"`
	LeftPole         string          `yaml:"left_pole" json:"leftPole"`
	RightPole        string          `yaml:"right_pole" json:"rightPole"`
	LeftDescription  string          `yaml:"left_description" json:"leftDescription"`
	RightDescription string          `yaml:"right_description" json:"rightDescription"`
}

type Option struct {
	ID              string                  `yaml:"id" json:"id"`
	Label           string                  `yaml:"label" json:"label"`
	DimensionScores types.DimensionScoreMap `yaml:"dimension_scores" json:"-"`
}

// Question is a multiple-choice question. Warmup, feedback and follow-up
// questions carry Question; scenarios carry AgeContext and Prompt.
type Question struct {
	ID         string   `yaml:"id" json:"id"`
	Question   string   `yaml:"question,omitempty" json:"question,omitempty"`
	AgeContext string   `yaml:"age_context,omitempty" json:"ageContext,omitempty"`
	Prompt     string   `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Options    []Option `yaml:"options" json:"options"`
}

type RankingItem struct {
	ID               string                  `yaml:"id" json:"id"`
	Label            string                  `yaml:"label" json:"label"`
	DimensionWeights types.DimensionScoreMap `yaml:"dimension_weights" json:"-"`
}

// RankingSet is a timed ranking exercise. Inverted sets ask what the user
// would give up first, so a high rank counts against the item's traits.
type RankingSet struct {
	ID          string        `yaml:"id" json:"id"`
	Prompt      string        `yaml:"prompt" json:"prompt"`
	TimeLimitMs int64         `yaml:"time_limit_ms" json:"timeLimitMs"`
	Inverted    bool          `yaml:"inverted,omitempty" json:"-"`
	Items       []RankingItem `yaml:"items" json:"items"`
}

type WritingPrompt struct {
	ID                string     `yaml:"id" json:"id"`
	Prompt            string     `yaml:"prompt" json:"prompt"`
	TimeLimitMs       int64      `yaml:"time_limit_ms" json:"timeLimitMs"`
	FollowUpQuestions []Question `yaml:"follow_up_questions" json:"followUpQuestions"`
}

type Archetype struct {
	ID             string                     `yaml:"id" json:"id"`
	Name           string                     `yaml:"name" json:"name"`
	CoreSentence   string                     `yaml:"core_sentence" json:"coreSentence"`
	Description    string                     `yaml:"description" json:"description"`
	DimensionTexts map[types.Dimension]string `yaml:"dimension_texts" json:"dimensionTexts"`
	Strengths      []string                   `yaml:"strengths" json:"strengths"`
	WatchOuts      []string                   `yaml:"watch_outs" json:"watchOuts"`
	Centroid       types.DimensionScoreMap    `yaml:"centroid" json:"centroid"`
}

// QuestionBank is the self-report side of the catalog, in wizard order.
type QuestionBank struct {
	Warmup    []Question      `json:"warmup"`
	Scenarios []Question      `json:"scenarios"`
	Rankings  []RankingSet    `json:"rankings"`
	Writing   []WritingPrompt `json:"writing"`
}

type Catalog struct {
	version    int
	dimensions []Dimension
	bank       QuestionBank
	feedback   []Question
	archetypes []Archetype

	options         map[string]map[string]Option
	questionTypes   map[string]types.QuestionType
	rankings        map[string]*RankingSet
	writing         map[string]*WritingPrompt
	feedbackOptions map[string]map[string]Option
	archetypeIndex  map[string]int
}

func (c *Catalog) Version() int { return c.version }

func (c *Catalog) Dimensions() []Dimension { return c.dimensions }

func (c *Catalog) Questions() QuestionBank { return c.bank }

func (c *Catalog) FeedbackQuestions() []Question { return c.feedback }

// Archetypes returns the prototypes in catalog order. Matching relies on this
// order being stable for tie-breaking.
func (c *Catalog) Archetypes() []Archetype { return c.archetypes }

// Dimension returns metadata for a dimension id.
func (c *Catalog) Dimension(id types.Dimension) (Dimension, bool) {
	for _, d := range c.dimensions {
		if d.ID == id {
			return d, true
		}
	}
	return Dimension{}, false
}

// QuestionType reports which section of the self-report bank a question id belongs to.
func (c *Catalog) QuestionType(questionID string) (types.QuestionType, bool) {
	t, ok := c.questionTypes[questionID]
	return t, ok
}

// Option looks up a multiple-choice option among warmup, scenario and
// follow-up questions.
func (c *Catalog) Option(questionID, optionID string) (Option, error) {
	opts, ok := c.options[questionID]
	if !ok {
		return Option{}, fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	opt, ok := opts[optionID]
	if !ok {
		return Option{}, fmt.Errorf("%w: %s/%s", ErrUnknownOption, questionID, optionID)
	}
	return opt, nil
}

func (c *Catalog) RankingSet(id string) (*RankingSet, error) {
	rs, ok := c.rankings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, id)
	}
	return rs, nil
}

func (c *Catalog) WritingPrompt(id string) (*WritingPrompt, error) {
	wp, ok := c.writing[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, id)
	}
	return wp, nil
}

// FeedbackOption looks up an option in the third-party feedback bank.
func (c *Catalog) FeedbackOption(questionID, optionID string) (Option, error) {
	opts, ok := c.feedbackOptions[questionID]
	if !ok {
		return Option{}, fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	opt, ok := opts[optionID]
	if !ok {
		return Option{}, fmt.Errorf("%w: %s/%s", ErrUnknownOption, questionID, optionID)
	}
	return opt, nil
}

func (c *Catalog) Archetype(id string) (Archetype, error) {
	i, ok := c.archetypeIndex[id]
	if !ok {
		return Archetype{}, fmt.Errorf("%w: %s", ErrUnknownArchetype, id)
	}
	return c.archetypes[i], nil
}

// Item returns the ranking item with the given id.
func (rs *RankingSet) Item(id string) (RankingItem, bool) {
	for _, it := range rs.Items {
		if it.ID == id {
			return it, true
		}
	}
	return RankingItem{}, false
}
