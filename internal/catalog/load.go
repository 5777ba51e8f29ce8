package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/core-view/internal/scoring"
	"github.com/ZanzyTHEbar/core-view/internal/types"
)

//go:embed data/*.yaml
var embedded embed.FS

const (
	dimensionsFile = "dimensions.yaml"
	questionsFile  = "questions.yaml"
	feedbackFile   = "feedback.yaml"
	archetypesFile = "archetypes.yaml"
)

type dimensionsDoc struct {
	Version    int         `yaml:"version"`
	Dimensions []Dimension `yaml:"dimensions"`
}

type questionsDoc struct {
	Version   int             `yaml:"version"`
	Warmup    []Question      `yaml:"warmup"`
	Scenarios []Question      `yaml:"scenarios"`
	Rankings  []RankingSet    `yaml:"rankings"`
	Writing   []WritingPrompt `yaml:"writing"`
}

type feedbackDoc struct {
	Version   int        `yaml:"version"`
	Questions []Question `yaml:"questions"`
}

type archetypesDoc struct {
	Version    int         `yaml:"version"`
	Archetypes []Archetype `yaml:"archetypes"`
}

// Load builds the catalog compiled into the binary.
func Load() (*Catalog, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded catalog: %w", err)
	}
	return LoadFS(sub)
}

// LoadDir builds the catalog from a directory holding the four catalog files.
func LoadDir(dir string) (*Catalog, error) {
	return LoadFS(os.DirFS(dir))
}

// MustLoad is Load for process start; it panics if the embedded data is invalid.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// LoadFS reads, validates and indexes the catalog files found in fsys.
func LoadFS(fsys fs.FS) (*Catalog, error) {
	var (
		dims  dimensionsDoc
		qs    questionsDoc
		fb    feedbackDoc
		archs archetypesDoc
	)

	for name, dst := range map[string]any{
		dimensionsFile: &dims,
		questionsFile:  &qs,
		feedbackFile:   &fb,
		archetypesFile: &archs,
	} {
		if err := decodeFile(fsys, name, dst); err != nil {
			return nil, err
		}
	}

	versions := []int{dims.Version, qs.Version, fb.Version, archs.Version}
	for _, v := range versions[1:] {
		if v != versions[0] {
			return nil, fmt.Errorf("catalog files disagree on version: %v", versions)
		}
	}

	c := &Catalog{
		version:    dims.Version,
		dimensions: dims.Dimensions,
		bank: QuestionBank{
			Warmup:    qs.Warmup,
			Scenarios: qs.Scenarios,
			Rankings:  qs.Rankings,
			Writing:   qs.Writing,
		},
		feedback:   fb.Questions,
		archetypes: archs.Archetypes,
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	c.index()
	return c, nil
}

func decodeFile(fsys fs.FS, name string, dst any) error {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("failed to read catalog file %s: %w", name, err)
	}
	if err := yaml.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to parse catalog file %s: %w", name, err)
	}
	return nil
}

func (c *Catalog) index() {
	c.options = make(map[string]map[string]Option)
	c.questionTypes = make(map[string]types.QuestionType)
	c.rankings = make(map[string]*RankingSet)
	c.writing = make(map[string]*WritingPrompt)
	c.feedbackOptions = make(map[string]map[string]Option)
	c.archetypeIndex = make(map[string]int, len(c.archetypes))

	addQuestions := func(dst map[string]map[string]Option, qs []Question, qt types.QuestionType) {
		for _, q := range qs {
			opts := make(map[string]Option, len(q.Options))
			for _, o := range q.Options {
				opts[o.ID] = o
			}
			dst[q.ID] = opts
			if qt != "" {
				c.questionTypes[q.ID] = qt
			}
		}
	}

	addQuestions(c.options, c.bank.Warmup, types.QuestionWarmup)
	addQuestions(c.options, c.bank.Scenarios, types.QuestionScenario)
	for i := range c.bank.Rankings {
		rs := &c.bank.Rankings[i]
		c.rankings[rs.ID] = rs
		c.questionTypes[rs.ID] = types.QuestionRanking
	}
	for i := range c.bank.Writing {
		wp := &c.bank.Writing[i]
		c.writing[wp.ID] = wp
		c.questionTypes[wp.ID] = types.QuestionWriting
		addQuestions(c.options, wp.FollowUpQuestions, types.QuestionReflection)
	}
	addQuestions(c.feedbackOptions, c.feedback, "")

	for i, a := range c.archetypes {
		c.archetypeIndex[a.ID] = i
	}
}

func (c *Catalog) validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(c.dimensions) != types.DimensionCount {
		fail("expected %d dimensions, got %d", types.DimensionCount, len(c.dimensions))
	}
	for _, d := range c.dimensions {
		if !d.ID.Valid() {
			fail("dimension %q is not one of the fixed dimensions", d.ID)
		}
		if d.Name == "" {
			fail("dimension %q has no name", d.ID)
		}
	}

	checkDeltas := func(owner string, m types.DimensionScoreMap) {
		if len(m) == 0 {
			fail("%s has no dimension deltas", owner)
		}
		for d := range m {
			if !d.Valid() {
				fail("%s references unknown dimension %q", owner, d)
			}
		}
	}

	seenQuestions := make(map[string]bool)
	checkQuestion := func(q Question) {
		if q.ID == "" {
			fail("question without id")
			return
		}
		if seenQuestions[q.ID] {
			fail("duplicate question id %q", q.ID)
		}
		seenQuestions[q.ID] = true
		if q.Question == "" && q.Prompt == "" {
			fail("question %q has no text", q.ID)
		}
		if len(q.Options) < 2 {
			fail("question %q needs at least two options", q.ID)
		}
		seenOptions := make(map[string]bool)
		for _, o := range q.Options {
			if seenOptions[o.ID] {
				fail("question %q has duplicate option %q", q.ID, o.ID)
			}
			seenOptions[o.ID] = true
			checkDeltas(fmt.Sprintf("option %s/%s", q.ID, o.ID), o.DimensionScores)
		}
	}

	for _, q := range c.bank.Warmup {
		checkQuestion(q)
	}
	for _, q := range c.bank.Scenarios {
		checkQuestion(q)
	}
	for _, rs := range c.bank.Rankings {
		if seenQuestions[rs.ID] {
			fail("duplicate question id %q", rs.ID)
		}
		seenQuestions[rs.ID] = true
		if len(rs.Items) != scoring.RankingSize {
			fail("ranking %q has %d items, want %d", rs.ID, len(rs.Items), scoring.RankingSize)
		}
		if rs.TimeLimitMs <= 0 {
			fail("ranking %q has no time limit", rs.ID)
		}
		seenItems := make(map[string]bool)
		for _, it := range rs.Items {
			if seenItems[it.ID] {
				fail("ranking %q has duplicate item %q", rs.ID, it.ID)
			}
			seenItems[it.ID] = true
			checkDeltas(fmt.Sprintf("ranking item %s/%s", rs.ID, it.ID), it.DimensionWeights)
		}
	}
	for _, wp := range c.bank.Writing {
		if seenQuestions[wp.ID] {
			fail("duplicate question id %q", wp.ID)
		}
		seenQuestions[wp.ID] = true
		if wp.TimeLimitMs <= 0 {
			fail("writing prompt %q has no time limit", wp.ID)
		}
		for _, q := range wp.FollowUpQuestions {
			checkQuestion(q)
		}
	}

	// feedback ids live in their own namespace
	seenQuestions = make(map[string]bool)
	if len(c.feedback) == 0 {
		fail("feedback bank is empty")
	}
	for _, q := range c.feedback {
		checkQuestion(q)
	}

	if len(c.archetypes) == 0 {
		fail("archetype catalog is empty")
	}
	seenArchetypes := make(map[string]bool)
	for _, a := range c.archetypes {
		if a.ID == "" || a.Name == "" {
			fail("archetype %q is missing id or name", a.ID)
		}
		if seenArchetypes[a.ID] {
			fail("duplicate archetype id %q", a.ID)
		}
		seenArchetypes[a.ID] = true
		for _, d := range types.AllDimensions() {
			v, ok := a.Centroid[d]
			if !ok {
				fail("archetype %q centroid is missing %s", a.ID, d)
				continue
			}
			if v < 0 || v > 100 {
				fail("archetype %q centroid %s=%v is outside [0,100]", a.ID, d, v)
			}
		}
		for d := range a.Centroid {
			if !d.Valid() {
				fail("archetype %q centroid references unknown dimension %q", a.ID, d)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid catalog: %w", errors.Join(errs...))
	}
	return nil
}
