package categorization

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed seed/seed.yaml
var seedYAML []byte

// SeedCategory is a default category created on a fresh installation.
type SeedCategory struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Color       string `yaml:"color"`
}

// PaletteEntry is a category name with the color the accounting workbook uses for it.
type PaletteEntry struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

// LearnedRule is a rule distilled from past manual categorization. Patterns are literals.
type LearnedRule struct {
	Category string `yaml:"category"`
	Field    Field  `yaml:"field"`
	Pattern  string `yaml:"pattern"`
	Priority int    `yaml:"priority"`
}

// Rule sets shipped in the seed, in the order they were distilled.
const (
	RuleSetLearned  = "learned"
	RuleSetMore     = "more"
	RuleSetAdvanced = "advanced"
	RuleSetFinal    = "final"
	RuleSetAll      = "all"
)

// RuleSetNames lists the concrete sets in import order.
var RuleSetNames = []string{RuleSetLearned, RuleSetMore, RuleSetAdvanced, RuleSetFinal}

// SeedData is the embedded reference data.
type SeedData struct {
	Categories []SeedCategory           `yaml:"categories"`
	Palette    []PaletteEntry           `yaml:"palette"`
	RuleSets   map[string][]LearnedRule `yaml:"rule_sets"`
	Training   []TrainingExample        `yaml:"training"`
}

// Rules returns the rules of one set, or of every set in import order for RuleSetAll.
func (s *SeedData) Rules(set string) ([]LearnedRule, error) {
	if set == RuleSetAll {
		var all []LearnedRule
		for _, name := range RuleSetNames {
			all = append(all, s.RuleSets[name]...)
		}
		return all, nil
	}
	rules, ok := s.RuleSets[set]
	if !ok {
		return nil, fmt.Errorf("unknown rule set %q", set)
	}
	return rules, nil
}

// Category returns the seed entry for name, if any.
func (s *SeedData) Category(name string) (SeedCategory, bool) {
	for _, c := range s.Categories {
		if c.Name == name {
			return c, true
		}
	}
	return SeedCategory{}, false
}

var loadSeed = sync.OnceValues(func() (*SeedData, error) {
	return ParseSeed(seedYAML)
})

// DefaultSeed returns the embedded seed data. It is parsed once.
func DefaultSeed() (*SeedData, error) {
	return loadSeed()
}

// ParseSeed decodes seed data from YAML.
func ParseSeed(data []byte) (*SeedData, error) {
	var s SeedData
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse seed data: %w", err)
	}
	for set, rules := range s.RuleSets {
		for i, r := range rules {
			if !r.Field.Valid() {
				return nil, fmt.Errorf("rule set %s entry %d (%s): %w", set, i, r.Pattern, ErrInvalidField)
			}
		}
	}
	return &s, nil
}
