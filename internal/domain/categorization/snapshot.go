package categorization

import (
	"sort"

	"github.com/FACorreiaa/statement-ledger/internal/domain/corrections"
)

// Snapshot is the rule and classifier context of one batch. It is immutable once built,
// so edits made while a batch runs only take effect on the next batch.
type Snapshot struct {
	rules       []CategoryRule
	table       *ruleTable
	allowList   []string
	examples    []TrainingExample
	corrections []corrections.Correction
}

// NewSnapshot compiles the active rules in priority order. categories is the full list of
// category names; only Thai names are offered to the classifier. examples is the training
// corpus, reduced to the few-shot selection.
func NewSnapshot(rules []CategoryRule, categories []string, examples []TrainingExample, recent []corrections.Correction) *Snapshot {
	active := make([]CategoryRule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Priority < active[j].Priority })

	entries := make([]entry, 0, len(active))
	for i, r := range active {
		field := r.Field
		if !field.Valid() {
			field = FieldNote
		}
		entries = append(entries, newEntry(i, field, CompilePattern(r.Pattern, r.IsRegex)))
	}

	return &Snapshot{
		rules:       active,
		table:       newRuleTable(entries),
		allowList:   AllowList(categories),
		examples:    FewShot(examples),
		corrections: recent,
	}
}

// Rules returns the active rules in evaluation order.
func (s *Snapshot) Rules() []CategoryRule {
	return s.rules
}

// AllowList returns the names the classifier may answer with.
func (s *Snapshot) AllowList() []string {
	if s == nil {
		return nil
	}
	return s.allowList
}

// InvalidRules returns the active rules whose regex does not compile.
func (s *Snapshot) InvalidRules() []CategoryRule {
	if s == nil {
		return nil
	}
	var out []CategoryRule
	for _, e := range s.table.entries {
		if _, ok := e.pattern.(*InvalidPattern); ok {
			out = append(out, s.rules[e.rule])
		}
	}
	return out
}

func (s *Snapshot) match(texts fieldTexts) (CategoryRule, bool) {
	if s == nil {
		return CategoryRule{}, false
	}
	e, ok := s.table.first(texts)
	if !ok {
		return CategoryRule{}, false
	}
	return s.rules[e.rule], true
}
