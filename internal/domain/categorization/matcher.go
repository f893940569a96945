package categorization

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// entry is one pattern of one rule, tested against one field.
type entry struct {
	rule    int
	field   Field
	literal bool
	pattern Pattern
}

// fieldTexts are the strings a rule table is matched against.
type fieldTexts struct {
	note        string
	description string
}

func (f fieldTexts) get(field Field) string {
	if field == FieldNote {
		return f.note
	}
	return f.description
}

// literalSet folds every literal of one field into a single Aho-Corasick automaton,
// so a text is scanned once no matter how many literals the table holds.
type literalSet struct {
	matcher *ahocorasick.Matcher
	owners  [][]int // automaton pattern index -> entry indexes
}

// ruleTable evaluates entries in order. Regex entries are tested individually,
// literal entries are resolved from one automaton pass per field.
type ruleTable struct {
	entries  []entry
	literals map[Field]*literalSet
}

func newRuleTable(entries []entry) *ruleTable {
	t := &ruleTable{entries: entries, literals: make(map[Field]*literalSet)}

	type acc struct {
		index    map[string]int
		patterns []string
		owners   [][]int
	}
	byField := make(map[Field]*acc)

	for i, e := range entries {
		if !e.literal {
			continue
		}
		lit := strings.ToLower(e.pattern.String())
		if lit == "" {
			continue
		}
		a, ok := byField[e.field]
		if !ok {
			a = &acc{index: make(map[string]int)}
			byField[e.field] = a
		}
		// Several rules may share a literal; keep every owner.
		if idx, exists := a.index[lit]; exists {
			a.owners[idx] = append(a.owners[idx], i)
			continue
		}
		a.index[lit] = len(a.patterns)
		a.patterns = append(a.patterns, lit)
		a.owners = append(a.owners, []int{i})
	}

	for field, a := range byField {
		t.literals[field] = &literalSet{
			matcher: ahocorasick.NewStringMatcher(a.patterns),
			owners:  a.owners,
		}
	}
	return t
}

// first returns the earliest entry that matches, or false.
func (t *ruleTable) first(texts fieldTexts) (entry, bool) {
	if t == nil || len(t.entries) == 0 {
		return entry{}, false
	}

	hits := make([]bool, len(t.entries))
	for field, set := range t.literals {
		lowered := strings.ToLower(texts.get(field))
		if lowered == "" {
			continue
		}
		for _, idx := range set.matcher.MatchThreadSafe([]byte(lowered)) {
			if idx < 0 || idx >= len(set.owners) {
				continue
			}
			for _, owner := range set.owners[idx] {
				hits[owner] = true
			}
		}
	}

	for i, e := range t.entries {
		if e.literal {
			if hits[i] {
				return e, true
			}
			continue
		}
		if e.pattern.Match(texts.get(e.field)) {
			return e, true
		}
	}
	return entry{}, false
}

// Len returns the number of entries in the table.
func (t *ruleTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
