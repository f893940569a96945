package categorization

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// CategoryMatch is a category ranked against a query.
type CategoryMatch struct {
	Category Category `json:"category"`
	Score    int      `json:"score"`    // 0-100, higher is closer
	Distance int      `json:"distance"` // Levenshtein distance in runes
}

// FuzzyMatcher ranks category names against free text. Review screens use it to find
// a category while typing; scores tolerate typos and partial names.
type FuzzyMatcher struct {
	entries []fuzzyEntry
	mu      sync.RWMutex
}

type fuzzyEntry struct {
	normalized string
	category   Category
}

// NewFuzzyMatcher creates a matcher over categories.
func NewFuzzyMatcher(categories []Category) *FuzzyMatcher {
	fm := &FuzzyMatcher{}
	fm.Build(categories)
	return fm
}

// Build replaces the indexed categories.
func (fm *FuzzyMatcher) Build(categories []Category) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	fm.entries = make([]fuzzyEntry, 0, len(categories))
	for _, c := range categories {
		n := normalizeFuzzy(c.Name)
		if n == "" {
			continue
		}
		fm.entries = append(fm.entries, fuzzyEntry{normalized: n, category: c})
	}
}

// Match returns the best category scoring at least threshold, or nil.
func (fm *FuzzyMatcher) Match(query string, threshold int) *CategoryMatch {
	ranked := fm.Rank(query, 1)
	if len(ranked) == 0 || ranked[0].Score < threshold {
		return nil
	}
	return &ranked[0]
}

// Rank returns categories by descending score, ties by name. limit <= 0 means all.
func (fm *FuzzyMatcher) Rank(query string, limit int) []CategoryMatch {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	q := normalizeFuzzy(query)
	if q == "" || len(fm.entries) == 0 {
		return nil
	}

	results := make([]CategoryMatch, 0, len(fm.entries))
	for _, e := range fm.entries {
		results = append(results, CategoryMatch{
			Category: e.category,
			Score:    fuzzyScore(q, e.normalized),
			Distance: levenshteinDistance(q, e.normalized),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Category.Name < results[j].Category.Name
	})

	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}

// Len returns the number of indexed categories.
func (fm *FuzzyMatcher) Len() int {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return len(fm.entries)
}

func normalizeFuzzy(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// fuzzyScore calculates a similarity score between two strings (0-100).
// Lengths are counted in runes so Thai names score like Latin ones.
func fuzzyScore(s1, s2 string) int {
	if s1 == s2 {
		return 100
	}

	l1, l2 := utf8.RuneCountInString(s1), utf8.RuneCountInString(s2)
	if strings.Contains(s1, s2) {
		return 75 + (25 * l2 / l1)
	}
	if strings.Contains(s2, s1) {
		return 75 + (25 * l1 / l2)
	}

	maxLen := max(l1, l2)
	if maxLen == 0 {
		return 0
	}
	levenshteinScore := 100 * (maxLen - levenshteinDistance(s1, s2)) / maxLen

	// Subsequence match: every rune of the shorter string appears in order.
	subsequenceScore := 0
	if rank := fuzzy.RankMatch(s1, s2); rank >= 0 && l2 > 0 {
		subsequenceScore = 70 - min(rank*40/l2, 40)
	}

	return max(levenshteinScore, subsequenceScore)
}

// levenshteinDistance calculates the edit distance between two strings
func levenshteinDistance(s1, s2 string) int {
	r1 := []rune(s1)
	r2 := []rune(s2)
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(r2)]
}
