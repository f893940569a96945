package categorization

import (
	"encoding/json"
	"regexp"
	"strings"
)

var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

// ParseSuggestion extracts the JSON object from a free-text model answer.
// Anything without a parseable object, or without a category, is ErrNoSuggestion.
func ParseSuggestion(text string) (*Suggestion, error) {
	raw := jsonObject.FindString(text)
	if raw == "" {
		return nil, ErrNoSuggestion
	}

	var s Suggestion
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, ErrNoSuggestion
	}
	s.Category = strings.TrimSpace(s.Category)
	if s.Category == "" {
		return nil, ErrNoSuggestion
	}
	return &s, nil
}

// ResolveCategory maps a suggested name onto the allow-list: exact match first,
// then case-insensitive containment in either direction. ok is false when neither holds.
func ResolveCategory(name string, allowed []string) (string, bool) {
	for _, c := range allowed {
		if c == name {
			return c, true
		}
	}

	needle := strings.ToLower(name)
	if needle == "" {
		return "", false
	}
	for _, c := range allowed {
		hay := strings.ToLower(c)
		if strings.Contains(hay, needle) || strings.Contains(needle, hay) {
			return c, true
		}
	}
	return "", false
}

// resolveSuggestion turns a raw suggestion into a Result.
func resolveSuggestion(s *Suggestion, allowed []string) Result {
	name, ok := ResolveCategory(s.Category, allowed)
	if !ok {
		return Result{
			Category:   Sentinel,
			Confidence: ConfidenceLow,
			Source:     SourceClassifier,
			Reasoning:  s.Reasoning,
		}
	}
	return Result{
		Category:   name,
		Confidence: ParseConfidence(s.Confidence),
		Source:     SourceClassifier,
		Reasoning:  s.Reasoning,
	}
}

// AllowList keeps the category names that contain Thai script, preserving order.
func AllowList(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if IsThai(n) {
			out = append(out, n)
		}
	}
	return out
}
