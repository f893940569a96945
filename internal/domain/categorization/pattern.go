package categorization

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern is a compiled rule pattern. It is either a CompiledPattern or an InvalidPattern.
type Pattern interface {
	Match(text string) bool
	String() string
}

// CompiledPattern is a usable literal or regular expression.
type CompiledPattern struct {
	raw     string
	literal string
	re      *regexp.Regexp
}

// Match reports whether text contains the literal (case-insensitive) or matches the regex.
func (p *CompiledPattern) Match(text string) bool {
	if p.re != nil {
		return p.re.MatchString(text)
	}
	return strings.Contains(strings.ToLower(text), p.literal)
}

func (p *CompiledPattern) String() string { return p.raw }

// IsRegex reports whether the pattern is a regular expression.
func (p *CompiledPattern) IsRegex() bool { return p.re != nil }

// InvalidPattern is a stored regex that failed to compile. It never matches.
type InvalidPattern struct {
	raw string
	Err error
}

func (p *InvalidPattern) Match(string) bool { return false }

func (p *InvalidPattern) String() string { return p.raw }

// CompilePattern compiles a stored rule pattern. Regexes are always case-insensitive.
func CompilePattern(pattern string, isRegex bool) Pattern {
	if !isRegex {
		return &CompiledPattern{raw: pattern, literal: strings.ToLower(pattern)}
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return &InvalidPattern{raw: pattern, Err: fmt.Errorf("%w: %v", ErrInvalidRegex, err)}
	}
	return &CompiledPattern{raw: pattern, re: re}
}

// ValidatePattern returns ErrInvalidRegex (wrapped) when a regex pattern does not compile.
func ValidatePattern(pattern string, isRegex bool) error {
	if strings.TrimSpace(pattern) == "" {
		return ErrEmptyPattern
	}
	if p, ok := CompilePattern(pattern, isRegex).(*InvalidPattern); ok {
		return p.Err
	}
	return nil
}

// TestPattern reports whether pattern matches text using stored-rule semantics.
// An invalid regex yields the compile error and no match.
func TestPattern(pattern string, isRegex bool, text string) (bool, error) {
	p := CompilePattern(pattern, isRegex)
	if inv, ok := p.(*InvalidPattern); ok {
		return false, inv.Err
	}
	return p.Match(text), nil
}
