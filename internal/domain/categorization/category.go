// Package categorization assigns a spending category to every imported transaction.
//
// Categorize walks a fixed cascade and the first step that produces an answer wins:
//
//	chart column > deposit heuristics > built-in rules > stored rules > classifier > sentinel
//
// Rules and classifier context are captured once per batch in a Snapshot.
package categorization

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// Sentinel is the category of a transaction nothing could classify.
	Sentinel = "ไม่ระบุ"
	// InterCompanyCategory marks transfers between the group's own companies.
	InterCompanyCategory = "เงินโอนระหว่างบัญชีบริษัท"
	// DepositCategory marks incoming amounts that match a standard booking deposit.
	DepositCategory = "ยอดมัดจำ"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidRegex     = errors.New("invalid regular expression")
	ErrInvalidField     = errors.New("field must be note or description")
	ErrEmptyPattern     = errors.New("pattern must not be empty")
	ErrCategoryRequired = errors.New("category name is required")
)

// Confidence grades how much a reviewer should trust a suggestion.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence maps free text to a Confidence, defaulting to low.
func ParseConfidence(s string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMedium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Source names the cascade step that produced a Result.
type Source string

const (
	SourceChart      Source = "chart"
	SourceDeposit    Source = "deposit"
	SourceBuiltin    Source = "builtin"
	SourceRule       Source = "rule"
	SourceClassifier Source = "classifier"
	SourceNone       Source = "none"
)

// Result is the outcome of categorizing one transaction.
type Result struct {
	Category   string     `json:"category"`
	Confidence Confidence `json:"confidence"`
	Source     Source     `json:"source"`
	Reasoning  string     `json:"reasoning"`
}

// IsSentinel reports whether the result carries no usable category.
func (r Result) IsSentinel() bool {
	return r.Category == Sentinel
}

// Category is a named bucket. Name is the natural key.
type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Color       *string   `json:"color,omitempty"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Field selects which transaction text a stored rule is tested against.
type Field string

const (
	FieldNote        Field = "note"
	FieldDescription Field = "description"
)

func (f Field) Valid() bool {
	return f == FieldNote || f == FieldDescription
}

// CategoryRule is an administrator-maintained pattern. Lower priority runs first.
type CategoryRule struct {
	ID           uuid.UUID `json:"id"`
	CategoryID   uuid.UUID `json:"categoryId"`
	CategoryName string    `json:"categoryName"`
	Field        Field     `json:"field"`
	Pattern      string    `json:"pattern"`
	IsRegex      bool      `json:"isRegex"`
	Priority     int       `json:"priority"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IsThai reports whether s contains at least one rune of the Thai block (U+0E00-U+0E7F).
func IsThai(s string) bool {
	for _, r := range s {
		if r >= 0x0E00 && r <= 0x0E7F {
			return true
		}
	}
	return false
}
