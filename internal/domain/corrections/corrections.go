// Package corrections keeps the append-only log of human overrides of suggested categories.
// Recent entries are fed back to the classifier as higher-precedence examples.
package corrections

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultRecentLimit is how many corrections a classifier prompt includes.
const DefaultRecentLimit = 50

// Correction records that a reviewer replaced a suggested category.
type Correction struct {
	ID           uuid.UUID
	Note         string
	Description  string
	AICategory   string
	UserCategory string
	CreatedAt    time.Time
}

// Store appends and reads corrections.
type Store interface {
	// Record appends a correction when ShouldRecord holds and reports whether it did.
	Record(ctx context.Context, note, rawDescription, suggested, chosen string) (bool, error)
	// Recent returns up to limit corrections, newest first.
	Recent(ctx context.Context, limit int) ([]Correction, error)
}

// ShouldRecord reports whether an override carries a learnable signal: the note must be
// non-blank and the chosen category must differ from the suggestion.
func ShouldRecord(note, suggested, chosen string) bool {
	return strings.TrimSpace(note) != "" && chosen != suggested
}
