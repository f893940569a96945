package categorization

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ledger/internal/domain/corrections"
)

// ErrNoSuggestion is returned by a Classifier whose response could not be understood.
var ErrNoSuggestion = errors.New("classifier returned no usable suggestion")

// TrainingExample is a manually labelled note used as a few-shot example.
type TrainingExample struct {
	Note     string `yaml:"note"`
	Category string `yaml:"category"`
}

// Request is everything a classifier needs to label one transaction.
type Request struct {
	Note        string
	Description string
	Withdrawal  *decimal.Decimal
	Deposit     *decimal.Decimal

	// Categories is the allow-list the answer must come from.
	Categories  []string
	Examples    []TrainingExample
	Corrections []corrections.Correction
}

// Suggestion is a classifier's raw answer, before it is resolved against the allow-list.
type Suggestion struct {
	Category   string `json:"category"`
	Confidence string `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// Classifier labels a transaction the rule tables could not.
type Classifier interface {
	Classify(ctx context.Context, req Request) (*Suggestion, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, req Request) (*Suggestion, error)

func (f ClassifierFunc) Classify(ctx context.Context, req Request) (*Suggestion, error) {
	return f(ctx, req)
}
