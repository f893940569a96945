package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Outcome tells whether an upsert created a record or updated one in place.
type Outcome int

const (
	OutcomeInserted Outcome = iota + 1
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// ListFilter narrows List results. Zero values mean "no constraint".
type ListFilter struct {
	From          *time.Time
	To            *time.Time
	CategoryID    *uuid.UUID
	Uncategorized bool
	Limit         int
	Offset        int
}

// CategoryTotal aggregates amounts per category over a date range.
// Split transactions contribute their allocations instead of the parent row.
type CategoryTotal struct {
	Category    string
	Count       int
	Withdrawals decimal.Decimal
	Deposits    decimal.Decimal
}

// Repository persists transactions and their split allocations.
type Repository interface {
	// FindByIdentity returns the record with exactly this key (nil withdrawal matches nil), or nil.
	FindByIdentity(ctx context.Context, key IdentityKey) (*Transaction, error)
	// Upsert looks up the identity key and updates in place or inserts, in one DB transaction.
	Upsert(ctx context.Context, tx *Transaction) (Outcome, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetSplits(ctx context.Context, transactionID uuid.UUID) ([]Split, error)
	// Split replaces all allocations of a transaction atomically after checking they balance.
	Split(ctx context.Context, transactionID uuid.UUID, allocations []Allocation) ([]Split, error)
	Unsplit(ctx context.Context, transactionID uuid.UUID, fallback *uuid.UUID) error
	Update(ctx context.Context, id uuid.UUID, categoryID *uuid.UUID, note *string) error
	SetCategory(ctx context.Context, id uuid.UUID, categoryID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ListFilter) ([]Transaction, error)
	ListUncategorizedWithdrawals(ctx context.Context, sentinel string, limit int) ([]Transaction, error)
	SummarizeByCategory(ctx context.Context, from, to time.Time, sentinel string) ([]CategoryTotal, error)
}
