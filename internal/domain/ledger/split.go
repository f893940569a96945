package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ledger/pkg/money"
)

// MinAllocations is the smallest number of parts a split can have.
const MinAllocations = 2

var (
	ErrTooFewAllocations      = fmt.Errorf("split needs at least %d allocations", MinAllocations)
	ErrNonPositiveAllocation  = errors.New("split allocation amount must be greater than zero")
	ErrMissingAllocationOwner = errors.New("split allocation needs a category")
)

// Allocation is one requested part of a split.
type Allocation struct {
	CategoryID uuid.UUID
	Amount     decimal.Decimal
	Note       *string
}

// Split is a persisted allocation row.
type Split struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	CategoryID    uuid.UUID
	Amount        decimal.Decimal
	Note          *string
	CreatedAt     time.Time
}

// ImbalanceError reports a split whose parts do not add up to the parent amount.
type ImbalanceError struct {
	Total    decimal.Decimal
	Original decimal.Decimal
}

// Difference is total minus original: negative is a shortfall, positive an excess.
func (e *ImbalanceError) Difference() decimal.Decimal {
	return e.Total.Sub(e.Original)
}

func (e *ImbalanceError) Error() string {
	diff := e.Difference()
	direction := "over by"
	if diff.IsNegative() {
		direction = "short by"
	}
	return fmt.Sprintf("split total (%s) does not match original (%s): %s %s",
		money.Fixed(e.Total), money.Fixed(e.Original), direction, money.Fixed(diff.Abs()))
}

// ValidateShape checks the parts of a split without looking at the parent amount.
func ValidateShape(allocations []Allocation) error {
	if len(allocations) < MinAllocations {
		return ErrTooFewAllocations
	}
	for i, a := range allocations {
		if a.CategoryID == uuid.Nil {
			return fmt.Errorf("allocation %d: %w", i+1, ErrMissingAllocationOwner)
		}
		if !money.Normalize(a.Amount).IsPositive() {
			return fmt.Errorf("allocation %d: %w", i+1, ErrNonPositiveAllocation)
		}
	}
	return nil
}

// ValidateAllocations checks shape and that the parts sum to original within 0.01.
func ValidateAllocations(original decimal.Decimal, allocations []Allocation) error {
	if err := ValidateShape(allocations); err != nil {
		return err
	}

	amounts := make([]decimal.Decimal, len(allocations))
	for i, a := range allocations {
		amounts[i] = a.Amount
	}
	total := money.Sum(amounts...)

	if !money.Within(total, original, money.SplitTolerance) {
		return &ImbalanceError{Total: total, Original: original}
	}
	return nil
}
