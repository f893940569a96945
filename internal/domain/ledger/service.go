package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// TransactionWithSplits is a transaction together with its allocations.
type TransactionWithSplits struct {
	Transaction *Transaction
	Splits      []Split
}

// Service provides split ledger and transaction maintenance operations
type Service struct {
	repo     Repository
	sentinel string
	logger   *slog.Logger
}

// NewService creates a new ledger service. sentinel names the catch-all category used
// in summaries for rows without one.
func NewService(repo Repository, sentinel string, logger *slog.Logger) *Service {
	return &Service{repo: repo, sentinel: sentinel, logger: logger}
}

// Get returns a transaction and, when split, its allocations.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*TransactionWithSplits, error) {
	tx, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	out := &TransactionWithSplits{Transaction: tx}
	if tx.IsSplit {
		out.Splits, err = s.repo.GetSplits(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// List returns transactions matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Transaction, error) {
	return s.repo.List(ctx, filter)
}

// Split replaces the allocations of a transaction. Shape errors are returned before the
// database is touched; the balance check runs against the locked row.
func (s *Service) Split(ctx context.Context, id uuid.UUID, allocations []Allocation) ([]Split, error) {
	if err := ValidateShape(allocations); err != nil {
		return nil, err
	}

	splits, err := s.repo.Split(ctx, id, allocations)
	if err != nil {
		return nil, err
	}

	s.logger.Info("transaction split", "transaction_id", id, "parts", len(splits))
	return splits, nil
}

// Unsplit removes all allocations and assigns fallback (which may be nil).
func (s *Service) Unsplit(ctx context.Context, id uuid.UUID, fallback *uuid.UUID) error {
	if err := s.repo.Unsplit(ctx, id, fallback); err != nil {
		return err
	}
	s.logger.Info("transaction unsplit", "transaction_id", id)
	return nil
}

// Update changes the category and note of a transaction.
func (s *Service) Update(ctx context.Context, id uuid.UUID, categoryID *uuid.UUID, note *string) (*Transaction, error) {
	if err := s.repo.Update(ctx, id, categoryID, note); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Delete removes a transaction and its allocations.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("transaction deleted", "transaction_id", id)
	return nil
}

// Summary totals the [from, to) range per category.
func (s *Service) Summary(ctx context.Context, from, to time.Time) ([]CategoryTotal, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("summary range end must be after start")
	}
	return s.repo.SummarizeByCategory(ctx, from, to, s.sentinel)
}
