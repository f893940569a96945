package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ledger/pkg/money"
)

// MemoryRepository is an in-process Repository with the same identity and split
// semantics as PostgresRepository. The CLI uses it for dry runs.
type MemoryRepository struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]*Transaction
	byKey      map[string]uuid.UUID
	splits     map[uuid.UUID][]Split
	now        func() time.Time
	categoryID CategoryIDFunc
}

// CategoryIDFunc looks a category id up by name. ok is false when no such category exists.
type CategoryIDFunc func(ctx context.Context, name string) (id uuid.UUID, ok bool, err error)

// ResolveCategoriesWith lets name-based queries match rows by category id. Without it
// only rows with no category count as uncategorized.
func (m *MemoryRepository) ResolveCategoriesWith(fn CategoryIDFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categoryID = fn
}

// NewMemoryRepository creates an empty in-memory ledger.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[uuid.UUID]*Transaction),
		byKey:  make(map[string]uuid.UUID),
		splits: make(map[uuid.UUID][]Split),
		now:    time.Now,
	}
}

// Len returns the number of stored transactions.
func (m *MemoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func (m *MemoryRepository) FindByIdentity(_ context.Context, key IdentityKey) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byKey[key.String()]
	if !ok {
		return nil, nil
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *MemoryRepository) Upsert(_ context.Context, tx *Transaction) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tx.Key().String()
	now := m.now()

	if id, ok := m.byKey[key]; ok {
		existing := m.byID[id]
		existing.Description = tx.Description
		existing.RawDescription = tx.RawDescription
		existing.Note = tx.Note
		existing.Deposit = tx.Deposit
		existing.AccountName = tx.AccountName
		existing.AccountType = tx.AccountType
		existing.Channel = tx.Channel
		existing.TransactionCode = tx.TransactionCode
		existing.ChequeNumber = tx.ChequeNumber
		if !existing.IsSplit {
			existing.CategoryID = tx.CategoryID
		}
		existing.UpdatedAt = now

		tx.ID = existing.ID
		tx.CategoryID = existing.CategoryID
		tx.IsSplit = existing.IsSplit
		tx.CreatedAt = existing.CreatedAt
		tx.UpdatedAt = now
		return OutcomeUpdated, nil
	}

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	tx.IsSplit = false
	tx.CreatedAt, tx.UpdatedAt = now, now

	cp := *tx
	cp.Chart = nil
	m.byID[tx.ID] = &cp
	m.byKey[key] = tx.ID
	return OutcomeInserted, nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *MemoryRepository) GetSplits(_ context.Context, transactionID uuid.UUID) ([]Split, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.splits[transactionID]), nil
}

func (m *MemoryRepository) Split(_ context.Context, transactionID uuid.UUID, allocations []Allocation) ([]Split, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.byID[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	if err := ValidateAllocations(tx.Amount(), allocations); err != nil {
		return nil, err
	}

	now := m.now()
	splits := make([]Split, 0, len(allocations))
	for _, a := range allocations {
		splits = append(splits, Split{
			ID:            uuid.New(),
			TransactionID: transactionID,
			CategoryID:    a.CategoryID,
			Amount:        money.Normalize(a.Amount),
			Note:          a.Note,
			CreatedAt:     now,
		})
	}

	m.splits[transactionID] = splits
	tx.IsSplit = true
	tx.CategoryID = nil
	tx.UpdatedAt = now
	return slices.Clone(splits), nil
}

func (m *MemoryRepository) Unsplit(_ context.Context, transactionID uuid.UUID, fallback *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.byID[transactionID]
	if !ok {
		return ErrNotFound
	}
	delete(m.splits, transactionID)
	tx.IsSplit = false
	tx.CategoryID = fallback
	tx.UpdatedAt = m.now()
	return nil
}

func (m *MemoryRepository) Update(_ context.Context, id uuid.UUID, categoryID *uuid.UUID, note *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if categoryID != nil {
		delete(m.splits, id)
		tx.IsSplit = false
	}
	tx.CategoryID = categoryID
	tx.Note = note
	tx.UpdatedAt = m.now()
	return nil
}

func (m *MemoryRepository) SetCategory(_ context.Context, id uuid.UUID, categoryID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.byID[id]
	if !ok || tx.IsSplit {
		return ErrNotFound
	}
	tx.CategoryID = &categoryID
	tx.UpdatedAt = m.now()
	return nil
}

func (m *MemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.splits, id)
	delete(m.byKey, tx.Key().String())
	delete(m.byID, id)
	return nil
}

func (m *MemoryRepository) List(_ context.Context, filter ListFilter) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Transaction
	for _, tx := range m.byID {
		if filter.From != nil && tx.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !tx.Date.Before(*filter.To) {
			continue
		}
		if filter.CategoryID != nil && (tx.CategoryID == nil || *tx.CategoryID != *filter.CategoryID) {
			continue
		}
		if filter.Uncategorized && (tx.CategoryID != nil || tx.IsSplit) {
			continue
		}
		out = append(out, *tx)
	}

	slices.SortFunc(out, func(a, b Transaction) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListUncategorizedWithdrawals returns unsplit withdrawals with no category or the sentinel.
func (m *MemoryRepository) ListUncategorizedWithdrawals(ctx context.Context, sentinel string, limit int) ([]Transaction, error) {
	m.mu.Lock()
	lookup := m.categoryID
	m.mu.Unlock()

	var sentinelID *uuid.UUID
	if lookup != nil {
		id, ok, err := lookup(ctx, sentinel)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve category %q: %w", sentinel, err)
		}
		if ok {
			sentinelID = &id
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Transaction
	for _, tx := range m.byID {
		uncategorized := tx.CategoryID == nil || (sentinelID != nil && *tx.CategoryID == *sentinelID)
		if uncategorized && !tx.IsSplit && tx.IsWithdrawal() {
			out = append(out, *tx)
		}
	}
	slices.SortFunc(out, func(a, b Transaction) int { return a.Date.Compare(b.Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SummarizeByCategory groups by category id string; names are resolved by the caller.
func (m *MemoryRepository) SummarizeByCategory(_ context.Context, from, to time.Time, sentinel string) ([]CategoryTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	totals := make(map[string]*CategoryTotal)
	add := func(categoryID *uuid.UUID, withdrawal, deposit decimal.Decimal) {
		name := sentinel
		if categoryID != nil {
			name = categoryID.String()
		}
		ct, ok := totals[name]
		if !ok {
			ct = &CategoryTotal{Category: name}
			totals[name] = ct
		}
		ct.Count++
		ct.Withdrawals = ct.Withdrawals.Add(withdrawal)
		ct.Deposits = ct.Deposits.Add(deposit)
	}

	for _, tx := range m.byID {
		if tx.Date.Before(from) || !tx.Date.Before(to) {
			continue
		}
		if !tx.IsSplit {
			add(tx.CategoryID, valueOrZero(tx.Withdrawal), valueOrZero(tx.Deposit))
			continue
		}
		for _, s := range m.splits[tx.ID] {
			if tx.IsWithdrawal() {
				add(&s.CategoryID, s.Amount, decimal.Zero)
			} else {
				add(&s.CategoryID, decimal.Zero, s.Amount)
			}
		}
	}

	out := make([]CategoryTotal, 0, len(totals))
	for _, ct := range totals {
		out = append(out, *ct)
	}
	slices.SortFunc(out, func(a, b CategoryTotal) int {
		switch {
		case a.Category < b.Category:
			return -1
		case a.Category > b.Category:
			return 1
		}
		return 0
	})
	return out, nil
}

// CategoryReferences counts, per category, the transactions and splits booked to it.
func (m *MemoryRepository) CategoryReferences(_ context.Context) (map[uuid.UUID]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	refs := make(map[uuid.UUID]int)
	for _, tx := range m.byID {
		if tx.CategoryID != nil {
			refs[*tx.CategoryID]++
		}
	}
	for _, splits := range m.splits {
		for _, s := range splits {
			refs[s.CategoryID]++
		}
	}
	return refs, nil
}

func valueOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

var _ Repository = (*MemoryRepository)(nil)
var _ Repository = (*PostgresRepository)(nil)
