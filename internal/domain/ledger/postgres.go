package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ledger/pkg/db"
	"github.com/FACorreiaa/statement-ledger/pkg/money"
)

const transactionColumns = `t.id, t.date, t.account_number, t.account_name, t.account_type,
	t.description, t.raw_description, t.note, t.withdrawal, t.deposit, t.balance,
	t.channel, t.transaction_code, t.cheque_number, t.category_id, t.is_split,
	t.created_at, t.updated_at`

// Withdrawal uses IS NOT DISTINCT FROM so a NULL withdrawal matches a NULL withdrawal.
const identityPredicate = `t.date = $1 AND t.account_number = $2 AND t.balance = $3::numeric
	AND t.withdrawal IS NOT DISTINCT FROM $4::numeric`

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db db.Querier
}

// NewPostgresRepository creates a new PostgreSQL ledger repository
func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

// FindByIdentity returns the stored transaction for key, or nil when none exists.
func (r *PostgresRepository) FindByIdentity(ctx context.Context, key IdentityKey) (*Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t WHERE ` + identityPredicate

	tx, err := scanTransaction(r.db.QueryRow(ctx, query, key.Date, key.AccountNumber, key.Balance, key.Withdrawal))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction by identity: %w", err)
	}
	return tx, nil
}

// Upsert is lookup-then-branch inside one database transaction. The identity tuple of an
// existing row is never rewritten; only mutable fields follow the latest import.
func (r *PostgresRepository) Upsert(ctx context.Context, tx *Transaction) (Outcome, error) {
	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	key := tx.Key()
	lookup := `SELECT t.id FROM transactions t WHERE ` + identityPredicate + ` FOR UPDATE`

	var existingID uuid.UUID
	err = dbTx.QueryRow(ctx, lookup, key.Date, key.AccountNumber, key.Balance, key.Withdrawal).Scan(&existingID)

	outcome := OutcomeUpdated
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		outcome = OutcomeInserted
		err = insertTransaction(ctx, dbTx, tx, key)
	case err != nil:
		return 0, fmt.Errorf("failed to look up transaction identity: %w", err)
	default:
		tx.ID = existingID
		err = updateImportedFields(ctx, dbTx, tx)
	}
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateIdentity, key)
		}
		return 0, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		if db.IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateIdentity, key)
		}
		return 0, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return outcome, nil
}

func insertTransaction(ctx context.Context, q pgx.Tx, tx *Transaction, key IdentityKey) error {
	query := `
		INSERT INTO transactions (
			id, date, account_number, account_name, account_type, description, raw_description,
			note, withdrawal, deposit, balance, channel, transaction_code, cheque_number, category_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10::numeric, $11::numeric, $12, $13, $14, $15)
		RETURNING created_at, updated_at`

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}

	err := q.QueryRow(ctx, query,
		tx.ID,
		key.Date,
		key.AccountNumber,
		tx.AccountName,
		tx.AccountType,
		tx.Description,
		tx.RawDescription,
		tx.Note,
		key.Withdrawal,
		money.NullableFixed(tx.Deposit),
		key.Balance,
		tx.Channel,
		tx.TransactionCode,
		tx.ChequeNumber,
		tx.CategoryID,
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	tx.IsSplit = false
	return nil
}

// updateImportedFields overwrites mutable fields. A split row keeps its allocations and
// therefore no direct category.
func updateImportedFields(ctx context.Context, q pgx.Tx, tx *Transaction) error {
	query := `
		UPDATE transactions
		SET description = $2, raw_description = $3, note = $4, deposit = $5::numeric,
			account_name = $6, account_type = $7, channel = $8, transaction_code = $9,
			cheque_number = $10,
			category_id = CASE WHEN is_split THEN NULL ELSE $11::uuid END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING category_id, is_split, created_at, updated_at`

	err := q.QueryRow(ctx, query,
		tx.ID,
		tx.Description,
		tx.RawDescription,
		tx.Note,
		money.NullableFixed(tx.Deposit),
		tx.AccountName,
		tx.AccountType,
		tx.Channel,
		tx.TransactionCode,
		tx.ChequeNumber,
		tx.CategoryID,
	).Scan(&tx.CategoryID, &tx.IsSplit, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a transaction by ID
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t WHERE t.id = $1`

	tx, err := scanTransaction(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// GetSplits returns the allocations of a transaction, largest first.
func (r *PostgresRepository) GetSplits(ctx context.Context, transactionID uuid.UUID) ([]Split, error) {
	query := `
		SELECT id, transaction_id, category_id, amount, note, created_at
		FROM transaction_splits
		WHERE transaction_id = $1
		ORDER BY amount DESC, created_at ASC`

	rows, err := r.db.Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query splits: %w", err)
	}
	defer rows.Close()

	var splits []Split
	for rows.Next() {
		var s Split
		if err := rows.Scan(&s.ID, &s.TransactionID, &s.CategoryID, &s.Amount, &s.Note, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan split: %w", err)
		}
		splits = append(splits, s)
	}
	return splits, rows.Err()
}

// Split validates allocations against the locked parent row, then deletes prior
// allocations, marks the row split with no direct category and inserts the new set.
// Nothing is written unless every step succeeds.
func (r *PostgresRepository) Split(ctx context.Context, transactionID uuid.UUID, allocations []Allocation) ([]Split, error) {
	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	var withdrawal, deposit decimal.NullDecimal
	err = dbTx.QueryRow(ctx,
		`SELECT withdrawal, deposit FROM transactions WHERE id = $1 FOR UPDATE`,
		transactionID,
	).Scan(&withdrawal, &deposit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock transaction: %w", err)
	}

	parent := Transaction{Withdrawal: fromNull(withdrawal), Deposit: fromNull(deposit)}
	if err := ValidateAllocations(parent.Amount(), allocations); err != nil {
		return nil, err
	}

	if _, err := dbTx.Exec(ctx, `DELETE FROM transaction_splits WHERE transaction_id = $1`, transactionID); err != nil {
		return nil, fmt.Errorf("failed to delete existing splits: %w", err)
	}

	if _, err := dbTx.Exec(ctx,
		`UPDATE transactions SET is_split = TRUE, category_id = NULL, updated_at = NOW() WHERE id = $1`,
		transactionID,
	); err != nil {
		return nil, fmt.Errorf("failed to mark transaction split: %w", err)
	}

	insert := `
		INSERT INTO transaction_splits (id, transaction_id, category_id, amount, note)
		VALUES ($1, $2, $3, $4::numeric, $5)
		RETURNING created_at`

	splits := make([]Split, 0, len(allocations))
	for _, a := range allocations {
		s := Split{
			ID:            uuid.New(),
			TransactionID: transactionID,
			CategoryID:    a.CategoryID,
			Amount:        money.Normalize(a.Amount),
			Note:          a.Note,
		}
		if err := dbTx.QueryRow(ctx, insert, s.ID, s.TransactionID, s.CategoryID, money.Fixed(s.Amount), s.Note).Scan(&s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to insert split: %w", err)
		}
		splits = append(splits, s)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit split: %w", err)
	}
	return splits, nil
}

// Unsplit removes all allocations and restores a single (possibly empty) category.
func (r *PostgresRepository) Unsplit(ctx context.Context, transactionID uuid.UUID, fallback *uuid.UUID) error {
	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	if _, err := dbTx.Exec(ctx, `DELETE FROM transaction_splits WHERE transaction_id = $1`, transactionID); err != nil {
		return fmt.Errorf("failed to delete splits: %w", err)
	}

	result, err := dbTx.Exec(ctx,
		`UPDATE transactions SET is_split = FALSE, category_id = $2, updated_at = NOW() WHERE id = $1`,
		transactionID, fallback,
	)
	if err != nil {
		return fmt.Errorf("failed to reset split state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return dbTx.Commit(ctx)
}

// Update sets the direct category and note. Assigning a category to a split row
// drops its allocations in the same transaction.
func (r *PostgresRepository) Update(ctx context.Context, id uuid.UUID, categoryID *uuid.UUID, note *string) error {
	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	if categoryID != nil {
		if _, err := dbTx.Exec(ctx, `DELETE FROM transaction_splits WHERE transaction_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete splits: %w", err)
		}
	}

	result, err := dbTx.Exec(ctx, `
		UPDATE transactions
		SET category_id = $2, note = $3,
			is_split = CASE WHEN $2::uuid IS NULL THEN is_split ELSE FALSE END,
			updated_at = NOW()
		WHERE id = $1`,
		id, categoryID, note,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return dbTx.Commit(ctx)
}

// SetCategory assigns a category to an unsplit transaction.
func (r *PostgresRepository) SetCategory(ctx context.Context, id uuid.UUID, categoryID uuid.UUID) error {
	result, err := r.db.Exec(ctx,
		`UPDATE transactions SET category_id = $2, updated_at = NOW() WHERE id = $1 AND is_split = FALSE`,
		id, categoryID,
	)
	if err != nil {
		return fmt.Errorf("failed to set category: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a transaction and its allocations.
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	if _, err := dbTx.Exec(ctx, `DELETE FROM transaction_splits WHERE transaction_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete splits: %w", err)
	}

	result, err := dbTx.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return dbTx.Commit(ctx)
}

// List returns transactions ordered by date, newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]Transaction, error) {
	var (
		conditions []string
		args       []any
	)
	addArg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.From != nil {
		conditions = append(conditions, "t.date >= "+addArg(*filter.From))
	}
	if filter.To != nil {
		conditions = append(conditions, "t.date < "+addArg(*filter.To))
	}
	if filter.CategoryID != nil {
		conditions = append(conditions, "t.category_id = "+addArg(*filter.CategoryID))
	}
	if filter.Uncategorized {
		conditions = append(conditions, "t.category_id IS NULL AND t.is_split = FALSE")
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions t`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY t.date DESC, t.created_at DESC`

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	query += ` LIMIT ` + addArg(limit) + ` OFFSET ` + addArg(max(filter.Offset, 0))

	return r.queryTransactions(ctx, query, args...)
}

// ListUncategorizedWithdrawals returns unsplit withdrawals with no category or the sentinel.
func (r *PostgresRepository) ListUncategorizedWithdrawals(ctx context.Context, sentinel string, limit int) ([]Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE (t.category_id IS NULL OR c.name = $1)
			AND t.is_split = FALSE
			AND t.withdrawal > 0
		ORDER BY t.date ASC
		LIMIT $2`

	return r.queryTransactions(ctx, query, sentinel, limit)
}

// SummarizeByCategory totals withdrawals and deposits per category for [from, to).
func (r *PostgresRepository) SummarizeByCategory(ctx context.Context, from, to time.Time, sentinel string) ([]CategoryTotal, error) {
	query := `
		WITH lines AS (
			SELECT t.category_id, t.withdrawal, t.deposit
			FROM transactions t
			WHERE t.date >= $1 AND t.date < $2 AND t.is_split = FALSE
			UNION ALL
			SELECT s.category_id,
				CASE WHEN t.withdrawal > 0 THEN s.amount END,
				CASE WHEN t.withdrawal > 0 THEN NULL ELSE s.amount END
			FROM transaction_splits s
			JOIN transactions t ON t.id = s.transaction_id
			WHERE t.date >= $1 AND t.date < $2
		)
		SELECT COALESCE(c.name, $3), COUNT(*), COALESCE(SUM(l.withdrawal), 0), COALESCE(SUM(l.deposit), 0)
		FROM lines l
		LEFT JOIN categories c ON c.id = l.category_id
		GROUP BY 1
		ORDER BY 1`

	rows, err := r.db.Query(ctx, query, from, to, sentinel)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize by category: %w", err)
	}
	defer rows.Close()

	var totals []CategoryTotal
	for rows.Next() {
		var ct CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Count, &ct.Withdrawals, &ct.Deposits); err != nil {
			return nil, fmt.Errorf("failed to scan category total: %w", err)
		}
		totals = append(totals, ct)
	}
	return totals, rows.Err()
}

func (r *PostgresRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var (
		tx                  Transaction
		accountNumber       string
		withdrawal, deposit decimal.NullDecimal
	)

	err := row.Scan(
		&tx.ID,
		&tx.Date,
		&accountNumber,
		&tx.AccountName,
		&tx.AccountType,
		&tx.Description,
		&tx.RawDescription,
		&tx.Note,
		&withdrawal,
		&deposit,
		&tx.Balance,
		&tx.Channel,
		&tx.TransactionCode,
		&tx.ChequeNumber,
		&tx.CategoryID,
		&tx.IsSplit,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.AccountNumber = nilIfEmpty(accountNumber)
	tx.Withdrawal = fromNull(withdrawal)
	tx.Deposit = fromNull(deposit)
	return &tx, nil
}

func fromNull(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	return &d.Decimal
}
