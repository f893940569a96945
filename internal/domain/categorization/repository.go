package categorization

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/statement-ledger/pkg/db"
)

// CategoryUsage is a category with the number of transactions booked to it.
type CategoryUsage struct {
	Category
	TransactionCount int `json:"transactionCount"`
}

// Repository persists categories and stored rules.
type Repository interface {
	ListCategories(ctx context.Context) ([]Category, error)
	CategoryUsage(ctx context.Context) ([]CategoryUsage, error)
	GetCategoryByName(ctx context.Context, name string) (*Category, error)
	// EnsureCategory creates the category when missing and reports whether it did.
	// An existing category is returned untouched.
	EnsureCategory(ctx context.Context, name string, color, description *string) (*Category, bool, error)
	UpdateCategoryColor(ctx context.Context, id uuid.UUID, color string) error
	// DeleteUnusedCategories removes categories nothing references, except keep.
	DeleteUnusedCategories(ctx context.Context, keep string) (int64, error)

	// ListRules returns rules joined with their category name, priority ascending.
	ListRules(ctx context.Context, activeOnly bool) ([]CategoryRule, error)
	GetRule(ctx context.Context, id uuid.UUID) (*CategoryRule, error)
	CreateRule(ctx context.Context, rule *CategoryRule) error
	UpdateRule(ctx context.Context, rule *CategoryRule) error
	DeleteRule(ctx context.Context, id uuid.UUID) error
	// ToggleRule flips is_active and returns the new value.
	ToggleRule(ctx context.Context, id uuid.UUID) (bool, error)
	RuleExists(ctx context.Context, categoryID uuid.UUID, field Field, pattern string) (bool, error)
}

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	db db.Querier
}

// NewPostgresRepository creates a new categorization repository
func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

const categoryColumns = `c.id, c.name, c.color, c.description, c.created_at`

func (r *PostgresRepository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.Query(ctx, `SELECT `+categoryColumns+` FROM categories c ORDER BY c.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &c.Description, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CategoryUsage(ctx context.Context) ([]CategoryUsage, error) {
	query := `
		SELECT ` + categoryColumns + `, COUNT(t.id)
		FROM categories c
		LEFT JOIN transactions t ON t.category_id = c.id
		GROUP BY c.id
		ORDER BY c.name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query category usage: %w", err)
	}
	defer rows.Close()

	var out []CategoryUsage
	for rows.Next() {
		var u CategoryUsage
		if err := rows.Scan(&u.ID, &u.Name, &u.Color, &u.Description, &u.CreatedAt, &u.TransactionCount); err != nil {
			return nil, fmt.Errorf("failed to scan category usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetCategoryByName(ctx context.Context, name string) (*Category, error) {
	var c Category
	err := r.db.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories c WHERE c.name = $1`, name).
		Scan(&c.ID, &c.Name, &c.Color, &c.Description, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

func (r *PostgresRepository) EnsureCategory(ctx context.Context, name string, color, description *string) (*Category, bool, error) {
	// The no-op update makes RETURNING yield the existing row; xmax = 0 only for fresh inserts.
	query := `
		INSERT INTO categories (id, name, color, description)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, color, description, created_at, (xmax = 0)`

	var (
		c       Category
		created bool
	)
	err := r.db.QueryRow(ctx, query, uuid.New(), name, color, description).
		Scan(&c.ID, &c.Name, &c.Color, &c.Description, &c.CreatedAt, &created)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure category %q: %w", name, err)
	}
	return &c, created, nil
}

func (r *PostgresRepository) UpdateCategoryColor(ctx context.Context, id uuid.UUID, color string) error {
	tag, err := r.db.Exec(ctx, `UPDATE categories SET color = $2, updated_at = NOW() WHERE id = $1`, id, color)
	if err != nil {
		return fmt.Errorf("failed to update category color: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteUnusedCategories(ctx context.Context, keep string) (int64, error) {
	query := `
		DELETE FROM categories c
		WHERE c.name <> $1
		  AND NOT EXISTS (SELECT 1 FROM transactions t WHERE t.category_id = c.id)
		  AND NOT EXISTS (SELECT 1 FROM transaction_splits s WHERE s.category_id = c.id)
		  AND NOT EXISTS (SELECT 1 FROM category_rules cr WHERE cr.category_id = c.id)`

	tag, err := r.db.Exec(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unused categories: %w", err)
	}
	return tag.RowsAffected(), nil
}

const ruleColumns = `cr.id, cr.category_id, c.name, cr.field, cr.pattern, cr.is_regex, cr.priority, cr.is_active, cr.created_at, cr.updated_at`

func (r *PostgresRepository) ListRules(ctx context.Context, activeOnly bool) ([]CategoryRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM category_rules cr
		JOIN categories c ON c.id = cr.category_id
		WHERE ($1 = FALSE OR cr.is_active)
		ORDER BY cr.priority ASC, cr.created_at DESC`

	rows, err := r.db.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []CategoryRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

func (r *PostgresRepository) GetRule(ctx context.Context, id uuid.UUID) (*CategoryRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM category_rules cr
		JOIN categories c ON c.id = cr.category_id
		WHERE cr.id = $1`

	rule, err := scanRule(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

func (r *PostgresRepository) CreateRule(ctx context.Context, rule *CategoryRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	query := `
		INSERT INTO category_rules (id, category_id, field, pattern, is_regex, priority, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		rule.ID, rule.CategoryID, string(rule.Field), rule.Pattern, rule.IsRegex, rule.Priority, rule.IsActive,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateRule(ctx context.Context, rule *CategoryRule) error {
	query := `
		UPDATE category_rules
		SET category_id = $2, field = $3, pattern = $4, is_regex = $5, priority = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		rule.ID, rule.CategoryID, string(rule.Field), rule.Pattern, rule.IsRegex, rule.Priority, rule.IsActive,
	).Scan(&rule.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM category_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ToggleRule(ctx context.Context, id uuid.UUID) (bool, error) {
	var active bool
	err := r.db.QueryRow(ctx,
		`UPDATE category_rules SET is_active = NOT is_active, updated_at = NOW() WHERE id = $1 RETURNING is_active`, id,
	).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to toggle rule: %w", err)
	}
	return active, nil
}

func (r *PostgresRepository) RuleExists(ctx context.Context, categoryID uuid.UUID, field Field, pattern string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM category_rules WHERE category_id = $1 AND field = $2 AND pattern = $3)`,
		categoryID, string(field), pattern,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check rule: %w", err)
	}
	return exists, nil
}

func scanRule(row pgx.Row) (*CategoryRule, error) {
	var (
		rule  CategoryRule
		field string
	)
	if err := row.Scan(
		&rule.ID,
		&rule.CategoryID,
		&rule.CategoryName,
		&field,
		&rule.Pattern,
		&rule.IsRegex,
		&rule.Priority,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}
	rule.Field = Field(field)
	return &rule, nil
}
