package categorization

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// UsageFunc reports which category ids are still referenced by transactions or splits.
type UsageFunc func(ctx context.Context) (map[uuid.UUID]int, error)

// MemoryRepository is an in-process Repository used for dry runs and tests.
type MemoryRepository struct {
	mu         sync.RWMutex
	categories map[uuid.UUID]*Category
	byName     map[string]uuid.UUID
	rules      map[uuid.UUID]*CategoryRule
	usage      UsageFunc
	now        func() time.Time
}

// NewMemoryRepository creates an empty repository. usage may be nil, in which case every
// category without rules counts as unused.
func NewMemoryRepository(usage UsageFunc) *MemoryRepository {
	return &MemoryRepository{
		categories: make(map[uuid.UUID]*Category),
		byName:     make(map[string]uuid.UUID),
		rules:      make(map[uuid.UUID]*CategoryRule),
		usage:      usage,
		now:        time.Now,
	}
}

func (m *MemoryRepository) ListCategories(_ context.Context) ([]Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryRepository) CategoryUsage(ctx context.Context) ([]CategoryUsage, error) {
	cats, _ := m.ListCategories(ctx)
	counts, err := m.counts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CategoryUsage, len(cats))
	for i, c := range cats {
		out[i] = CategoryUsage{Category: c, TransactionCount: counts[c.ID]}
	}
	return out, nil
}

func (m *MemoryRepository) GetCategoryByName(_ context.Context, name string) (*Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	c := *m.categories[id]
	return &c, nil
}

// CategoryID adapts GetCategoryByName to ledger.CategoryIDFunc.
func (m *MemoryRepository) CategoryID(ctx context.Context, name string) (uuid.UUID, bool, error) {
	c, err := m.GetCategoryByName(ctx, name)
	switch {
	case errors.Is(err, ErrNotFound):
		return uuid.Nil, false, nil
	case err != nil:
		return uuid.Nil, false, err
	}
	return c.ID, true, nil
}

func (m *MemoryRepository) EnsureCategory(_ context.Context, name string, color, description *string) (*Category, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byName[name]; ok {
		c := *m.categories[id]
		return &c, false, nil
	}
	c := &Category{ID: uuid.New(), Name: name, Color: color, Description: description, CreatedAt: m.now()}
	m.categories[c.ID] = c
	m.byName[name] = c.ID
	out := *c
	return &out, true, nil
}

func (m *MemoryRepository) UpdateCategoryColor(_ context.Context, id uuid.UUID, color string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.categories[id]
	if !ok {
		return ErrNotFound
	}
	c.Color = &color
	return nil
}

func (m *MemoryRepository) DeleteUnusedCategories(ctx context.Context, keep string) (int64, error) {
	counts, err := m.counts(ctx)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	withRules := make(map[uuid.UUID]bool)
	for _, r := range m.rules {
		withRules[r.CategoryID] = true
	}

	var deleted int64
	for id, c := range m.categories {
		if c.Name == keep || counts[id] > 0 || withRules[id] {
			continue
		}
		delete(m.categories, id)
		delete(m.byName, c.Name)
		deleted++
	}
	return deleted, nil
}

func (m *MemoryRepository) counts(ctx context.Context) (map[uuid.UUID]int, error) {
	if m.usage == nil {
		return map[uuid.UUID]int{}, nil
	}
	return m.usage(ctx)
}

func (m *MemoryRepository) ListRules(_ context.Context, activeOnly bool) ([]CategoryRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]CategoryRule, 0, len(m.rules))
	for _, r := range m.rules {
		if activeOnly && !r.IsActive {
			continue
		}
		rule := *r
		if c, ok := m.categories[r.CategoryID]; ok {
			rule.CategoryName = c.Name
		}
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryRepository) GetRule(_ context.Context, id uuid.UUID) (*CategoryRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	rule := *r
	if c, ok := m.categories[r.CategoryID]; ok {
		rule.CategoryName = c.Name
	}
	return &rule, nil
}

func (m *MemoryRepository) CreateRule(_ context.Context, rule *CategoryRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.categories[rule.CategoryID]; !ok {
		return ErrNotFound
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	now := m.now()
	rule.CreatedAt, rule.UpdatedAt = now, now
	stored := *rule
	m.rules[rule.ID] = &stored
	return nil
}

func (m *MemoryRepository) UpdateRule(_ context.Context, rule *CategoryRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.rules[rule.ID]
	if !ok {
		return ErrNotFound
	}
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = m.now()
	stored := *rule
	m.rules[rule.ID] = &stored
	return nil
}

func (m *MemoryRepository) DeleteRule(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[id]; !ok {
		return ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *MemoryRepository) ToggleRule(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[id]
	if !ok {
		return false, ErrNotFound
	}
	r.IsActive = !r.IsActive
	r.UpdatedAt = m.now()
	return r.IsActive, nil
}

func (m *MemoryRepository) RuleExists(_ context.Context, categoryID uuid.UUID, field Field, pattern string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.rules {
		if r.CategoryID == categoryID && r.Field == field && r.Pattern == pattern {
			return true, nil
		}
	}
	return false, nil
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
)
