package categorization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-ledger/internal/domain/corrections"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
)

// searchTTL bounds how stale the rule search index may get between rule edits.
const searchTTL = time.Minute

// TransactionStore is the part of the ledger reclassification writes to.
type TransactionStore interface {
	ListUncategorizedWithdrawals(ctx context.Context, sentinel string, limit int) ([]ledger.Transaction, error)
	SetCategory(ctx context.Context, id uuid.UUID, categoryID uuid.UUID) error
}

// Service owns categories, stored rules and the categorization engine.
type Service struct {
	repo            Repository
	corrections     corrections.Store
	engine          *Engine
	seed            *SeedData
	correctionLimit int
	logger          *slog.Logger

	search     *SearchIndex
	searchMu   sync.Mutex
	searchedAt time.Time
}

// NewService creates a new categorization service. search may be nil, which disables
// rule search.
func NewService(repo Repository, store corrections.Store, engine *Engine, seed *SeedData, search *SearchIndex, correctionLimit int, logger *slog.Logger) *Service {
	if correctionLimit <= 0 {
		correctionLimit = corrections.DefaultRecentLimit
	}
	if seed == nil {
		seed = &SeedData{}
	}
	return &Service{
		repo:            repo,
		corrections:     store,
		engine:          engine,
		seed:            seed,
		correctionLimit: correctionLimit,
		search:          search,
		logger:          logger,
	}
}

// Engine returns the categorization engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Snapshot loads the rules and classifier context for one batch. The correction log is
// only read when the classifier is enabled.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	rules, err := s.repo.ListRules(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	cats, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}

	var recent []corrections.Correction
	if s.engine.ClassifierEnabled() {
		recent, err = s.corrections.Recent(ctx, s.correctionLimit)
		if err != nil {
			// The classifier still works without corrections.
			s.logger.Warn("failed to load corrections", "error", err)
		}
	}

	snap := NewSnapshot(rules, names, s.seed.Training, recent)
	for _, r := range snap.InvalidRules() {
		s.logger.Warn("rule pattern does not compile and is skipped", "rule_id", r.ID, "pattern", r.Pattern)
	}
	return snap, nil
}

// Categorize runs the cascade against snap.
func (s *Service) Categorize(ctx context.Context, tx *ledger.Transaction, snap *Snapshot) Result {
	return s.engine.Categorize(ctx, tx, snap)
}

// ============================================================================
// Categories
// ============================================================================

func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CategoryUsage(ctx context.Context) ([]CategoryUsage, error) {
	return s.repo.CategoryUsage(ctx)
}

// CategoryNames maps category ids to names.
func (s *Service) CategoryNames(ctx context.Context) (map[uuid.UUID]string, error) {
	cats, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]string, len(cats))
	for _, c := range cats {
		out[c.ID] = c.Name
	}
	return out, nil
}

// EnsureCategory returns the category called name, creating it on first reference.
// New categories take their color and description from the seed when it knows the name.
func (s *Service) EnsureCategory(ctx context.Context, name string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrCategoryRequired
	}

	var color, description *string
	if sc, ok := s.seed.Category(name); ok {
		color, description = nonEmpty(sc.Color), nonEmpty(sc.Description)
	}

	c, created, err := s.repo.EnsureCategory(ctx, name, color, description)
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("category created", "name", name)
	}
	return c, nil
}

// EnsureDefaults creates the seed categories that do not exist yet. Existing categories
// are never modified. It returns how many were created.
func (s *Service) EnsureDefaults(ctx context.Context) (int, error) {
	created := 0
	for _, sc := range s.seed.Categories {
		_, ok, err := s.repo.EnsureCategory(ctx, sc.Name, nonEmpty(sc.Color), nonEmpty(sc.Description))
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	if created > 0 {
		s.logger.Info("default categories created", "count", created)
	}
	return created, nil
}

// SyncResult reports what SyncCategories changed.
type SyncResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// SyncCategories creates missing categories and updates the color of existing ones that
// differ. A nil palette means the embedded one.
func (s *Service) SyncCategories(ctx context.Context, palette []PaletteEntry) (SyncResult, error) {
	if palette == nil {
		palette = s.seed.Palette
	}

	var res SyncResult
	for _, p := range palette {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		c, created, err := s.repo.EnsureCategory(ctx, name, nonEmpty(p.Color), nil)
		if err != nil {
			return res, err
		}
		if created {
			res.Created++
			continue
		}
		if p.Color != "" && (c.Color == nil || *c.Color != p.Color) {
			if err := s.repo.UpdateCategoryColor(ctx, c.ID, p.Color); err != nil {
				return res, err
			}
			res.Updated++
		}
	}

	s.logger.Info("categories synced", "created", res.Created, "updated", res.Updated)
	return res, nil
}

// DeleteUnused removes categories nothing references. The sentinel is always kept.
func (s *Service) DeleteUnused(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteUnusedCategories(ctx, Sentinel)
	if err != nil {
		return 0, err
	}
	s.logger.Info("unused categories deleted", "count", n)
	return n, nil
}

// SearchCategories ranks categories against query for pickers.
func (s *Service) SearchCategories(ctx context.Context, query string, limit int) ([]CategoryMatch, error) {
	cats, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	return NewFuzzyMatcher(cats).Rank(query, limit), nil
}

// ============================================================================
// Rules
// ============================================================================

// RuleInput is the editable part of a rule.
type RuleInput struct {
	CategoryID uuid.UUID `json:"categoryId"`
	Field      Field     `json:"field"`
	Pattern    string    `json:"pattern"`
	IsRegex    bool      `json:"isRegex"`
	Priority   int       `json:"priority"`
	IsActive   bool      `json:"isActive"`
}

// Validate checks the field, the pattern and, for regexes, that the pattern compiles.
func (in RuleInput) Validate() error {
	if in.CategoryID == uuid.Nil {
		return ErrCategoryRequired
	}
	if !in.Field.Valid() {
		return ErrInvalidField
	}
	return ValidatePattern(in.Pattern, in.IsRegex)
}

// RulePatch changes only the fields that are set.
type RulePatch struct {
	CategoryID *uuid.UUID `json:"categoryId,omitempty"`
	Field      *Field     `json:"field,omitempty"`
	Pattern    *string    `json:"pattern,omitempty"`
	IsRegex    *bool      `json:"isRegex,omitempty"`
	Priority   *int       `json:"priority,omitempty"`
	IsActive   *bool      `json:"isActive,omitempty"`
}

func (p RulePatch) apply(r *CategoryRule) {
	if p.CategoryID != nil {
		r.CategoryID = *p.CategoryID
	}
	if p.Field != nil {
		r.Field = *p.Field
	}
	if p.Pattern != nil {
		r.Pattern = *p.Pattern
	}
	if p.IsRegex != nil {
		r.IsRegex = *p.IsRegex
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	if p.IsActive != nil {
		r.IsActive = *p.IsActive
	}
}

func (s *Service) ListRules(ctx context.Context) ([]CategoryRule, error) {
	return s.repo.ListRules(ctx, false)
}

func (s *Service) CreateRule(ctx context.Context, in RuleInput) (*CategoryRule, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	rule := &CategoryRule{
		CategoryID: in.CategoryID,
		Field:      in.Field,
		Pattern:    in.Pattern,
		IsRegex:    in.IsRegex,
		Priority:   in.Priority,
		IsActive:   in.IsActive,
	}
	if err := s.repo.CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	s.invalidateSearch()
	s.logger.Info("rule created", "rule_id", rule.ID, "pattern", rule.Pattern, "field", rule.Field)
	return s.repo.GetRule(ctx, rule.ID)
}

func (s *Service) UpdateRule(ctx context.Context, id uuid.UUID, patch RulePatch) (*CategoryRule, error) {
	rule, err := s.repo.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.apply(rule)

	in := RuleInput{
		CategoryID: rule.CategoryID,
		Field:      rule.Field,
		Pattern:    rule.Pattern,
		IsRegex:    rule.IsRegex,
		Priority:   rule.Priority,
		IsActive:   rule.IsActive,
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRule(ctx, rule); err != nil {
		return nil, err
	}
	s.invalidateSearch()
	return s.repo.GetRule(ctx, id)
}

func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteRule(ctx, id); err != nil {
		return err
	}
	s.invalidateSearch()
	return nil
}

// ToggleRule flips a rule between active and inactive and returns the new state.
func (s *Service) ToggleRule(ctx context.Context, id uuid.UUID) (bool, error) {
	active, err := s.repo.ToggleRule(ctx, id)
	if err != nil {
		return false, err
	}
	s.invalidateSearch()
	return active, nil
}

// SeedResult reports a rule set import.
type SeedResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// SeedRules imports one of the embedded rule sets (or RuleSetAll).
func (s *Service) SeedRules(ctx context.Context, set string) (SeedResult, error) {
	rules, err := s.seed.Rules(set)
	if err != nil {
		return SeedResult{}, err
	}
	return s.ImportRules(ctx, rules)
}

// ImportRules stores literal rules. Rules whose (category, field, pattern) already exists
// are skipped; a rule naming an unknown category is skipped and reported.
func (s *Service) ImportRules(ctx context.Context, rules []LearnedRule) (SeedResult, error) {
	res := SeedResult{Errors: []string{}}
	byName := make(map[string]*Category)

	for _, lr := range rules {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		cat, ok := byName[lr.Category]
		if !ok {
			c, err := s.repo.GetCategoryByName(ctx, lr.Category)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return res, err
			}
			cat = c
			byName[lr.Category] = c
		}
		if cat == nil {
			res.Errors = append(res.Errors, "category not found: "+lr.Category)
			res.Skipped++
			continue
		}

		exists, err := s.repo.RuleExists(ctx, cat.ID, lr.Field, lr.Pattern)
		if err != nil {
			return res, err
		}
		if exists {
			res.Skipped++
			continue
		}

		rule := &CategoryRule{
			CategoryID: cat.ID,
			Field:      lr.Field,
			Pattern:    lr.Pattern,
			Priority:   lr.Priority,
			IsActive:   true,
		}
		if err := s.repo.CreateRule(ctx, rule); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s - %s: %v", lr.Category, lr.Pattern, err))
			continue
		}
		res.Imported++
	}

	if res.Imported > 0 {
		s.invalidateSearch()
	}
	s.logger.Info("rules imported", "imported", res.Imported, "skipped", res.Skipped, "errors", len(res.Errors))
	return res, nil
}

// SearchRules finds rules and corrections whose text resembles query.
func (s *Service) SearchRules(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if s.search == nil {
		return nil, errors.New("rule search is not configured")
	}
	if err := s.refreshSearch(ctx); err != nil {
		return nil, err
	}
	return s.search.Search(query, limit)
}

func (s *Service) refreshSearch(ctx context.Context) error {
	s.searchMu.Lock()
	defer s.searchMu.Unlock()

	if !s.searchedAt.IsZero() && time.Since(s.searchedAt) < searchTTL {
		return nil
	}
	rules, err := s.repo.ListRules(ctx, false)
	if err != nil {
		return err
	}
	recent, err := s.corrections.Recent(ctx, s.correctionLimit)
	if err != nil {
		return err
	}
	if err := s.search.Reindex(rules, recent); err != nil {
		return err
	}
	s.searchedAt = time.Now()
	return nil
}

func (s *Service) invalidateSearch() {
	s.searchMu.Lock()
	s.searchedAt = time.Time{}
	s.searchMu.Unlock()
}

// ============================================================================
// Reclassification
// ============================================================================

// DefaultReclassifyLimit is how many transactions one reclassification run looks at.
const DefaultReclassifyLimit = 50

// Reclassified is one transaction a reclassification run updated.
type Reclassified struct {
	ID         uuid.UUID  `json:"id"`
	Category   string     `json:"category"`
	Confidence Confidence `json:"confidence"`
}

// ReclassifyResult reports a reclassification run.
type ReclassifyResult struct {
	Processed   int            `json:"processed"`
	Categorized int            `json:"categorized"`
	Results     []Reclassified `json:"results"`
}

// Reclassify sends uncategorized withdrawals (or those on the sentinel) to the classifier
// and applies answers that are neither the sentinel nor low confidence, provided the
// category already exists.
func (s *Service) Reclassify(ctx context.Context, txs TransactionStore, limit int) (*ReclassifyResult, error) {
	if !s.engine.ClassifierEnabled() {
		return nil, errors.New("classifier is not configured")
	}
	if limit <= 0 {
		limit = DefaultReclassifyLimit
	}

	pending, err := txs.ListUncategorizedWithdrawals(ctx, Sentinel, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list uncategorized transactions: %w", err)
	}

	res := &ReclassifyResult{Processed: len(pending), Results: []Reclassified{}}
	if len(pending) == 0 {
		return res, nil
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	results, err := s.engine.ClassifyBatch(ctx, pending, snap)
	if err != nil {
		return res, err
	}

	for i, r := range results {
		if r.IsSentinel() || r.Confidence == ConfidenceLow {
			continue
		}
		cat, err := s.repo.GetCategoryByName(ctx, r.Category)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return res, err
		}
		if err := txs.SetCategory(ctx, pending[i].ID, cat.ID); err != nil {
			s.logger.Warn("failed to apply reclassification", "id", pending[i].ID, "error", err)
			continue
		}
		res.Categorized++
		res.Results = append(res.Results, Reclassified{ID: pending[i].ID, Category: r.Category, Confidence: r.Confidence})
	}

	s.logger.Info("reclassification finished", "processed", res.Processed, "categorized", res.Categorized)
	return res, nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
