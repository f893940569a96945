package categorization

import (
	"context"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-ledger/internal/domain/corrections"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
)

type serviceFixture struct {
	svc     *Service
	repo    *MemoryRepository
	ledger  *ledger.MemoryRepository
	log     *corrections.MemoryStore
	seed    *SeedData
	queue   *Queue
	context context.Context
}

func newServiceFixture(t *testing.T, classifier Classifier) *serviceFixture {
	t.Helper()

	seed, err := DefaultSeed()
	require.NoError(t, err)

	txs := ledger.NewMemoryRepository()
	repo := NewMemoryRepository(txs.CategoryReferences)
	txs.ResolveCategoriesWith(repo.CategoryID)
	store := corrections.NewMemoryStore()

	var queue *Queue
	if classifier != nil {
		queue = NewQueue(classifier, QueueConfig{Concurrency: 2}, testLogger())
	}
	engine := NewEngine(queue, testLogger())

	search, err := NewSearchIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = search.Close() })

	return &serviceFixture{
		svc:     NewService(repo, store, engine, seed, search, 0, testLogger()),
		repo:    repo,
		ledger:  txs,
		log:     store,
		seed:    seed,
		queue:   queue,
		context: context.Background(),
	}
}

func (f *serviceFixture) category(t *testing.T, name string) *Category {
	t.Helper()
	c, err := f.svc.EnsureCategory(f.context, name)
	require.NoError(t, err)
	return c
}

// ============================================================================
// Categories
// ============================================================================

func TestService_EnsureDefaults(t *testing.T) {
	f := newServiceFixture(t, nil)

	created, err := f.svc.EnsureDefaults(f.context)
	require.NoError(t, err)
	assert.Equal(t, len(f.seed.Categories), created)

	again, err := f.svc.EnsureDefaults(f.context)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestService_EnsureCategory(t *testing.T) {
	f := newServiceFixture(t, nil)

	c := f.category(t, "  ค่าน้ำมัน ")
	assert.Equal(t, "ค่าน้ำมัน", c.Name)
	require.NotNil(t, c.Color)
	seedCat, _ := f.seed.Category("ค่าน้ำมัน")
	assert.Equal(t, seedCat.Color, *c.Color)

	custom := f.category(t, gofakeit.Company())
	assert.Nil(t, custom.Color)

	same := f.category(t, "ค่าน้ำมัน")
	assert.Equal(t, c.ID, same.ID)

	_, err := f.svc.EnsureCategory(f.context, "   ")
	assert.ErrorIs(t, err, ErrCategoryRequired)
}

func TestService_SyncCategories(t *testing.T) {
	f := newServiceFixture(t, nil)

	existing, _, err := f.repo.EnsureCategory(f.context, "ค่าไฟฟ้า", strPtr("#000000"), nil)
	require.NoError(t, err)

	res, err := f.svc.SyncCategories(f.context, []PaletteEntry{
		{Name: "ค่าไฟฟ้า", Color: "#eab308"},
		{Name: "ค่าน้ำประปา", Color: "#3b82f6"},
		{Name: " "},
	})
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Created: 1, Updated: 1}, res)

	updated, err := f.repo.GetCategoryByName(f.context, "ค่าไฟฟ้า")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, updated.ID)
	assert.Equal(t, "#eab308", *updated.Color)

	// Unchanged colors are not rewritten.
	res, err = f.svc.SyncCategories(f.context, []PaletteEntry{{Name: "ค่าไฟฟ้า", Color: "#eab308"}})
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, res)
}

func TestService_SyncCategoriesDefaultPalette(t *testing.T) {
	f := newServiceFixture(t, nil)

	res, err := f.svc.SyncCategories(f.context, nil)
	require.NoError(t, err)
	assert.Equal(t, len(f.seed.Palette), res.Created)
}

func TestService_DeleteUnused(t *testing.T) {
	f := newServiceFixture(t, nil)

	sentinel := f.category(t, Sentinel)
	used := f.category(t, "ค่าอาหาร")
	ruled := f.category(t, "ค่าขนส่ง")
	f.category(t, "ค่าเช่าอุปกรณ์")
	f.category(t, "โบนัส")

	tx := withdrawal("ข้าวกล่อง", "", "500")
	tx.CategoryID = &used.ID
	_, err := f.ledger.Upsert(f.context, tx)
	require.NoError(t, err)

	_, err = f.svc.CreateRule(f.context, RuleInput{CategoryID: ruled.ID, Field: FieldDescription, Pattern: "KERRY", IsActive: true})
	require.NoError(t, err)

	deleted, err := f.svc.DeleteUnused(f.context)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	names, err := f.svc.CategoryNames(f.context)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]string{
		sentinel.ID: Sentinel,
		used.ID:     "ค่าอาหาร",
		ruled.ID:    "ค่าขนส่ง",
	}, names)

	usage, err := f.svc.CategoryUsage(f.context)
	require.NoError(t, err)
	for _, u := range usage {
		if u.ID == used.ID {
			assert.Equal(t, 1, u.TransactionCount)
		}
	}
}

func TestService_SearchCategories(t *testing.T) {
	f := newServiceFixture(t, nil)
	_, err := f.svc.EnsureDefaults(f.context)
	require.NoError(t, err)

	matches, err := f.svc.SearchCategories(f.context, "facebook", 3)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "ค่าโฆษณา Facebook Ads", matches[0].Category.Name)
}

// ============================================================================
// Rules
// ============================================================================

func TestService_CreateRuleValidation(t *testing.T) {
	f := newServiceFixture(t, nil)
	cat := f.category(t, "ค่าขนส่ง")

	tests := []struct {
		name string
		in   RuleInput
		err  error
	}{
		{"missing category", RuleInput{Field: FieldNote, Pattern: "x"}, ErrCategoryRequired},
		{"bad field", RuleInput{CategoryID: cat.ID, Field: "amount", Pattern: "x"}, ErrInvalidField},
		{"empty pattern", RuleInput{CategoryID: cat.ID, Field: FieldNote, Pattern: " "}, ErrEmptyPattern},
		{"bad regex", RuleInput{CategoryID: cat.ID, Field: FieldNote, Pattern: "(kerry", IsRegex: true}, ErrInvalidRegex},
		{"unknown category", RuleInput{CategoryID: uuid.New(), Field: FieldNote, Pattern: "x"}, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateRule(f.context, tt.in)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestService_RuleLifecycle(t *testing.T) {
	f := newServiceFixture(t, nil)
	cat := f.category(t, "ค่าขนส่ง")
	other := f.category(t, "ซื้อออนไลน์")

	created, err := f.svc.CreateRule(f.context, RuleInput{
		CategoryID: cat.ID, Field: FieldDescription, Pattern: "kerry", Priority: 4, IsActive: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ค่าขนส่ง", created.CategoryName)

	pattern := `kerry|flash`
	isRegex := true
	updated, err := f.svc.UpdateRule(f.context, created.ID, RulePatch{Pattern: &pattern, IsRegex: &isRegex})
	require.NoError(t, err)
	assert.Equal(t, pattern, updated.Pattern)
	assert.True(t, updated.IsRegex)
	assert.Equal(t, 4, updated.Priority)
	assert.Equal(t, cat.ID, updated.CategoryID)

	updated, err = f.svc.UpdateRule(f.context, created.ID, RulePatch{CategoryID: &other.ID})
	require.NoError(t, err)
	assert.Equal(t, "ซื้อออนไลน์", updated.CategoryName)

	bad := "(["
	_, err = f.svc.UpdateRule(f.context, created.ID, RulePatch{Pattern: &bad})
	assert.ErrorIs(t, err, ErrInvalidRegex)

	active, err := f.svc.ToggleRule(f.context, created.ID)
	require.NoError(t, err)
	assert.False(t, active)

	snap, err := f.svc.Snapshot(f.context)
	require.NoError(t, err)
	assert.Empty(t, snap.Rules())

	require.NoError(t, f.svc.DeleteRule(f.context, created.ID))
	assert.ErrorIs(t, f.svc.DeleteRule(f.context, created.ID), ErrNotFound)
	_, err = f.svc.UpdateRule(f.context, created.ID, RulePatch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_ListRulesOrder(t *testing.T) {
	f := newServiceFixture(t, nil)
	cat := f.category(t, "ค่าขนส่ง")

	for _, p := range []int{5, 1, 3} {
		_, err := f.svc.CreateRule(f.context, RuleInput{CategoryID: cat.ID, Field: FieldNote, Pattern: gofakeit.Word(), Priority: p, IsActive: p != 3})
		require.NoError(t, err)
	}

	rules, err := f.svc.ListRules(f.context)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, []int{1, 3, 5}, []int{rules[0].Priority, rules[1].Priority, rules[2].Priority})

	snap, err := f.svc.Snapshot(f.context)
	require.NoError(t, err)
	assert.Len(t, snap.Rules(), 2)
}

func TestService_SeedRules(t *testing.T) {
	f := newServiceFixture(t, nil)
	_, err := f.svc.EnsureDefaults(f.context)
	require.NoError(t, err)

	learned, err := f.seed.Rules(RuleSetLearned)
	require.NoError(t, err)

	res, err := f.svc.SeedRules(f.context, RuleSetLearned)
	require.NoError(t, err)
	assert.Equal(t, len(learned), res.Imported)
	assert.Empty(t, res.Errors)

	res, err = f.svc.SeedRules(f.context, RuleSetLearned)
	require.NoError(t, err)
	assert.Zero(t, res.Imported)
	assert.Equal(t, len(learned), res.Skipped)

	_, err = f.svc.SeedRules(f.context, "nope")
	assert.Error(t, err)
}

func TestService_ImportRulesReportsMissingCategories(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.category(t, "ค่าไฟฟ้า")

	res, err := f.svc.ImportRules(f.context, []LearnedRule{
		{Category: "ค่าไฟฟ้า", Field: FieldDescription, Pattern: "PEA", Priority: 1},
		{Category: "ไม่มีอยู่จริง", Field: FieldNote, Pattern: "x", Priority: 1},
		{Category: "ไม่มีอยู่จริง", Field: FieldNote, Pattern: "y", Priority: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, []string{"category not found: ไม่มีอยู่จริง", "category not found: ไม่มีอยู่จริง"}, res.Errors)
}

func TestService_SearchRules(t *testing.T) {
	f := newServiceFixture(t, nil)
	cat := f.category(t, "ซื้อออนไลน์")

	_, err := f.svc.CreateRule(f.context, RuleInput{CategoryID: cat.ID, Field: FieldDescription, Pattern: "SHOPEE", IsActive: true})
	require.NoError(t, err)
	_, err = f.log.Record(f.context, "สั่งของ shopee", "", Sentinel, "ซื้อออนไลน์")
	require.NoError(t, err)

	hits, err := f.svc.SearchRules(f.context, "shopee", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	// A rule edit is visible on the next search.
	_, err = f.svc.CreateRule(f.context, RuleInput{CategoryID: cat.ID, Field: FieldDescription, Pattern: "SHOPEEPAY", IsActive: true})
	require.NoError(t, err)
	hits, err = f.svc.SearchRules(f.context, "shopee", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestService_SearchRulesWithoutIndex(t *testing.T) {
	svc := NewService(NewMemoryRepository(nil), corrections.NewMemoryStore(), NewEngine(nil, testLogger()), nil, nil, 0, testLogger())

	_, err := svc.SearchRules(context.Background(), "x", 1)
	assert.Error(t, err)
}

// ============================================================================
// Snapshot and reclassification
// ============================================================================

func TestService_SnapshotLoadsCorrectionsOnlyWithClassifier(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.category(t, "ค่าอาหาร")
	_, err := f.log.Record(f.context, "ข้าวกล่อง", "", Sentinel, "ค่าอาหาร")
	require.NoError(t, err)

	snap, err := f.svc.Snapshot(f.context)
	require.NoError(t, err)
	assert.Empty(t, snap.corrections)
	assert.Equal(t, []string{"ค่าอาหาร"}, snap.AllowList())

	withClassifier := newServiceFixture(t, ClassifierFunc(func(context.Context, Request) (*Suggestion, error) {
		return nil, ErrNoSuggestion
	}))
	withClassifier.category(t, "ค่าอาหาร")
	_, err = withClassifier.log.Record(withClassifier.context, "ข้าวกล่อง", "", Sentinel, "ค่าอาหาร")
	require.NoError(t, err)

	snap, err = withClassifier.svc.Snapshot(withClassifier.context)
	require.NoError(t, err)
	assert.Len(t, snap.corrections, 1)
	assert.NotEmpty(t, snap.examples)
}

func TestService_Reclassify(t *testing.T) {
	f := newServiceFixture(t, ClassifierFunc(func(_ context.Context, req Request) (*Suggestion, error) {
		switch req.Note {
		case "ข้าวกล่องงานเช้า":
			return &Suggestion{Category: "ค่าอาหาร", Confidence: "high"}, nil
		case "ของไม่แน่ใจ":
			return &Suggestion{Category: "ค่าอาหาร", Confidence: "low"}, nil
		default:
			return &Suggestion{Category: Sentinel, Confidence: "high"}, nil
		}
	}))
	food := f.category(t, "ค่าอาหาร")
	f.category(t, Sentinel)

	var ids []uuid.UUID
	for i, note := range []string{"ข้าวกล่องงานเช้า", "ของไม่แน่ใจ", "อื่นๆ"} {
		tx := withdrawal(note, "", "100")
		tx.Date = tx.Date.AddDate(0, 0, i)
		_, err := f.ledger.Upsert(f.context, tx)
		require.NoError(t, err)
		ids = append(ids, tx.ID)
	}

	res, err := f.svc.Reclassify(f.context, f.ledger, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 1, res.Categorized)
	require.Len(t, res.Results, 1)
	assert.Equal(t, Reclassified{ID: ids[0], Category: "ค่าอาหาร", Confidence: ConfidenceHigh}, res.Results[0])

	stored, err := f.ledger.GetByID(f.context, ids[0])
	require.NoError(t, err)
	require.NotNil(t, stored.CategoryID)
	assert.Equal(t, food.ID, *stored.CategoryID)

	untouched, err := f.ledger.GetByID(f.context, ids[1])
	require.NoError(t, err)
	assert.Nil(t, untouched.CategoryID)
}

func TestService_ReclassifyPicksUpSentinelRows(t *testing.T) {
	f := newServiceFixture(t, ClassifierFunc(func(context.Context, Request) (*Suggestion, error) {
		return &Suggestion{Category: "ค่าอาหาร", Confidence: "high"}, nil
	}))
	food := f.category(t, "ค่าอาหาร")
	sentinel := f.category(t, Sentinel)

	pending := withdrawal("ข้าวกล่องงานเช้า", "", "100")
	pending.CategoryID = &sentinel.ID
	booked := withdrawal("ข้าวเย็น", "", "120")
	booked.Date = booked.Date.AddDate(0, 0, 1)
	booked.CategoryID = &food.ID
	for _, tx := range []*ledger.Transaction{pending, booked} {
		_, err := f.ledger.Upsert(f.context, tx)
		require.NoError(t, err)
	}

	res, err := f.svc.Reclassify(f.context, f.ledger, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Categorized)

	stored, err := f.ledger.GetByID(f.context, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, food.ID, *stored.CategoryID)
}

func TestService_ReclassifyRequiresClassifier(t *testing.T) {
	f := newServiceFixture(t, nil)

	_, err := f.svc.Reclassify(f.context, f.ledger, 10)
	assert.ErrorContains(t, err, "classifier is not configured")
}
