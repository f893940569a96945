package categorization

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-ledger/internal/domain/corrections"
)

func newTestIndex(t *testing.T) *SearchIndex {
	t.Helper()
	si, err := NewSearchIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = si.Close() })
	return si
}

func sampleSearchData() ([]CategoryRule, []corrections.Correction) {
	rules := []CategoryRule{
		rule("ซื้อออนไลน์", FieldDescription, "SHOPEE", false, 3),
		rule("ค่าน้ำมัน", FieldNote, "ค่าน้ำมัน", false, 2),
		rule("ค่าขนส่ง", FieldDescription, `kerry|flash`, true, 5),
	}
	recent := []corrections.Correction{
		{ID: uuid.New(), Note: "เติมน้ำมันรถตู้", AICategory: Sentinel, UserCategory: "ค่าน้ำมัน"},
	}
	return rules, recent
}

func TestSearchIndex_Reindex(t *testing.T) {
	si := newTestIndex(t)
	rules, recent := sampleSearchData()

	require.NoError(t, si.Reindex(rules, recent))
	count, err := si.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), count)

	// Reindexing replaces, never appends.
	require.NoError(t, si.Reindex(rules[:1], nil))
	count, err = si.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestSearchIndex_Search(t *testing.T) {
	si := newTestIndex(t)
	rules, recent := sampleSearchData()
	require.NoError(t, si.Reindex(rules, recent))

	t.Run("latin term", func(t *testing.T) {
		hits, err := si.Search("shopee", 10)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, "SHOPEE", hits[0].Document.Text)
		assert.Equal(t, docKindRule, hits[0].Document.Kind)
		assert.Equal(t, "description", hits[0].Document.Field)
		assert.Equal(t, float64(3), hits[0].Document.Priority)
	})

	t.Run("thai substring finds rules and corrections", func(t *testing.T) {
		hits, err := si.Search("น้ำมัน", 10)
		require.NoError(t, err)

		kinds := map[string]bool{}
		for _, h := range hits {
			kinds[h.Document.Kind] = true
			assert.Equal(t, "ค่าน้ำมัน", h.Document.Category)
		}
		assert.True(t, kinds[docKindRule])
		assert.True(t, kinds[docKindCorrection])
	})

	t.Run("wildcards in the query are ignored", func(t *testing.T) {
		hits, err := si.Search("kerry*", 10)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, "ค่าขนส่ง", hits[0].Document.Category)
	})

	t.Run("blank query", func(t *testing.T) {
		hits, err := si.Search("  ", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestSearchIndex_SearchByCategory(t *testing.T) {
	si := newTestIndex(t)
	rules, recent := sampleSearchData()
	require.NoError(t, si.Reindex(rules, recent))

	hits, err := si.SearchByCategory("ค่าน้ำมัน", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearchIndex_Persistent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.bleve")
	rules, _ := sampleSearchData()

	si, err := NewSearchIndex(path)
	require.NoError(t, err)
	require.NoError(t, si.Reindex(rules, nil))
	require.NoError(t, si.Close())

	reopened, err := NewSearchIndex(path)
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestStripWildcards(t *testing.T) {
	assert.Equal(t, "abc", stripWildcards("a*b?c"))
}
