package categorization

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func categoriesNamed(names ...string) []Category {
	out := make([]Category, len(names))
	for i, n := range names {
		out[i] = Category{ID: uuid.New(), Name: n}
	}
	return out
}

func TestFuzzyMatcher_Rank(t *testing.T) {
	fm := NewFuzzyMatcher(categoriesNamed("ค่าน้ำมัน", "ค่าไฟฟ้า", "ค่าโฆษณา Facebook Ads", "เงินเดือน ค่าจ้าง", "  "))
	require.Equal(t, 4, fm.Len())

	t.Run("substring ranks first", func(t *testing.T) {
		got := fm.Rank("facebook", 2)
		require.Len(t, got, 2)
		assert.Equal(t, "ค่าโฆษณา Facebook Ads", got[0].Category.Name)
		assert.GreaterOrEqual(t, got[0].Score, 75)
	})

	t.Run("exact name scores 100", func(t *testing.T) {
		got := fm.Rank("ค่าไฟฟ้า", 1)
		require.Len(t, got, 1)
		assert.Equal(t, 100, got[0].Score)
		assert.Zero(t, got[0].Distance)
	})

	t.Run("limit zero returns all", func(t *testing.T) {
		assert.Len(t, fm.Rank("ค่า", 0), 4)
	})

	t.Run("blank query", func(t *testing.T) {
		assert.Nil(t, fm.Rank("   ", 5))
	})
}

func TestFuzzyMatcher_MatchToleratesTypos(t *testing.T) {
	fm := NewFuzzyMatcher(categoriesNamed("ค่าน้ำมัน", "ค่าไฟฟ้า", "ค่าซ่อมแซม"))

	m := fm.Match("ค่าน้ำมน", 70)
	require.NotNil(t, m)
	assert.Equal(t, "ค่าน้ำมัน", m.Category.Name)
	assert.Equal(t, 1, m.Distance)

	assert.Nil(t, fm.Match("zzzz", 50))
}

func TestFuzzyMatcher_Build(t *testing.T) {
	fm := NewFuzzyMatcher(nil)
	assert.Nil(t, fm.Rank("x", 1))

	fm.Build(categoriesNamed("ค่าอาหาร"))
	assert.Equal(t, 1, fm.Len())
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"abc", "", 3},
		{"ค่าไฟ", "ค่าไฟฟ้า", 3},
		{"same", "same", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshteinDistance(tt.a, tt.b), "%s -> %s", tt.a, tt.b)
	}
}
