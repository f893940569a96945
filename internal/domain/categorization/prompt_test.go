package categorization

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-ledger/internal/domain/corrections"
)

func TestFewShot(t *testing.T) {
	var corpus []TrainingExample
	for c := 0; c < 35; c++ {
		for n := 0; n < 3; n++ {
			corpus = append(corpus, TrainingExample{Note: fmt.Sprintf("note %d-%d", c, n), Category: fmt.Sprintf("cat%02d", c)})
		}
	}

	got := FewShot(corpus)

	require.Len(t, got, 60)
	assert.Equal(t, "cat00", got[0].Category)
	assert.Equal(t, "note 0-1", got[1].Note)
	assert.Equal(t, "cat29", got[59].Category)
	for _, ex := range got {
		assert.NotEqual(t, "cat30", ex.Category)
	}
}

func TestFewShot_InterleavedCorpusKeepsFirstAppearanceOrder(t *testing.T) {
	got := FewShot([]TrainingExample{
		{Note: "a1", Category: "A"},
		{Note: "b1", Category: "B"},
		{Note: "a2", Category: "A"},
		{Note: "a3", Category: "A"},
	})

	assert.Equal(t, []TrainingExample{
		{Note: "a1", Category: "A"},
		{Note: "a2", Category: "A"},
		{Note: "b1", Category: "B"},
	}, got)
}

func TestBuildPrompt(t *testing.T) {
	req := Request{
		Note:        "ค่าดอกไม้งานแต่ง",
		Description: "",
		Withdrawal:  decPtr("1500.50"),
		Categories:  []string{"ค่าดอกไม้", Sentinel},
		Examples:    []TrainingExample{{Note: "ซื้อดอกกุหลาบ", Category: "ค่าดอกไม้"}},
	}

	prompt := BuildPrompt(req)

	assert.Contains(t, prompt, `📝 Note (สำคัญที่สุด): "ค่าดอกไม้งานแต่ง"`)
	assert.Contains(t, prompt, `📄 Description: "(ไม่มี)"`)
	assert.Contains(t, prompt, "💰 จำนวนเงิน: 1500.5 บาท")
	assert.Contains(t, prompt, "1. ค่าดอกไม้\n2. ไม่ระบุ\n")
	assert.Contains(t, prompt, `Note: "ซื้อดอกกุหลาบ" → หมวดหมู่: ค่าดอกไม้`)
	assert.NotContains(t, prompt, "การแก้ไขจาก User")
	assert.True(t, strings.HasSuffix(prompt, "}"))
}

func TestBuildPrompt_CorrectionsAndDeposit(t *testing.T) {
	req := Request{
		Deposit: decPtr("3000"),
		Corrections: []corrections.Correction{
			{Note: "ข้าวกล่อง", AICategory: Sentinel, UserCategory: "ค่าอาหาร"},
		},
	}

	prompt := BuildPrompt(req)

	assert.Contains(t, prompt, `📝 Note (สำคัญที่สุด): "(ไม่มี)"`)
	assert.Contains(t, prompt, "💰 จำนวนเงิน: 3000 บาท")
	assert.Contains(t, prompt, "การแก้ไขจาก User")
	assert.Contains(t, prompt, `Note: "ข้าวกล่อง" → หมวดหมู่: ค่าอาหาร (แก้ไขจาก: ไม่ระบุ)`)
}

func TestParseSuggestion(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    *Suggestion
		wantErr bool
	}{
		{
			name: "bare object",
			text: `{"category":"ค่าอาหาร","confidence":"high","reasoning":"มื้อกลางวัน"}`,
			want: &Suggestion{Category: "ค่าอาหาร", Confidence: "high", Reasoning: "มื้อกลางวัน"},
		},
		{
			name: "fenced object with prose",
			text: "นี่คือคำตอบ:\n```json\n{\n  \"category\": \" ค่าดอกไม้ \",\n  \"confidence\": \"medium\"\n}\n```",
			want: &Suggestion{Category: "ค่าดอกไม้", Confidence: "medium"},
		},
		{name: "no object", text: "ไม่แน่ใจ", wantErr: true},
		{name: "broken json", text: `{"category": "x",}`, wantErr: true},
		{name: "empty category", text: `{"category":"  ","confidence":"high"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSuggestion(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoSuggestion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveCategory(t *testing.T) {
	allowed := []string{"ค่าโฆษณา Facebook Ads", "ค่าอาหาร", "ค่าอาหารว่าง"}

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"ค่าอาหารว่าง", "ค่าอาหารว่าง", true},
		{"facebook", "ค่าโฆษณา Facebook Ads", true},
		{"ค่าอาหารและเครื่องดื่ม", "ค่าอาหาร", true},
		{"Hotel", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ResolveCategory(tt.in, allowed)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseConfidence(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, ParseConfidence(" HIGH "))
	assert.Equal(t, ConfidenceMedium, ParseConfidence("medium"))
	assert.Equal(t, ConfidenceLow, ParseConfidence("very sure"))
	assert.Equal(t, ConfidenceLow, ParseConfidence(""))
}

func TestAllowList(t *testing.T) {
	got := AllowList([]string{"Uncategorized", "ค่าไฟฟ้า", "Test 1", "ค่าโฆษณา Google Adwords"})
	assert.Equal(t, []string{"ค่าไฟฟ้า", "ค่าโฆษณา Google Adwords"}, got)
}
