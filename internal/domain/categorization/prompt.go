package categorization

import (
	"fmt"
	"strings"

	"github.com/FACorreiaa/statement-ledger/pkg/money"
)

const (
	fewShotCategories  = 30
	fewShotPerCategory = 2
)

// FewShot picks up to two examples for each of the first thirty categories of the
// corpus, in corpus order.
func FewShot(corpus []TrainingExample) []TrainingExample {
	var order []string
	grouped := make(map[string][]TrainingExample)
	for _, ex := range corpus {
		if _, seen := grouped[ex.Category]; !seen {
			if len(order) == fewShotCategories {
				continue
			}
			order = append(order, ex.Category)
		}
		grouped[ex.Category] = append(grouped[ex.Category], ex)
	}

	out := make([]TrainingExample, 0, len(order)*fewShotPerCategory)
	for _, cat := range order {
		examples := grouped[cat]
		if len(examples) > fewShotPerCategory {
			examples = examples[:fewShotPerCategory]
		}
		out = append(out, examples...)
	}
	return out
}

// BuildPrompt renders the classifier prompt for req.
func BuildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("คุณเป็นผู้เชี่ยวชาญด้านบัญชีสำหรับธุรกิจจัดเลี้ยงและอีเว้นท์ในประเทศไทย\n\n")
	b.WriteString("ให้วิเคราะห์รายการค่าใช้จ่ายนี้และเลือกหมวดหมู่ที่เหมาะสมที่สุด:\n\n")
	fmt.Fprintf(&b, "📝 Note (สำคัญที่สุด): %q\n", orNone(req.Note))
	fmt.Fprintf(&b, "📄 Description: %q\n", orNone(req.Description))
	fmt.Fprintf(&b, "💰 จำนวนเงิน: %s บาท\n\n", promptAmount(req))

	b.WriteString("⚠️ กฎสำคัญ:\n")
	b.WriteString("1. ดู Note เป็นหลัก (สำคัญกว่า Description)\n")
	b.WriteString("2. เลือกหมวดหมู่จากรายการด้านล่างเท่านั้น\n")
	fmt.Fprintf(&b, "3. ถ้าไม่แน่ใจ ให้เลือก %q\n\n", Sentinel)

	b.WriteString("หมวดหมู่ที่เลือกได้:\n")
	for i, c := range req.Categories {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}

	b.WriteString("\n=== ตัวอย่างจากข้อมูลจริง ===\n")
	for _, ex := range req.Examples {
		fmt.Fprintf(&b, "Note: %q → หมวดหมู่: %s\n", ex.Note, ex.Category)
	}

	if len(req.Corrections) > 0 {
		b.WriteString("\n=== การแก้ไขจาก User (สำคัญมาก - ให้ความสำคัญกว่าตัวอย่างอื่น) ===\n")
		for _, c := range req.Corrections {
			fmt.Fprintf(&b, "Note: %q → หมวดหมู่: %s (แก้ไขจาก: %s)\n", c.Note, c.UserCategory, c.AICategory)
		}
	}

	b.WriteString("\nตอบในรูปแบบ JSON:\n")
	b.WriteString("{\n")
	b.WriteString("  \"category\": \"ชื่อหมวดหมู่\",\n")
	b.WriteString("  \"confidence\": \"high/medium/low\",\n")
	b.WriteString("  \"reasoning\": \"เหตุผลสั้นๆ\"\n")
	b.WriteString("}")

	return b.String()
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(ไม่มี)"
	}
	return s
}

func promptAmount(req Request) string {
	switch {
	case money.IsPositive(req.Withdrawal):
		return req.Withdrawal.String()
	case req.Deposit != nil:
		return req.Deposit.String()
	default:
		return "0"
	}
}
