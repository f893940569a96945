package categorization

import (
	"regexp"
	"sort"
	"strings"
)

// BuiltinRule is a compiled-in rule. Note patterns are tested against the note,
// description patterns against description, raw description and note combined.
type BuiltinRule struct {
	Category     string
	NotePatterns []Pattern
	DescPatterns []Pattern
	Priority     int
}

func lit(s string) Pattern {
	return &CompiledPattern{raw: s, literal: strings.ToLower(s)}
}

// rx compiles a regex as written, with its own flags.
func rx(expr string) Pattern {
	return &CompiledPattern{raw: expr, re: regexp.MustCompile(expr)}
}

func pats(p ...Pattern) []Pattern { return p }

// DefaultBuiltinRules is the built-in table in declaration order.
func DefaultBuiltinRules() []BuiltinRule {
	return []BuiltinRule{
		{
			Category:     InterCompanyCategory,
			NotePatterns: pats(lit("เติมบุญ"), lit("ไอริส"), rx(`(?i)โอน.*เติมบุญ`), rx(`(?i)โอน.*ไอริส`)),
			DescPatterns: pats(lit("เติมบุญ"), lit("ไอริส"), rx(`(?i)TERMBOON`), rx(`(?i)IRIS`)),
			Priority:     0,
		},
		{
			Category:     "ค่ารถรับส่งพระ",
			NotePatterns: pats(lit("รับพระ"), rx(`(?i)รับ.*พระ`)),
			Priority:     1,
		},
		{
			Category:     "ค่าจ้างพนักงานชั่วคราว",
			NotePatterns: pats(lit("พาร์ทไทม์"), lit("พาร์ท"), lit("parttime"), rx(`(?i)เบิก.*ทดรอง.*พาร์ท`)),
			Priority:     1,
		},
		{
			Category:     "ต้นทุนการให้บริการ",
			NotePatterns: pats(rx(`^PO\s`), lit("PO ซื้อสินค้า"), rx(`(?i)ร้าน.*ซีฟู้ด`), rx(`(?i)ร้าน.*กุ้ง`)),
			Priority:     1,
		},
		{
			Category:     "ค่าเช่าเต้นท์-โต๊ะ-เก้าอี้",
			NotePatterns: pats(lit("เต๊นท์"), lit("เต้นท์"), rx(`(?i)เช่า.*โต๊ะ.*เก้าอี้`), rx(`(?i)โต๊ะ.*เก้าอี้`)),
			Priority:     1,
		},
		{
			Category:     "ค่าจ้างที่ปรึกษาการตลาด",
			NotePatterns: pats(lit("ค่าการตลาด"), rx(`(?i)ที่ปรึกษา.*การตลาด`)),
			Priority:     1,
		},
		{
			Category:     "เจ้าหนี้เช่าซื้อ",
			DescPatterns: pats(lit("TOYOTA LEASING"), lit("TRI PETCH ISUZU"), rx(`(?i)LEASING`)),
			Priority:     2,
		},
		{
			Category:     "ต้นทุนการก่อสร้าง",
			NotePatterns: pats(lit("ค่าเทปูน"), lit("ค่าปูน")),
			DescPatterns: pats(lit("CPAC TaLuang"), lit("CPAC")),
			Priority:     2,
		},
		{
			Category:     "เงินเดือน ค่าจ้าง",
			NotePatterns: pats(lit("เงินเดือน")),
			DescPatterns: pats(lit("PAY PEAK-Payroll"), lit("Payroll")),
			Priority:     2,
		},
		{
			Category:     "ค่าน้ำมัน",
			NotePatterns: pats(lit("น้ำมัน"), rx(`(?i)ออกงาน`), rx(`(?i)เซท.*งาน`), rx(`(?i)เซ็ท.*งาน`)),
			Priority:     3,
		},
		{
			Category:     "ค่าซ่อมแซม",
			NotePatterns: pats(lit("ค่าซ่อม"), lit("ซ่อมบำรุง"), lit("ซ่อมรถ")),
			Priority:     3,
		},
		{
			Category:     "อุปกรณ์ของใช้งานจัดเลี้ยง",
			NotePatterns: pats(lit("ไฟสนาม"), lit("ภาชนะ"), lit("ปลอกเก้าอี้"), lit("พรม")),
			Priority:     3,
		},
		{
			Category:     "ค่าโฆษณา Facebook Ads",
			DescPatterns: pats(lit("FACEBOOK"), lit("Facebook")),
			Priority:     3,
		},
		{
			Category:     "ค่าโฆษณา Google Adwords",
			DescPatterns: pats(lit("GOOGLE"), lit("Google")),
			Priority:     3,
		},
		{
			Category:     "ค่าไฟฟ้า",
			NotePatterns: pats(lit("ค่าไฟ")),
			DescPatterns: pats(rx(`(?i)การไฟฟ้า`), lit("PEA"), lit("MEA")),
			Priority:     3,
		},
		{
			Category:     "ค่าธรรมเนียมธนาคาร",
			DescPatterns: pats(lit("ค่าธรรมเนียม"), lit("Bank Fee"), lit("Service Charge")),
			Priority:     3,
		},
		{
			Category:     "ค่าใช้จ่ายอื่น",
			NotePatterns: pats(lit("Petty Cash"), lit("เบิก")),
			Priority:     4,
		},
	}
}

// compileBuiltin orders rules by priority (stable) and flattens them into a table
// where each rule's note patterns come before its description patterns.
func compileBuiltin(rules []BuiltinRule) ([]BuiltinRule, *ruleTable) {
	sorted := make([]BuiltinRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	var entries []entry
	for i, r := range sorted {
		for _, p := range r.NotePatterns {
			entries = append(entries, newEntry(i, FieldNote, p))
		}
		for _, p := range r.DescPatterns {
			entries = append(entries, newEntry(i, FieldDescription, p))
		}
	}
	return sorted, newRuleTable(entries)
}

func newEntry(rule int, field Field, p Pattern) entry {
	cp, ok := p.(*CompiledPattern)
	return entry{rule: rule, field: field, literal: ok && !cp.IsRegex(), pattern: p}
}
