package grammar

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		input string
		want  Intent
	}{
		{"早餐-50", QuickExpense{CategoryKeyword: "早餐", Amount: dec("50"), Note: "早餐"}},
		{"早餐－50", QuickExpense{CategoryKeyword: "早餐", Amount: dec("50"), Note: "早餐"}},
		{"咖啡 — 1,200", QuickExpense{CategoryKeyword: "咖啡", Amount: dec("1200"), Note: "咖啡"}},
		{"早餐-50 麥當勞", QuickExpense{CategoryKeyword: "早餐", Amount: dec("50"), Note: "麥當勞"}},
		{"早餐 - 50  蛋餅 豆漿 ", QuickExpense{CategoryKeyword: "早餐", Amount: dec("50"), Note: "蛋餅 豆漿"}},
		{"午餐120", Expense{Category: "午餐", Amount: dec("120")}},
		{"午餐120 麥當勞", Expense{Category: "午餐", Amount: dec("120"), Note: "麥當勞"}},
		{"taxi350.5", Expense{Category: "taxi", Amount: dec("350.5")}},
		{"午餐１２０", Expense{Category: "午餐", Amount: dec("120")}},
		{"收入5000", Income{Amount: dec("5000")}},
		{"收入5000 薪資", Income{Amount: dec("5000"), Note: "薪資"}},
		{"薪資+30,000 三月", Income{Category: "薪資", Amount: dec("30000"), Note: "三月"}},
		{"+800", Income{Amount: dec("800")}},
		{"今天", PeriodQuery{Period: PeriodToday}},
		{"昨天", PeriodQuery{Period: PeriodYesterday}},
		{"本週", PeriodQuery{Period: PeriodWeek}},
		{"本月", PeriodQuery{Period: PeriodMonth}},
		{"月報", MonthlyReport{}},
		{"月報2023-5", MonthlyReport{Year: 2023, Month: 5}},
		{"月報 2024/12", MonthlyReport{Year: 2024, Month: 12}},
		{"提醒 開會 2023-5-20 14:30 每週", Reminder{Text: "開會 2023-5-20 14:30 每週"}},
		{"提醒完成 3", TaskComplete{ID: 3}},
		{"提醒刪除 12", TaskDelete{ID: 12}},
		{"筆記 買菜清單", NoteAdd{Title: "買菜清單"}},
		{"筆記 會議記錄\n討論預算\n下週再議 #工作 #預算", NoteAdd{Title: "會議記錄", Content: "討論預算\n下週再議", Tags: []string{"工作", "預算"}}},
		{"筆記 想法 #a#b #a", NoteAdd{Title: "想法", Tags: []string{"a", "b"}}},
		{"筆記列表", NoteList{}},
		{"筆記列表 #工作", NoteList{Tag: "工作"}},
		{"筆記 7", NoteDetail{ID: 7}},
		{"筆記更新 7 新標題", NoteUpdate{ID: 7, Title: "新標題"}},
		{"筆記更新 7 新標題\n新內容 #生活", NoteUpdate{ID: 7, Title: "新標題", Content: "新內容", Tags: []string{"生活"}}},
		{"筆記刪除 7", NoteDelete{ID: 7}},
		{"提醒完成", Unrecognized{}},
		{"提醒完成 abc", Unrecognized{}},
		{"筆記", Unrecognized{}},
		{"筆記刪除 0", Unrecognized{}},
		{"月報2023-13", Unrecognized{}},
		{"午餐12,34", Unrecognized{}},
		{"早餐--50", Unrecognized{}},
		{"hello", Unrecognized{}},
		{"", Unrecognized{}},
		{"   ", Unrecognized{}},
		{"今天吃什麼", Unrecognized{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Classify(tt.input)
			require.IsType(t, tt.want, got)
			assertIntentEqual(t, tt.want, got)
		})
	}
}

func TestClassify_QuickExpenseBeatsExpense(t *testing.T) {
	got := Classify("早餐-50")
	_, isExpense := got.(Expense)
	assert.False(t, isExpense)

	qe, ok := got.(QuickExpense)
	require.True(t, ok)
	assert.Equal(t, "早餐", qe.CategoryKeyword)
	assert.True(t, qe.Amount.Equal(dec("50")))
}

func TestClassify_FinanceBeatsNotes(t *testing.T) {
	// A note keyword glued to an amount is an expense in category 筆記.
	got := Classify("筆記120")
	exp, ok := got.(Expense)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, "筆記", exp.Category)
}

func TestClassify_Deterministic(t *testing.T) {
	inputs := []string{"早餐-50", "午餐120", "收入5000", "本月", "月報2023-5", "???", "提醒 繳費 明天"}
	for _, in := range inputs {
		first := Classify(in)
		for i := 0; i < 5; i++ {
			assertIntentEqual(t, first, Classify(in))
		}
	}
}

// decimal values compare by value, not by representation
func assertIntentEqual(t *testing.T, want, got Intent) {
	t.Helper()
	switch w := want.(type) {
	case QuickExpense:
		g := got.(QuickExpense)
		assert.Equal(t, w.CategoryKeyword, g.CategoryKeyword)
		assert.Equal(t, w.Note, g.Note)
		assert.True(t, w.Amount.Equal(g.Amount), "amount %s != %s", w.Amount, g.Amount)
	case Expense:
		g := got.(Expense)
		assert.Equal(t, w.Category, g.Category)
		assert.Equal(t, w.Note, g.Note)
		assert.True(t, w.Amount.Equal(g.Amount), "amount %s != %s", w.Amount, g.Amount)
	case Income:
		g := got.(Income)
		assert.Equal(t, w.Category, g.Category)
		assert.Equal(t, w.Note, g.Note)
		assert.True(t, w.Amount.Equal(g.Amount), "amount %s != %s", w.Amount, g.Amount)
	default:
		assert.Equal(t, want, got)
	}
}
