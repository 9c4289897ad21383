// Package grammar classifies free-text chat messages into typed intents.
//
// Rules are tried in a fixed order and the first rule whose shape matches
// wins, so overlapping inputs such as "午餐-120" and "午餐120" always
// classify the same way:
//
//  1. quick expense   <keyword><dash><amount>[ <note>]
//  2. expense         <category><amount>[ <note>]
//  3. income          <category>+<amount>[ <note>] | 收入<amount>[ <note>]
//  4. period query    今天 | 昨天 | 本週 | 本月
//  5. monthly report  月報[ YYYY-M]
//  6. reminder        提醒 <free text>
//  7. task by id      提醒完成 <id> | 提醒刪除 <id>
//  8. notes           筆記列表[ #tag] | 筆記更新 <id> <body> | 筆記刪除 <id>
//                     | 筆記 <id> | 筆記 <title>[\n<content>][ #tag...]
//
// Anything else is Unrecognized.
package grammar

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Intent is one of the types below. Unrecognized is the fallback.
type Intent interface {
	intent()
}

// QuickExpense is "早餐-50" or "早餐-50 麥當勞". Without trailing text the
// keyword doubles as the note so a confirmation card can pre-fill it.
type QuickExpense struct {
	CategoryKeyword string
	Amount          decimal.Decimal
	Note            string
}

// Expense is "午餐120 麥當勞". Note is empty when none was given.
type Expense struct {
	Category string
	Amount   decimal.Decimal
	Note     string
}

// Income is "薪資+5000 三月" or "收入5000". Category is empty for the
// 收入 form.
type Income struct {
	Category string
	Amount   decimal.Decimal
	Note     string
}

type Period string

const (
	PeriodToday     Period = "today"
	PeriodYesterday Period = "yesterday"
	PeriodWeek      Period = "week"
	PeriodMonth     Period = "month"
)

type PeriodQuery struct {
	Period Period
}

// MonthlyReport is "月報" or "月報2023-5". Year and Month are zero when
// the current month is meant.
type MonthlyReport struct {
	Year  int
	Month int
}

// Reminder is "提醒 開會 2023-5-20 14:30 每週". Text is everything after
// the keyword; time extraction needs a clock and happens in tasktime.
type Reminder struct {
	Text string
}

// TaskComplete is "提醒完成 3".
type TaskComplete struct {
	ID int64
}

// TaskDelete is "提醒刪除 3".
type TaskDelete struct {
	ID int64
}

// NoteAdd is "筆記 標題\n內容 #工作 #想法". The first line is the title,
// the remaining lines are the content.
type NoteAdd struct {
	Title   string
	Content string
	Tags    []string
}

// NoteList is "筆記列表" or "筆記列表 #工作".
type NoteList struct {
	Tag string
}

type NoteDetail struct {
	ID int64
}

// NoteUpdate is "筆記更新 3 新標題\n新內容 #tag". An empty Content or a
// nil Tags leaves that part of the note as it is.
type NoteUpdate struct {
	ID      int64
	Title   string
	Content string
	Tags    []string
}

type NoteDelete struct {
	ID int64
}

type Unrecognized struct{}

func (QuickExpense) intent()  {}
func (Expense) intent()       {}
func (Income) intent()        {}
func (PeriodQuery) intent()   {}
func (MonthlyReport) intent() {}
func (Reminder) intent()      {}
func (TaskComplete) intent()  {}
func (TaskDelete) intent()    {}
func (NoteAdd) intent()       {}
func (NoteList) intent()      {}
func (NoteDetail) intent()    {}
func (NoteUpdate) intent()    {}
func (NoteDelete) intent()    {}
func (Unrecognized) intent()  {}

const dashes = `\-－–—−‐`

var (
	quickExpenseRe = regexp.MustCompile(`^(\p{L}+)\s*[` + dashes + `]\s*(` + amountPattern + `)(?:\s+(.+))?$`)
	expenseRe      = regexp.MustCompile(`^(\p{L}+)(` + amountPattern + `)(?:\s+(.+))?$`)
	incomeRe       = regexp.MustCompile(`^(\p{L}*)\s*\+\s*(` + amountPattern + `)(?:\s+(.+))?$`)
	incomeLitRe    = regexp.MustCompile(`^收入\s*(` + amountPattern + `)(?:\s+(.+))?$`)
	reportRe       = regexp.MustCompile(`^月報(?:\s*(\d{4})\s*[-/]\s*(\d{1,2}))?$`)
	reminderRe     = regexp.MustCompile(`^提醒\s+(.+)$`)
	taskCompleteRe = regexp.MustCompile(`^提醒完成\s+(\d+)$`)
	taskDeleteRe   = regexp.MustCompile(`^提醒刪除\s+(\d+)$`)

	// Note bodies may span lines but never contain '#', which starts the
	// trailing tag list.
	noteListRe   = regexp.MustCompile(`^筆記列表(?:\s*#(.+))?$`)
	noteUpdateRe = regexp.MustCompile(`^筆記更新\s+(\d+)\s+([^#]+?)(?:\s+#(.+))?$`)
	noteDeleteRe = regexp.MustCompile(`^筆記刪除\s+(\d+)$`)
	noteDetailRe = regexp.MustCompile(`^筆記\s+(\d+)$`)
	noteAddRe    = regexp.MustCompile(`^筆記\s+([^#]+?)(?:\s+#(.+))?$`)
)

var periodKeywords = map[string]Period{
	"今天": PeriodToday,
	"昨天": PeriodYesterday,
	"本週": PeriodWeek,
	"本周": PeriodWeek,
	"本月": PeriodMonth,
}

type rule func(text string) (Intent, bool)

var rules = []rule{
	matchQuickExpense,
	matchExpense,
	matchIncome,
	matchPeriod,
	matchReport,
	matchReminder,
	matchTaskByID,
	matchNote,
}

// Classify maps text to exactly one Intent. It never fails; inputs that
// match no rule yield Unrecognized.
func Classify(text string) Intent {
	s := Normalize(text)
	if s == "" {
		return Unrecognized{}
	}
	for _, r := range rules {
		if in, ok := r(s); ok {
			return in
		}
	}
	return Unrecognized{}
}

func matchQuickExpense(s string) (Intent, bool) {
	m := quickExpenseRe.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	amount, err := ParseAmount(m[2])
	if err != nil {
		return nil, false
	}
	note := strings.TrimSpace(m[3])
	if note == "" {
		note = m[1]
	}
	return QuickExpense{CategoryKeyword: m[1], Amount: amount, Note: note}, true
}

func matchExpense(s string) (Intent, bool) {
	m := expenseRe.FindStringSubmatch(s)
	if m == nil || m[1] == "收入" {
		return nil, false
	}
	amount, err := ParseAmount(m[2])
	if err != nil {
		return nil, false
	}
	return Expense{Category: m[1], Amount: amount, Note: strings.TrimSpace(m[3])}, true
}

func matchIncome(s string) (Intent, bool) {
	if m := incomeLitRe.FindStringSubmatch(s); m != nil {
		amount, err := ParseAmount(m[1])
		if err != nil {
			return nil, false
		}
		return Income{Amount: amount, Note: strings.TrimSpace(m[2])}, true
	}

	m := incomeRe.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	amount, err := ParseAmount(m[2])
	if err != nil {
		return nil, false
	}
	return Income{Category: m[1], Amount: amount, Note: strings.TrimSpace(m[3])}, true
}

func matchPeriod(s string) (Intent, bool) {
	p, ok := periodKeywords[s]
	if !ok {
		return nil, false
	}
	return PeriodQuery{Period: p}, true
}

func matchReport(s string) (Intent, bool) {
	m := reportRe.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	if m[1] == "" {
		return MonthlyReport{}, true
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return nil, false
	}
	return MonthlyReport{Year: year, Month: month}, true
}

func matchReminder(s string) (Intent, bool) {
	m := reminderRe.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	return Reminder{Text: strings.TrimSpace(m[1])}, true
}

func matchTaskByID(s string) (Intent, bool) {
	if id, ok := matchID(taskCompleteRe, s); ok {
		return TaskComplete{ID: id}, true
	}
	if id, ok := matchID(taskDeleteRe, s); ok {
		return TaskDelete{ID: id}, true
	}
	return nil, false
}

func matchNote(s string) (Intent, bool) {
	if m := noteListRe.FindStringSubmatch(s); m != nil {
		var tag string
		if tags := splitTags(m[1]); len(tags) > 0 {
			tag = tags[0]
		}
		return NoteList{Tag: tag}, true
	}
	if m := noteUpdateRe.FindStringSubmatch(s); m != nil {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, false
		}
		title, content := splitNoteBody(m[2])
		if title == "" {
			return nil, false
		}
		return NoteUpdate{ID: id, Title: title, Content: content, Tags: splitTags(m[3])}, true
	}
	if id, ok := matchID(noteDeleteRe, s); ok {
		return NoteDelete{ID: id}, true
	}
	if id, ok := matchID(noteDetailRe, s); ok {
		return NoteDetail{ID: id}, true
	}
	if m := noteAddRe.FindStringSubmatch(s); m != nil {
		title, content := splitNoteBody(m[1])
		if title == "" {
			return nil, false
		}
		return NoteAdd{Title: title, Content: content, Tags: splitTags(m[2])}, true
	}
	return nil, false
}

func matchID(re *regexp.Regexp, s string) (int64, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// splitNoteBody returns the first line as the title and the rest as the
// content.
func splitNoteBody(body string) (title, content string) {
	title, content, _ = strings.Cut(strings.TrimSpace(body), "\n")
	return strings.TrimSpace(title), strings.TrimSpace(content)
}

// splitTags turns "工作 #想法" into [工作 想法]. Empty input gives nil.
func splitTags(s string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, t := range strings.Split(s, "#") {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	return tags
}
