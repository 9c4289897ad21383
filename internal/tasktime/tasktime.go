// Package tasktime extracts a due time from free-text task descriptions
// such as "明天下午3點 開會" or "繳房租 2024-5-1 每月".
//
// Parsing is best-effort. It recognizes a handful of common Chinese date
// and clock forms and leaves anything else in the task content; it is not
// a calendar parser and never returns an error.
package tasktime

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Repeat string

const (
	RepeatNone    Repeat = ""
	RepeatDaily   Repeat = "daily"
	RepeatWeekly  Repeat = "weekly"
	RepeatMonthly Repeat = "monthly"
)

// DefaultHour is used when a date is given without a clock time.
const DefaultHour = 9

// Result is what Parse could recover. Due is the zero time when no date or
// clock expression was found.
type Result struct {
	Content string
	Due     time.Time
	Repeat  Repeat
}

func (r Result) HasDue() bool {
	return !r.Due.IsZero()
}

var (
	repeatRe   = regexp.MustCompile(`(每日|每天|每週|每周|每星期|每月)`)
	isoDateRe  = regexp.MustCompile(`(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})`)
	mdDateRe   = regexp.MustCompile(`(\d{1,2})(?:/|月)(\d{1,2})(?:日|號|号)?`)
	relDayRe   = regexp.MustCompile(`(大後天|後天|后天|明天|今天|今日|明日)`)
	weekdayRe  = regexp.MustCompile(`(下個?|這個?|这个?)?(?:週|周|星期|禮拜)([一二三四五六日天])`)
	afterRe    = regexp.MustCompile(`(\d+)\s*(分鐘|分钟|小時|小时)後`)
	clockRe    = regexp.MustCompile(`(上午|早上|早|中午|下午|傍晚|晚上|凌晨|半夜)?\s*(\d{1,2})(?::(\d{2})|點半|点半|點(?:(\d{1,2})分?)?|点(?:(\d{1,2})分?)?)`)
	spacesRe   = regexp.MustCompile(`\s+`)
	halfWidths = strings.NewReplacer("０", "0", "１", "1", "２", "2", "３", "3", "４", "4", "５", "5", "６", "6", "７", "7", "８", "8", "９", "9", "：", ":", "　", " ")
)

var weekdays = map[string]time.Weekday{
	"一": time.Monday, "二": time.Tuesday, "三": time.Wednesday, "四": time.Thursday,
	"五": time.Friday, "六": time.Saturday, "日": time.Sunday, "天": time.Sunday,
}

// Parse pulls a repeat marker, a date and a clock time out of text,
// interpreting them in now's location. Matched fragments are removed from
// the returned content.
//
// Clock rules: 上午/早上 12 is midnight, 中午 1-2 is early afternoon,
// 下午/晚上 add twelve hours, 晚上12點 is the following midnight and
// 凌晨 12 is 00:00. Without a period word the hour is read as 24h. A clock
// time with no date that has already passed today moves to tomorrow.
func Parse(text string, now time.Time) Result {
	s := halfWidths.Replace(text)
	res := Result{}

	if m := repeatRe.FindStringSubmatchIndex(s); m != nil {
		res.Repeat = repeatOf(s[m[2]:m[3]])
		s = cut(s, m[0], m[1])
	}

	if m := afterRe.FindStringSubmatchIndex(s); m != nil {
		n, _ := strconv.Atoi(s[m[2]:m[3]])
		unit := time.Minute
		if u := s[m[4]:m[5]]; strings.HasPrefix(u, "小") {
			unit = time.Hour
		}
		res.Due = now.Add(time.Duration(n) * unit).Truncate(time.Minute)
		res.Content = tidy(cut(s, m[0], m[1]))
		return res
	}

	loc := now.Location()
	y, mo, d := now.Date()
	dateFound := false

	switch {
	case isoDateRe.MatchString(s):
		m := isoDateRe.FindStringSubmatchIndex(s)
		yy, _ := strconv.Atoi(s[m[2]:m[3]])
		mm, _ := strconv.Atoi(s[m[4]:m[5]])
		dd, _ := strconv.Atoi(s[m[6]:m[7]])
		if validDate(yy, mm, dd) {
			y, mo, d = yy, time.Month(mm), dd
			dateFound = true
			s = cut(s, m[0], m[1])
		}
	case relDayRe.MatchString(s):
		m := relDayRe.FindStringSubmatchIndex(s)
		offset := relOffset(s[m[2]:m[3]])
		y, mo, d = now.AddDate(0, 0, offset).Date()
		dateFound = true
		s = cut(s, m[0], m[1])
	case weekdayRe.MatchString(s):
		m := weekdayRe.FindStringSubmatchIndex(s)
		next := m[2] >= 0 && strings.HasPrefix(s[m[2]:m[3]], "下")
		target := weekdays[s[m[4]:m[5]]]
		y, mo, d = nextWeekday(now, target, next).Date()
		dateFound = true
		s = cut(s, m[0], m[1])
	}

	// M/D has to look past clock times such as 14:30, so it runs after the
	// stricter forms and only when none matched.
	if !dateFound {
		if m := mdDateRe.FindStringSubmatchIndex(s); m != nil {
			mm, _ := strconv.Atoi(s[m[2]:m[3]])
			dd, _ := strconv.Atoi(s[m[4]:m[5]])
			if validDate(y, mm, dd) {
				candidate := time.Date(y, time.Month(mm), dd, 23, 59, 0, 0, loc)
				if candidate.Before(now) {
					y++
				}
				mo, d = time.Month(mm), dd
				dateFound = true
				s = cut(s, m[0], m[1])
			}
		}
	}

	hour, minute, dayShift, clockFound := -1, 0, 0, false
	if m := clockRe.FindStringSubmatchIndex(s); m != nil {
		period := ""
		if m[2] >= 0 {
			period = s[m[2]:m[3]]
		}
		h, _ := strconv.Atoi(s[m[4]:m[5]])
		mi := 0
		matched := s[m[0]:m[1]]
		switch {
		case m[6] >= 0:
			mi, _ = strconv.Atoi(s[m[6]:m[7]])
		case m[8] >= 0:
			mi, _ = strconv.Atoi(s[m[8]:m[9]])
		case m[10] >= 0:
			mi, _ = strconv.Atoi(s[m[10]:m[11]])
		case strings.HasSuffix(matched, "半"):
			mi = 30
		}
		if hh, shift, ok := applyPeriod(period, h); ok && mi >= 0 && mi < 60 {
			hour, minute, dayShift, clockFound = hh, mi, shift, true
			s = cut(s, m[0], m[1])
		}
	}

	switch {
	case dateFound && clockFound:
		res.Due = time.Date(y, mo, d+dayShift, hour, minute, 0, 0, loc)
	case dateFound:
		res.Due = time.Date(y, mo, d, DefaultHour, 0, 0, 0, loc)
	case clockFound:
		due := time.Date(y, mo, d+dayShift, hour, minute, 0, 0, loc)
		if !due.After(now) {
			due = due.AddDate(0, 0, 1)
		}
		res.Due = due
	}

	res.Content = tidy(s)
	return res
}

func applyPeriod(period string, h int) (hour int, dayShift int, ok bool) {
	if h < 0 || h > 24 {
		return 0, 0, false
	}
	switch period {
	case "上午", "早上", "早":
		if h == 12 {
			return 0, 0, true
		}
		return h, 0, h < 12
	case "中午":
		if h >= 1 && h <= 2 {
			return h + 12, 0, true
		}
		return h, 0, h >= 11 && h <= 12
	case "下午", "傍晚":
		if h == 12 {
			return 12, 0, true
		}
		return h + 12, 0, h < 12
	case "晚上":
		switch {
		case h == 12:
			return 0, 1, true
		case h < 12:
			return h + 12, 0, true
		default:
			return h, 0, h < 24
		}
	case "凌晨", "半夜":
		if h == 12 {
			return 0, 0, true
		}
		return h, 0, h < 12
	default:
		if h == 24 {
			return 0, 1, true
		}
		return h, 0, true
	}
}

func relOffset(word string) int {
	switch word {
	case "明天", "明日":
		return 1
	case "後天", "后天":
		return 2
	case "大後天":
		return 3
	default:
		return 0
	}
}

// nextWeekday returns the next date falling on target. With next set the
// date is pushed into the following Monday-based week.
func nextWeekday(now time.Time, target time.Weekday, next bool) time.Time {
	if next {
		daysToMonday := (8 - int(now.Weekday())) % 7
		if daysToMonday == 0 {
			daysToMonday = 7
		}
		monday := now.AddDate(0, 0, daysToMonday)
		offset := (int(target) + 6) % 7
		return monday.AddDate(0, 0, offset)
	}
	diff := (int(target) - int(now.Weekday()) + 7) % 7
	return now.AddDate(0, 0, diff)
}

func validDate(y, m, d int) bool {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return t.Day() == d
}

func repeatOf(word string) Repeat {
	switch word {
	case "每日", "每天":
		return RepeatDaily
	case "每月":
		return RepeatMonthly
	default:
		return RepeatWeekly
	}
}

func cut(s string, from, to int) string {
	return s[:from] + " " + s[to:]
}

func tidy(s string) string {
	return strings.TrimSpace(spacesRe.ReplaceAllString(s, " "))
}
