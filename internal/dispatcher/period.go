package dispatcher

import (
	"time"

	"github.com/Nell373/linebot-ai/internal/grammar"
)

// periodRange returns [from, to) for p in now's location. Weeks start on
// Monday.
func periodRange(p grammar.Period, now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	switch p {
	case grammar.PeriodYesterday:
		return today.AddDate(0, 0, -1), today
	case grammar.PeriodWeek:
		offset := (int(today.Weekday()) + 6) % 7
		start := today.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case grammar.PeriodMonth:
		start := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(0, 1, 0)
	default:
		return today, today.AddDate(0, 0, 1)
	}
}

func monthRange(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

func periodLabel(p grammar.Period) string {
	switch p {
	case grammar.PeriodYesterday:
		return "昨天"
	case grammar.PeriodWeek:
		return "本週"
	case grammar.PeriodMonth:
		return "本月"
	default:
		return "今天"
	}
}

// parsePeriod accepts the wire names used in view_transactions payloads.
func parsePeriod(s string) grammar.Period {
	switch grammar.Period(s) {
	case grammar.PeriodYesterday, grammar.PeriodWeek, grammar.PeriodMonth:
		return grammar.Period(s)
	}
	return grammar.PeriodToday
}
