package tasktime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var taipei = time.FixedZone("CST", 8*60*60)

// Wednesday 2024-05-15 10:00
var now = time.Date(2024, 5, 15, 10, 0, 0, 0, taipei)

func at(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, taipei)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		content string
		due     time.Time
		repeat  Repeat
	}{
		{"iso date and clock", "開會 2023-5-20 14:30", "開會", at(2023, 5, 20, 14, 30), RepeatNone},
		{"iso date default hour", "繳房租 2024-6-1 每月", "繳房租", at(2024, 6, 1, 9, 0), RepeatMonthly},
		{"tomorrow afternoon", "明天下午3點 開會", "開會", at(2024, 5, 16, 15, 0), RepeatNone},
		{"half past", "後天早上8點半 晨跑", "晨跑", at(2024, 5, 17, 8, 30), RepeatNone},
		{"minutes with 點", "今天晚上7點15分 打電話", "打電話", at(2024, 5, 15, 19, 15), RepeatNone},
		{"noon one", "中午1點 午會", "午會", at(2024, 5, 15, 13, 0), RepeatNone},
		{"noon twelve", "中午12點 吃飯", "吃飯", at(2024, 5, 15, 12, 0), RepeatNone},
		{"evening twelve is next midnight", "晚上12點 睡覺", "睡覺", at(2024, 5, 16, 0, 0), RepeatNone},
		{"early morning twelve", "明天凌晨12點 看流星", "看流星", at(2024, 5, 16, 0, 0), RepeatNone},
		{"early morning passes to tomorrow", "凌晨2點 收衣服", "收衣服", at(2024, 5, 16, 2, 0), RepeatNone},
		{"morning twelve is midnight", "明天上午12點 值班", "值班", at(2024, 5, 16, 0, 0), RepeatNone},
		{"24h clock later today", "14:00 交報告", "交報告", at(2024, 5, 15, 14, 0), RepeatNone},
		{"24h clock already passed", "9:00 站會 每天", "站會", at(2024, 5, 16, 9, 0), RepeatDaily},
		{"next week friday", "下週五 聚餐", "聚餐", at(2024, 5, 24, 9, 0), RepeatNone},
		{"this week friday", "週五晚上8點 電影", "電影", at(2024, 5, 17, 20, 0), RepeatNone},
		{"month day", "6月1日 生日", "生日", at(2024, 6, 1, 9, 0), RepeatNone},
		{"month day rolls to next year", "3/1 報稅", "報稅", at(2025, 3, 1, 9, 0), RepeatNone},
		{"relative minutes", "30分鐘後 關火", "關火", at(2024, 5, 15, 10, 30), RepeatNone},
		{"relative hours", "2小時後 取件", "取件", at(2024, 5, 15, 12, 0), RepeatNone},
		{"weekly repeat", "倒垃圾 每週", "倒垃圾", time.Time{}, RepeatWeekly},
		{"full width digits", "明天１０：３０ 面試", "面試", at(2024, 5, 16, 10, 30), RepeatNone},
		{"no time", "買牛奶", "買牛奶", time.Time{}, RepeatNone},
		{"invalid date left in content", "2023-2-30 測試", "2023-2-30 測試", time.Time{}, RepeatNone},
		{"afternoon out of range ignored", "下午13點 測試", "下午13點 測試", time.Time{}, RepeatNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input, now)
			assert.Equal(t, tt.content, got.Content)
			assert.Equal(t, tt.repeat, got.Repeat)
			if tt.due.IsZero() {
				assert.False(t, got.HasDue(), "unexpected due %s", got.Due)
				return
			}
			assert.True(t, tt.due.Equal(got.Due), "due = %s, want %s", got.Due, tt.due)
		})
	}
}

func TestParse_PureForSameClock(t *testing.T) {
	a := Parse("明天下午3點 開會 每週", now)
	b := Parse("明天下午3點 開會 每週", now)
	assert.Equal(t, a, b)
}
