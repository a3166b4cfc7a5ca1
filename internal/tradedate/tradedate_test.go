package tradedate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cst = time.FixedZone("CST", 8*3600)

func day(s string) time.Time {
	t, err := time.ParseInLocation(Layout, s, cst)
	if err != nil {
		panic(err)
	}
	return t
}

func TestPrevious(t *testing.T) {
	cases := []struct {
		now  time.Time
		want string
	}{
		{time.Date(2024, 1, 8, 10, 30, 0, 0, cst), "2024-01-05"},    // 周一 -> 上周五
		{time.Date(2024, 1, 7, 23, 59, 0, 0, cst), "2024-01-05"},    // 周日 -> 周五
		{time.Date(2024, 1, 6, 9, 0, 0, 0, cst), "2024-01-05"},      // 周六 -> 周五
		{time.Date(2024, 1, 10, 0, 0, 1, 0, cst), "2024-01-09"},     // 周三 -> 周二
		{time.Date(2024, 1, 1, 12, 0, 0, 0, cst), "2023-12-29"},     // 跨年
		{time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), "2024-02-29"}, // 闰年
	}
	for _, tc := range cases {
		t.Run(tc.now.Weekday().String(), func(t *testing.T) {
			got := Previous(tc.now)
			assert.Equal(t, tc.want, got.Format(Layout))
			assert.NotEqual(t, time.Saturday, got.Weekday())
			assert.NotEqual(t, time.Sunday, got.Weekday())
			assert.True(t, got.Before(tc.now))
		})
	}
	assert.Equal(t, "2024-01-05", PreviousString(time.Date(2024, 1, 8, 0, 0, 0, 0, cst)))
}

func TestParse(t *testing.T) {
	for _, s := range []string{"2024-01-01", "2024/01/01", "20240101", "2024-01-01 15:00", " 2024-01-01 "} {
		got, err := Parse(s, cst)
		require.NoError(t, err, s)
		assert.Equal(t, "2024-01-01", got.Format(Layout), s)
	}

	_, err := Parse("", cst)
	assert.Error(t, err)
	_, err = Parse("not a date", cst)
	assert.Error(t, err)
}

type navRow struct {
	date string
	nav  float64
}

func rowDate(r navRow) (time.Time, bool) {
	t, err := Parse(r.date, cst)
	return t, err == nil
}

func TestPick_ExactMatch(t *testing.T) {
	rows := []navRow{{"2024-01-03", 1.0}, {"2024-01-04", 1.1}, {"2024-01-05", 1.2}}

	got, fallback, err := Pick(rows, day("2024-01-04"), rowDate)
	require.NoError(t, err)
	assert.False(t, fallback)
	assert.Equal(t, 1.1, got.nav)
}

// 找不到目标日期时取最新一条，不依赖上游排序
func TestPick_FallbackToMostRecent(t *testing.T) {
	rows := []navRow{{"2024-01-05", 1.2}, {"2024-01-04", 1.1}, {"bad", 9.9}, {"2024-01-03", 1.0}}

	got, fallback, err := Pick(rows, day("2024-01-08"), rowDate)
	require.NoError(t, err)
	assert.True(t, fallback)
	assert.Equal(t, 1.2, got.nav)
}

func TestPick_Empty(t *testing.T) {
	_, _, err := Pick([]navRow{}, day("2024-01-08"), rowDate)
	assert.ErrorIs(t, err, ErrNoRecords)

	_, _, err = Pick([]navRow{{"bad", 1}}, day("2024-01-08"), rowDate)
	assert.ErrorIs(t, err, ErrNoRecords)
}
