// Package tradedate 推算最近交易日，并在数据中找不到该日期时降级到最新一条记录。
package tradedate

import (
	"errors"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const (
	Layout = "2006-01-02"

	maxLookback = 9
)

var ErrNoRecords = errors.New("no dated records")

// Previous 返回 now 之前最近的一个工作日（只排除周六、周日，不含节假日）
func Previous(now time.Time) time.Time {
	day := truncate(now)
	for i := 1; i <= maxLookback; i++ {
		d := day.AddDate(0, 0, -i)
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			return d
		}
	}
	return day.AddDate(0, 0, -1)
}

// PreviousString 同 Previous，按 YYYY-MM-DD 返回
func PreviousString(now time.Time) string {
	return Previous(now).Format(Layout)
}

// Parse 解析上游日期，兼容 2024-01-01、2024/01/01、20240101、2024-01-01 15:00 等格式
func Parse(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// SameDay 是否为同一自然日
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Pick 在 items 中选出日期等于 target 的记录；找不到时返回日期最新的一条，fallback 为 true。
// dateOf 返回 false 的记录会被忽略。
func Pick[T any](items []T, target time.Time, dateOf func(T) (time.Time, bool)) (item T, fallback bool, err error) {
	var (
		latest   T
		latestAt time.Time
		found    bool
	)
	for _, it := range items {
		d, ok := dateOf(it)
		if !ok {
			continue
		}
		if SameDay(d, target) {
			return it, false, nil
		}
		if !found || d.After(latestAt) {
			latest, latestAt, found = it, d, true
		}
	}
	if !found {
		var zero T
		return zero, false, ErrNoRecords
	}
	return latest, true, nil
}

func truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
