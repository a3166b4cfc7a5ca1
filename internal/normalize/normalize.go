// Package normalize 将上游各种形态的字段值（百分号、“亿”后缀、占位符、NaN）
// 统一转换为 float64 或去空白的字符串。
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
)

// 上游用来表示缺失值的占位符，比较时忽略大小写
var sentinels = map[string]struct{}{
	"":     {},
	"-":    {},
	"--":   {},
	"none": {},
	"null": {},
	"nan":  {},
}

const yiMarker = "亿"

// IsMissing 判断原始值是否视为缺失
func IsMissing(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case *float64:
		return v == nil || math.IsNaN(*v)
	case *string:
		return v == nil || isSentinel(*v)
	case float64:
		return math.IsNaN(v)
	case float32:
		return math.IsNaN(float64(v))
	case string:
		return isSentinel(v)
	case json.Number:
		return isSentinel(string(v))
	case gjson.Result:
		return !v.Exists() || IsMissing(v.Value())
	}
	return false
}

func isSentinel(s string) bool {
	_, ok := sentinels[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// Float 解析数值，缺失或无法解析时 ok 为 false。
// 以 % 结尾的按百分数数值返回（不除以 100），含“亿”的去掉单位后返回原数值（不乘以 1e8）。
func Float(raw any) (float64, bool) {
	if IsMissing(raw) {
		return 0, false
	}
	switch v := raw.(type) {
	case *float64:
		return finite(*v)
	case *string:
		return Float(*v)
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case gjson.Result:
		return Float(v.Value())
	}

	s, err := cast.ToStringE(raw)
	if err != nil {
		return 0, false
	}
	s = strings.TrimSpace(s)
	switch {
	case strings.HasSuffix(s, "%"):
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	case strings.Contains(s, yiMarker):
		s = strings.TrimSpace(strings.ReplaceAll(s, yiMarker, ""))
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return finite(f)
}

// finite NaN 与 ±Inf 无法编码为 JSON，按解析失败处理
func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Number 解析数值，缺失或解析失败时返回 def。结果可再次传入 Number，值不变。
func Number(raw any, def *float64) *float64 {
	f, ok := Float(raw)
	if !ok {
		return def
	}
	return &f
}

// FloatOr 解析数值，失败时返回 def
func FloatOr(raw any, def float64) float64 {
	if f, ok := Float(raw); ok {
		return f
	}
	return def
}

// String 字符串化并去除首尾空白，缺失时返回 def
func String(raw any, def string) string {
	if IsMissing(raw) {
		return def
	}
	switch v := raw.(type) {
	case *string:
		return String(*v, def)
	case *float64:
		return String(*v, def)
	case gjson.Result:
		return String(v.Value(), def)
	}

	s, err := cast.ToStringE(raw)
	if err != nil {
		return def
	}
	s = strings.TrimSpace(s)
	if isSentinel(s) {
		return def
	}
	return s
}
