// Package market 按配置的 {市场键 -> 标签, 兜底模式} 映射在资金流表格中定位市场行。
package market

import (
	"fmt"
	"regexp"

	"fund_api/internal/apperr"
	"fund_api/internal/config"
	"fund_api/internal/normalize"
	"fund_api/internal/table"
)

// Match 命中方式
type Match int

const (
	MatchNone Match = iota
	MatchExact
	MatchFuzzy
)

func (m Match) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// Mapping 单个市场的匹配规则
type Mapping struct {
	Key     string
	Label   string
	Pattern *regexp.Regexp
}

// Resolver 市场行定位器
type Resolver struct {
	mappings map[string]Mapping
	keys     []string
}

// NewResolver 由配置创建定位器
func NewResolver(cfg []config.MarketMapping) (*Resolver, error) {
	r := &Resolver{mappings: make(map[string]Mapping, len(cfg))}
	for _, m := range cfg {
		if _, dup := r.mappings[m.Key]; dup {
			return nil, fmt.Errorf("市场映射重复: %s", m.Key)
		}
		mapping := Mapping{Key: m.Key, Label: m.Label}
		if m.Pattern != "" {
			re, err := regexp.Compile(m.Pattern)
			if err != nil {
				return nil, fmt.Errorf("市场 %s 的匹配模式无效: %w", m.Key, err)
			}
			mapping.Pattern = re
		}
		r.mappings[m.Key] = mapping
		r.keys = append(r.keys, m.Key)
	}
	return r, nil
}

// Keys 按配置顺序返回所有市场键
func (r *Resolver) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Lookup 查找市场映射
func (r *Resolver) Lookup(key string) (Mapping, bool) {
	m, ok := r.mappings[key]
	return m, ok
}

// Resolve 在 column 列中定位市场行。
// 先精确匹配标签；精确匹配无结果时才用兜底模式做包含匹配，取第一条命中行。
func (r *Resolver) Resolve(t *table.Table, column, key string) (table.Row, Match, error) {
	m, ok := r.mappings[key]
	if !ok {
		return nil, MatchNone, apperr.Validation(fmt.Sprintf("unsupported market: %s", key))
	}
	if t.Empty() {
		return nil, MatchNone, apperr.NotFound(fmt.Sprintf("market %s not found", key))
	}

	for _, row := range t.Rows {
		if normalize.String(row.Get(column), "") == m.Label {
			return row, MatchExact, nil
		}
	}

	if m.Pattern != nil {
		for _, row := range t.Rows {
			label := normalize.String(row.Get(column), "")
			if label != "" && m.Pattern.MatchString(label) {
				return row, MatchFuzzy, nil
			}
		}
	}

	return nil, MatchNone, apperr.NotFound(fmt.Sprintf("market %s not found", key))
}
