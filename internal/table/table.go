// Package table 保存上游返回的表格数据，字段值保持原始形态，交由 normalize 处理。
package table

import "strings"

// Row 一行数据，键为列名
type Row map[string]any

// Table 列名 + 行
type Table struct {
	Columns []string
	Rows    []Row
}

// New 创建表格
func New(columns ...string) *Table {
	return &Table{Columns: columns}
}

// Append 追加一行
func (t *Table) Append(row Row) {
	t.Rows = append(t.Rows, row)
}

// Len 行数
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty 是否没有数据
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// HasColumn 是否存在完全同名的列
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Column 按别名查找列：先按顺序精确匹配，再查找包含别名的列（上游可能给列名加后缀，如“单位净值(元)”）
func (t *Table) Column(aliases ...string) (string, bool) {
	for _, a := range aliases {
		if t.HasColumn(a) {
			return a, true
		}
	}
	for _, a := range aliases {
		if a == "" {
			continue
		}
		for _, c := range t.Columns {
			if strings.Contains(c, a) {
				return c, true
			}
		}
	}
	return "", false
}

// Get 取行中某列的原始值，列名为空时返回 nil
func (r Row) Get(column string) any {
	if column == "" {
		return nil
	}
	return r[column]
}
