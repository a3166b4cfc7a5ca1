package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumn(t *testing.T) {
	tb := New("净值日期", "单位净值(元)", "累计净值", "日增长率")

	col, ok := tb.Column("累计净值")
	assert.True(t, ok)
	assert.Equal(t, "累计净值", col)

	// 改名后的列按包含关系找到
	col, ok = tb.Column("单位净值", "DWJZ")
	assert.True(t, ok)
	assert.Equal(t, "单位净值(元)", col)

	// 精确匹配优先于包含匹配
	tb2 := New("净值", "单位净值")
	col, ok = tb2.Column("单位净值", "净值")
	assert.True(t, ok)
	assert.Equal(t, "单位净值", col)

	_, ok = tb.Column("申购状态")
	assert.False(t, ok)
	_, ok = tb.Column("")
	assert.False(t, ok)
}

func TestRows(t *testing.T) {
	var nilTable *Table
	assert.True(t, nilTable.Empty())

	tb := New("名称", "f62")
	assert.True(t, tb.Empty())
	tb.Append(Row{"名称": "上证指数", "f62": "-"})
	assert.Equal(t, 1, tb.Len())
	assert.Equal(t, "-", tb.Rows[0].Get("f62"))
	assert.Nil(t, tb.Rows[0].Get(""))
	assert.Nil(t, tb.Rows[0].Get("missing"))
}
