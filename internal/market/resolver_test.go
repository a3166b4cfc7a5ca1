package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fund_api/internal/apperr"
	"fund_api/internal/config"
	"fund_api/internal/table"
)

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver([]config.MarketMapping{
		{Key: "sh", Label: "沪市", Pattern: "沪|上证"},
		{Key: "sz", Label: "深市", Pattern: "深"},
		{Key: "all", Label: "沪深两市", Pattern: "两市"},
	})
	require.NoError(t, err)
	return r
}

func flowTable(labels ...string) *table.Table {
	tb := table.New("名称", "value")
	for i, l := range labels {
		tb.Append(table.Row{"名称": l, "value": i})
	}
	return tb
}

// 精确匹配与模糊匹配同时可行时，精确匹配优先
func TestResolve_ExactBeatsFuzzy(t *testing.T) {
	r := newResolver(t)
	tb := flowTable("上证指数", "沪市")

	row, match, err := r.Resolve(tb, "名称", "sh")
	require.NoError(t, err)
	assert.Equal(t, MatchExact, match)
	assert.Equal(t, 1, row["value"])
}

func TestResolve_FuzzyWhenLabelRenamed(t *testing.T) {
	r := newResolver(t)
	tb := flowTable("上证指数", "深证成指")

	row, match, err := r.Resolve(tb, "名称", "sz")
	require.NoError(t, err)
	assert.Equal(t, MatchFuzzy, match)
	assert.Equal(t, "fuzzy", match.String())
	assert.Equal(t, "深证成指", row["名称"])
}

func TestResolve_FuzzyTakesFirstMatch(t *testing.T) {
	r := newResolver(t)
	tb := flowTable("沪深两市合计", "沪股通", "上证指数")

	row, match, err := r.Resolve(tb, "名称", "sh")
	require.NoError(t, err)
	assert.Equal(t, MatchFuzzy, match)
	assert.Equal(t, 0, row["value"])
}

func TestResolve_NotFound(t *testing.T) {
	r := newResolver(t)

	_, match, err := r.Resolve(flowTable("创业板指"), "名称", "all")
	require.Error(t, err)
	assert.Equal(t, MatchNone, match)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, _, err = r.Resolve(table.New("名称"), "名称", "sh")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestResolve_UnknownMarket(t *testing.T) {
	r := newResolver(t)

	_, _, err := r.Resolve(flowTable("沪市"), "名称", "hk")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestResolve_NoPatternMeansExactOnly(t *testing.T) {
	r, err := NewResolver([]config.MarketMapping{{Key: "cyb", Label: "创业板"}})
	require.NoError(t, err)

	_, _, err = r.Resolve(flowTable("创业板指"), "名称", "cyb")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestNewResolver_Invalid(t *testing.T) {
	_, err := NewResolver([]config.MarketMapping{{Key: "sh", Label: "沪市", Pattern: "(["}})
	assert.Error(t, err)

	_, err = NewResolver([]config.MarketMapping{{Key: "sh", Label: "a"}, {Key: "sh", Label: "b"}})
	assert.Error(t, err)
}

func TestKeysAndLookup(t *testing.T) {
	r := newResolver(t)
	assert.Equal(t, []string{"sh", "sz", "all"}, r.Keys())

	m, ok := r.Lookup("all")
	assert.True(t, ok)
	assert.Equal(t, "沪深两市", m.Label)
	_, ok = r.Lookup("hk")
	assert.False(t, ok)
}
