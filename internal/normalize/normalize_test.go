package normalize

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func ptr(f float64) *float64 { return &f }

func TestNumber_Formats(t *testing.T) {
	cases := []struct {
		name string
		raw  any
		want float64
	}{
		{"percent", "12.5%", 12.5},
		{"negative percent", " -0.36% ", -0.36},
		{"yi suffix", "3.21亿", 3.21},
		{"negative yi", "-15.8亿", -15.8},
		{"plain", "7.0", 7.0},
		{"signed", "+0.49", 0.49},
		{"float", 1.234, 1.234},
		{"float32", float32(2.5), 2.5},
		{"int", 42, 42},
		{"json number", json.Number("1.5"), 1.5},
		{"gjson", gjson.Parse(`{"f62":-123456789.0}`).Get("f62"), -123456789},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Number(tc.raw, nil)
			require.NotNil(t, got)
			assert.InDelta(t, tc.want, *got, 1e-9)
		})
	}
}

func TestNumber_Sentinels(t *testing.T) {
	def := ptr(-1)
	for _, raw := range []any{nil, "-", "", "  ", "None", "none", "NONE", "null", "Null", "NaN", "nan", "NAN", "--", math.NaN(), (*float64)(nil)} {
		assert.Equal(t, def, Number(raw, def), "raw=%#v", raw)
		assert.Nil(t, Number(raw, nil), "raw=%#v", raw)
	}
}

func TestNumber_ParseFailure(t *testing.T) {
	def := ptr(0)
	assert.Equal(t, def, Number("abc", def))
	assert.Equal(t, def, Number("12.5%%", def))
	assert.Equal(t, def, Number("亿", def))
	assert.Equal(t, def, Number(true, def))
	assert.Equal(t, def, Number(map[string]int{"a": 1}, def))
	assert.Equal(t, def, Number(gjson.Parse(`{"a":{"b":1}}`).Get("a"), def))
	assert.Equal(t, def, Number(gjson.Parse(`{}`).Get("missing"), def))
}

func TestNumber_NonFinite(t *testing.T) {
	def := ptr(0)
	for _, raw := range []string{"inf", "+Inf", "-Infinity", "Infinity%", "inf亿"} {
		assert.Equal(t, def, Number(raw, def), raw)
	}
	assert.Equal(t, def, Number(math.Inf(1), def))
	assert.Equal(t, def, Number(float32(math.Inf(-1)), def))
	_, ok := Float("1e400")
	assert.False(t, ok)
}

func TestNumber_Idempotent(t *testing.T) {
	inputs := []any{"12.5%", "3.21亿", "7.0", "abc", "-", nil, 1.5, "NaN", " 0.49% "}
	for _, def := range []*float64{nil, ptr(99)} {
		for _, raw := range inputs {
			once := Number(raw, def)
			twice := Number(once, def)
			if once == nil {
				assert.Nil(t, twice, "raw=%#v", raw)
				continue
			}
			require.NotNil(t, twice, "raw=%#v", raw)
			assert.Equal(t, *once, *twice, "raw=%#v", raw)
		}
	}
}

func TestFloatOr(t *testing.T) {
	assert.Equal(t, 1.24, FloatOr("1.240", 0))
	assert.Equal(t, 5.0, FloatOr("x", 5))
	_, ok := Float("null")
	assert.False(t, ok)
}

func TestString(t *testing.T) {
	assert.Equal(t, "华夏成长", String("  华夏成长 ", ""))
	assert.Equal(t, "1.24", String(1.24, ""))
	assert.Equal(t, "005827", String(json.Number("005827"), ""))
	assert.Equal(t, "x", String(gjson.Parse(`{"n":" x "}`).Get("n"), ""))

	for _, raw := range []any{nil, "-", "", "None", "NULL", "nan", "NaN", math.NaN(), float32(math.NaN())} {
		assert.Equal(t, "N/A", String(raw, "N/A"), "raw=%#v", raw)
	}
}

func TestString_Idempotent(t *testing.T) {
	for _, raw := range []any{" a ", "-", nil, 3.5, "null"} {
		for _, def := range []string{"", "Unknown"} {
			once := String(raw, def)
			assert.Equal(t, once, String(once, def), "raw=%#v def=%q", raw, def)
		}
	}
}
