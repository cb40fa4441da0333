package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"

	"github.com/c360/mqtt2influxdb/errors"
)

func mustParse(t *testing.T, s string) *fastjson.Value {
	t.Helper()
	v, err := fastjson.Parse(s)
	require.NoError(t, err)
	return v
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Value
	}{
		{"integer literal", `5`, FloatValue(5)},
		{"fractional literal", `5.0`, FloatValue(5)},
		{"negative exponent", `-1.5e2`, FloatValue(-150)},
		{"numeric string stays string", `"5"`, StringValue("5")},
		{"true", `true`, BoolValue(true)},
		{"false", `false`, BoolValue(false)},
		{"empty string", `""`, StringValue("")},
		{"array", `[1, 2, 3]`, StringValue("[1,2,3]")},
		{"object keys sorted", `{"b": 1, "a": [true, null]}`, StringValue(`{"a":[true,null],"b":1}`)},
		{"no html escaping", `{"x": "<&>"}`, StringValue(`{"x":"<&>"}`)},
		{"number literal kept", `[1.50, 1e3]`, StringValue("[1.50,1e3]")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(mustParse(t, tt.json))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_Null(t *testing.T) {
	_, err := Coerce(mustParse(t, `null`))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnsupportedValue)
	assert.True(t, errors.IsInvalid(err))
}

func TestCoerce_NonFiniteNumber(t *testing.T) {
	for _, lit := range []string{`1e400`, `-1e400`} {
		_, err := Coerce(mustParse(t, lit))
		require.Error(t, err, lit)
		assert.ErrorIs(t, err, errors.ErrUnsupportedValue, lit)
	}

	// Inside a container the literal is kept as text
	got, err := Coerce(mustParse(t, `[1e400]`))
	require.NoError(t, err)
	assert.Equal(t, StringValue("[1e400]"), got)
}

func TestCanonicalJSON_RoundTrip(t *testing.T) {
	text, err := CanonicalJSON(mustParse(t, `[ 1, 2, 3 ]`))
	require.NoError(t, err)

	reparsed := mustParse(t, text)
	arr, err := reparsed.Array()
	require.NoError(t, err)
	require.Len(t, arr, 3)
	for i, v := range arr {
		assert.Equal(t, i+1, v.GetInt())
	}
}

func TestValue_Accessors(t *testing.T) {
	f, ok := FloatValue(21.5).Float()
	assert.True(t, ok)
	assert.Equal(t, 21.5, f)

	_, ok = StringValue("x").Float()
	assert.False(t, ok)

	b, ok := BoolValue(true).Bool()
	assert.True(t, ok)
	assert.True(t, b)

	s, ok := StringValue("open").Str()
	assert.True(t, ok)
	assert.Equal(t, "open", s)

	assert.Equal(t, "21.5", FloatValue(21.5).String())
	assert.Equal(t, "100", FloatValue(100).String())
	assert.Equal(t, "true", BoolValue(true).String())
	assert.Equal(t, KindString, StringValue("").Kind())
}

func TestValue_MarshalJSON(t *testing.T) {
	for v, want := range map[Value]string{
		FloatValue(5):     `5`,
		BoolValue(false):  `false`,
		StringValue("hi"): `"hi"`,
	} {
		got, err := v.MarshalJSON()
		require.NoError(t, err)
		assert.JSONEq(t, want, string(got))
	}
}
