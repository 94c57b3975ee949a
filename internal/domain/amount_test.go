package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "zero", in: "0", want: "0"},
		{name: "zero with scale", in: "0.00", want: "0"},
		{name: "trailing zero", in: "0.10", want: "0.1"},
		{name: "negative integer", in: "-5", want: "-5"},
		{name: "high precision", in: "123.456789", want: "123.456789"},
		{name: "surrounding spaces", in: " 10.10 ", want: "10.1"},
		{name: "long fraction", in: "0.000000000000000000000000001", want: "0.000000000000000000000000001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseAmount_Malformed(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "1.2.3", "12a", "--1", "NaN", "1e3", "1E-2", "1e5000000", "-2.5e+10"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseAmount(in)
			require.Error(t, err)

			be, ok := AsBusiness(err)
			require.True(t, ok, "expected business error, got %T", err)
			assert.Equal(t, ClassValidation, be.Class)
		})
	}
}

func TestParseAmount_DigitBound(t *testing.T) {
	widest := "12345678901234567890.123456789012345678"
	a, err := ParseAmount(widest)
	require.NoError(t, err)
	assert.Equal(t, widest, a.String())

	_, err = ParseAmount("0000000012345678901234567890.123456789012345678")
	require.NoError(t, err, "leading zeros do not count")

	for _, in := range []string{
		"123456789012345678901234567890123456789",
		"0.0000000000000000000000000000000000001",
		"1" + strings.Repeat("0", 1<<20),
	} {
		_, err := ParseAmount(in)
		require.Error(t, err)
		be, ok := AsBusiness(err)
		require.True(t, ok)
		assert.Equal(t, ClassValidation, be.Class)
		assert.Equal(t, "amount exceeds 38 digits", be.Message)
	}
}

func TestParseStoredAmount(t *testing.T) {
	a, err := ParseStoredAmount("1.5E+3")
	require.NoError(t, err)
	assert.Equal(t, "1500", a.String())

	_, err = ParseStoredAmount("x")
	assert.Error(t, err)
}

func TestAmount_RoundTrip(t *testing.T) {
	for _, in := range []string{"0", "0.10", "-5", "123.456789", "-0.01", "99999999999999999999.99"} {
		a := MustParseAmount(in)
		back, err := ParseAmount(a.String())
		require.NoError(t, err)
		assert.True(t, a.Equal(back), "%s did not survive render/parse", in)
	}
}

func TestAmount_Arithmetic(t *testing.T) {
	a := MustParseAmount("0.1")
	b := MustParseAmount("0.2")

	assert.Equal(t, "0.3", a.Add(b).String())
	assert.Equal(t, "-0.1", a.Neg().String())
	assert.Equal(t, 1, a.Sign())
	assert.Equal(t, -1, a.Neg().Sign())
	assert.Equal(t, 0, MustParseAmount("0.000").Sign())
	assert.True(t, MustParseAmount("-0").IsZero())
	assert.True(t, a.Neg().IsNegative())
	assert.Equal(t, -1, a.Cmp(b))
}

func TestAmount_SumIsExact(t *testing.T) {
	sum := Amount{}
	for i := 0; i < 1000; i++ {
		sum = sum.Add(MustParseAmount("0.01"))
	}
	assert.Equal(t, "10", sum.String())
}

func TestAmount_Normalize(t *testing.T) {
	a := MustParseAmount("5.1000")
	n := a.Normalize()

	assert.True(t, a.Equal(n))
	assert.Equal(t, "5.1", n.String())
	assert.Equal(t, int32(-1), n.Decimal().Exponent())
	assert.Equal(t, "5.1000", a.Decimal().StringFixed(4))
}

func TestAmount_JSON(t *testing.T) {
	var payload struct {
		Amount Amount `json:"amount"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"amount": 10.10}`), &payload))
	assert.Equal(t, "10.1", payload.Amount.String())

	require.NoError(t, json.Unmarshal([]byte(`{"amount": "-5.00"}`), &payload))
	assert.Equal(t, "-5", payload.Amount.String())

	out, err := json.Marshal(struct {
		Balance Amount `json:"balance"`
	}{Balance: MustParseAmount("5.10")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance": 5.1}`, string(out))
}

func TestAmount_JSONMalformed(t *testing.T) {
	var payload struct {
		Amount Amount `json:"amount"`
	}

	for _, body := range []string{`{"amount": "ten"}`, `{"amount": 1e5000000}`, `{"amount": "1e9"}`} {
		err := json.Unmarshal([]byte(body), &payload)
		require.Error(t, err, body)

		be, ok := AsBusiness(err)
		require.True(t, ok, body)
		assert.Equal(t, ClassValidation, be.Class)
	}
}
