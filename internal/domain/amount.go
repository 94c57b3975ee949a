package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is an exact signed decimal used for balances and adjustments.
// The zero value is 0.
type Amount struct {
	value decimal.Decimal
}

// MaxAmountDigits bounds the digits accepted from callers. It matches the
// precision of a DynamoDB number.
const MaxAmountDigits = 38

// ParseAmount parses a plain decimal string such as "10.10", "-5" or
// "123.456789". Exponent notation and more than MaxAmountDigits digits are
// rejected, as is anything else malformed, with a validation error.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, Validation("amount is required")
	}
	if strings.ContainsAny(s, "eE") {
		return Amount{}, Validation(fmt.Sprintf("invalid amount %q", s))
	}
	if countDigits(s) > MaxAmountDigits {
		return Amount{}, Validation(fmt.Sprintf("amount exceeds %d digits", MaxAmountDigits))
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, Validation(fmt.Sprintf("invalid amount %q", s))
	}
	return Amount{value: d}, nil
}

// ParseStoredAmount parses a number read back from a store. Stores may
// render numbers in exponent form, so only syntax is checked.
func ParseStoredAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, err
	}
	return Amount{value: d}, nil
}

// countDigits counts the digits of s, ignoring leading zeros of the integer
// part.
func countDigits(s string) int {
	n := 0
	leading := true
	for _, r := range s {
		switch {
		case r == '.':
			leading = false
		case r >= '0' && r <= '9':
			if leading && r == '0' {
				continue
			}
			leading = false
			n++
		}
	}
	return n
}

// MustParseAmount is like ParseAmount but panics on malformed input.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String renders the amount in canonical form, without insignificant
// trailing fractional zeros.
func (a Amount) String() string {
	return a.value.String()
}

func (a Amount) Decimal() decimal.Decimal {
	return a.value
}

func (a Amount) Add(b Amount) Amount {
	return Amount{value: a.value.Add(b.value)}
}

func (a Amount) Neg() Amount {
	return Amount{value: a.value.Neg()}
}

// Sign returns -1, 0 or +1.
func (a Amount) Sign() int {
	return a.value.Sign()
}

func (a Amount) IsNegative() bool {
	return a.value.IsNegative()
}

func (a Amount) IsZero() bool {
	return a.value.IsZero()
}

func (a Amount) Cmp(b Amount) int {
	return a.value.Cmp(b.value)
}

// Equal compares numeric value only, so 10.10 equals 10.1.
func (a Amount) Equal(b Amount) bool {
	return a.value.Equal(b.value)
}

// Normalize strips insignificant trailing fractional zeros. The numeric
// value is unchanged.
func (a Amount) Normalize() Amount {
	return Amount{value: decimal.RequireFromString(a.value.String())}
}

// MarshalJSON writes the amount as a JSON number in canonical form.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or a JSON string. null is a no-op.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return Validation("invalid amount")
		}
		raw = s
	}
	parsed, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
