// Package money implements exact decimal arithmetic for the amounts
// that flow through the budget ledger and proposals. Floating point is
// never used for money: every amount is parsed into a big.Rat and
// compared/added exactly.
package money

import (
	"fmt"
	"math/big"
	"strings"
)

// Decimal is an arbitrary-precision, exact decimal amount.
type Decimal struct {
	r *big.Rat
}

// Zero is the additive identity.
func Zero() Decimal { return Decimal{r: new(big.Rat)} }

// Parse converts a decimal string (e.g. "250", "250.5") into a Decimal.
func Parse(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Decimal{}, fmt.Errorf("empty amount")
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Decimal{}, fmt.Errorf("invalid decimal amount %q", s)
	}
	return Decimal{r: r}, nil
}

// MustParse parses s and panics on failure; only used for constants in
// tests and default configuration.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Decimal) rat() *big.Rat {
	if d.r == nil {
		return new(big.Rat)
	}
	return d.r
}

// Add returns d + other.
func (d Decimal) Add(other Decimal) Decimal {
	return Decimal{r: new(big.Rat).Add(d.rat(), other.rat())}
}

// Sub returns d - other.
func (d Decimal) Sub(other Decimal) Decimal {
	return Decimal{r: new(big.Rat).Sub(d.rat(), other.rat())}
}

// Cmp returns -1, 0, or 1 as d is less than, equal to, or greater than
// other.
func (d Decimal) Cmp(other Decimal) int {
	return d.rat().Cmp(other.rat())
}

// IsNegative reports whether d < 0.
func (d Decimal) IsNegative() bool {
	return d.rat().Sign() < 0
}

// IsPositive reports whether d > 0.
func (d Decimal) IsPositive() bool {
	return d.rat().Sign() > 0
}

// String renders the decimal using the fewest digits that round-trip,
// up to 18 fractional digits, trimming trailing zeros.
func (d Decimal) String() string {
	text := d.rat().FloatString(18)
	if strings.Contains(text, ".") {
		text = strings.TrimRight(text, "0")
		text = strings.TrimRight(text, ".")
	}
	if text == "" || text == "-" {
		text = "0"
	}
	return text
}
