// Package money provides fixed-point USD amounts in cents. Alert
// threshold comparisons go through cents so two prices that render the
// same never compare differently due to float noise.
package money

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cents is a USD amount in hundredths of a dollar.
type Cents int64

// FromFloat converts a dollar amount to Cents, rounding half away from zero.
func FromFloat(dollars float64) Cents {
	return Cents(math.Round(dollars * 100))
}

// Parse converts a decimal string like "231.50" to Cents, rounding half
// away from zero beyond two decimal places.
func Parse(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}

	dollars, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	var cents int64
	switch len(frac) {
	case 0:
	case 1:
		d, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
		cents = d * 10
	default:
		d, err := strconv.ParseInt(frac[:2], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
		cents = d
		// Round half away from zero on the third decimal so Parse and
		// FromFloat agree on the same amount
		if frac[2] >= '5' && frac[2] <= '9' {
			cents++
		}
	}

	total := dollars*100 + cents
	if neg {
		total = -total
	}
	return Cents(total), nil
}

// Float64 returns the amount in dollars.
func (c Cents) Float64() float64 {
	return float64(c) / 100
}

// String renders the amount as a plain decimal like "231.50".
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
