package postgres

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// numericToDecimal parses a NUMERIC column read back as text.
func numericToDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty numeric string")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return d.Round(2), nil
}

func decimalToNumeric(d decimal.Decimal) string {
	return d.StringFixed(2)
}
