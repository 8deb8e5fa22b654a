package database

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amounts are stored as NUMERIC and scanned as text so no precision is lost.
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid stored amount %q: %w", s, err)
	}
	return d, nil
}
