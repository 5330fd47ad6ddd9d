package models

import (
	// Go Internal Packages
	"encoding/json"
	"fmt"
	"strings"

	// External Packages
	"github.com/shopspring/decimal"
)

// ParseAmount accepts the JSON representations a POS sends for an
// amount (string, number) and returns the exact decimal value.
func ParseAmount(v any) (decimal.Decimal, error) {
	switch a := v.(type) {
	case string:
		s := strings.TrimSpace(a)
		if s == "" {
			return decimal.Zero, fmt.Errorf("amount is empty")
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("amount %q is not a number", a)
		}
		return d, nil
	case json.Number:
		d, err := decimal.NewFromString(a.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("amount %q is not a number", a.String())
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(a), nil
	case int:
		return decimal.NewFromInt(int64(a)), nil
	case int64:
		return decimal.NewFromInt(a), nil
	case decimal.Decimal:
		return a, nil
	case nil:
		return decimal.Zero, fmt.Errorf("amount is missing")
	}
	return decimal.Zero, fmt.Errorf("amount has unsupported type %T", v)
}

// FormatAmount renders d with exactly two fraction digits, rounding
// half away from zero.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// NormalizeAmount parses v and reformats it as the canonical two
// decimal string the terminal protocol carries.
func NormalizeAmount(v any) (string, error) {
	d, err := ParseAmount(v)
	if err != nil {
		return "", err
	}
	return FormatAmount(d), nil
}

// SumAmounts adds canonical amount strings, treating empty as zero.
func SumAmounts(values ...string) string {
	total := decimal.Zero
	for _, v := range values {
		if v == "" {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			continue
		}
		total = total.Add(d)
	}
	return FormatAmount(total)
}

// AmountOrZero substitutes the canonical zero for an absent amount.
func AmountOrZero(s string) string {
	if s == "" {
		return "0.00"
	}
	return s
}
