package products

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("product not found")
)

// PlaceholderName names imported rows that carry no product name.
const PlaceholderName = "Unknown Product"

// ValidateOptions tunes the checks applied to manually entered products.
type ValidateOptions struct {
	RequireCompetitor bool
}

// Normalize trims text fields, applies the strategy and category defaults,
// treats non-positive guardrails as unset and drops competitor rows that
// lack a name or URL or repeat an earlier URL.
func Normalize(in NewProductData) NewProductData {
	out := in
	out.Name = strings.TrimSpace(in.Name)
	out.SKU = strings.TrimSpace(in.SKU)
	out.MyPromotion = strings.TrimSpace(in.MyPromotion)
	if out.Strategy == "" {
		out.Strategy = StrategyManual
	}
	if out.Category == "" {
		out.Category = CategoryOther
	}
	if !positive(out.CostPrice) && !isNegative(out.CostPrice) {
		out.CostPrice = decimal.NullDecimal{}
	}
	if !positive(out.MinPrice) && !isNegative(out.MinPrice) {
		out.MinPrice = decimal.NullDecimal{}
	}

	seen := make(map[string]bool, len(in.Competitors))
	out.Competitors = make([]CompetitorInput, 0, len(in.Competitors))
	for _, row := range in.Competitors {
		row.Name = strings.TrimSpace(row.Name)
		row.URL = strings.TrimSpace(row.URL)
		if row.Name == "" || row.URL == "" || seen[row.URL] {
			continue
		}
		seen[row.URL] = true
		out.Competitors = append(out.Competitors, row)
	}
	return out
}

// Validate checks a normalized manual entry. Failures wrap ErrInvalidInput.
func Validate(in NewProductData, opts ValidateOptions) error {
	switch {
	case in.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	case in.MyPrice.IsNegative():
		return fmt.Errorf("%w: my price must not be negative", ErrInvalidInput)
	case isNegative(in.CostPrice):
		return fmt.Errorf("%w: cost price must not be negative", ErrInvalidInput)
	case isNegative(in.MinPrice):
		return fmt.Errorf("%w: min price must not be negative", ErrInvalidInput)
	case !in.Strategy.Valid():
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidInput, in.Strategy)
	case !in.Category.Valid():
		return fmt.Errorf("%w: unknown category %q", ErrInvalidInput, in.Category)
	case len(in.Competitors) > MaxCompetitors:
		return fmt.Errorf("%w: at most %d competitors", ErrInvalidInput, MaxCompetitors)
	case opts.RequireCompetitor && len(in.Competitors) == 0:
		return fmt.Errorf("%w: at least one competitor with name and url is required", ErrInvalidInput)
	}
	return nil
}

// NormalizeImport coerces an imported row instead of rejecting it: the name
// falls back to a placeholder, unknown enums to their defaults, negative
// prices to zero or unset, and extra competitors are dropped.
func NormalizeImport(in NewProductData) NewProductData {
	out := Normalize(in)
	if out.Name == "" {
		out.Name = PlaceholderName
	}
	if !out.Strategy.Valid() {
		out.Strategy = StrategyManual
	}
	out.Category = ParseCategory(string(out.Category))
	if out.MyPrice.IsNegative() {
		out.MyPrice = decimal.Zero
	}
	if isNegative(out.CostPrice) {
		out.CostPrice = decimal.NullDecimal{}
	}
	if isNegative(out.MinPrice) {
		out.MinPrice = decimal.NullDecimal{}
	}
	if len(out.Competitors) > MaxCompetitors {
		out.Competitors = out.Competitors[:MaxCompetitors]
	}
	return out
}

func isNegative(d decimal.NullDecimal) bool {
	return d.Valid && d.Decimal.IsNegative()
}
