package products

import (
	"github.com/shopspring/decimal"
)

var strategyOffsets = map[Strategy]decimal.Decimal{
	StrategyMatchLowest:   decimal.Zero,
	StrategyBeatLowest5k:  decimal.NewFromInt(5000),
	StrategyBeatLowest10k: decimal.NewFromInt(10000),
}

// SuggestPrice computes the repricing suggestion for p against competitors.
// The second result is false when no suggestion applies: manual strategy, or
// no competitor in stock with a known price. The suggestion never falls below
// the larger of the product's min price and cost price.
func SuggestPrice(p Product, competitors []Competitor) (decimal.Decimal, bool) {
	offset, ok := strategyOffsets[p.Strategy]
	if !ok {
		return decimal.Decimal{}, false
	}

	var (
		minMarket decimal.Decimal
		found     bool
	)
	for _, c := range competitors {
		if c.StockStatus != StockInStock || !c.CurrentPrice.Valid {
			continue
		}
		if !found || c.CurrentPrice.Decimal.LessThan(minMarket) {
			minMarket = c.CurrentPrice.Decimal
			found = true
		}
	}
	if !found {
		return decimal.Decimal{}, false
	}

	return decimal.Max(minMarket.Sub(offset), Floor(p)), true
}

// Floor is the guardrail price: the larger of min price and cost price,
// ignoring unset or non-positive values, or zero when neither is set.
func Floor(p Product) decimal.Decimal {
	floor := decimal.Zero
	if positive(p.MinPrice) && p.MinPrice.Decimal.GreaterThan(floor) {
		floor = p.MinPrice.Decimal
	}
	if positive(p.CostPrice) && p.CostPrice.Decimal.GreaterThan(floor) {
		floor = p.CostPrice.Decimal
	}
	return floor
}

// reprice recomputes the derived suggested price in place.
func reprice(p *Product) {
	if v, ok := SuggestPrice(*p, p.Competitors); ok {
		p.SuggestedPrice = decimal.NewNullDecimal(v)
		return
	}
	p.SuggestedPrice = decimal.NullDecimal{}
}
