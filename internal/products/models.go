package products

import (
	"time"

	"github.com/shopspring/decimal"
)

type StockStatus string

const (
	StockInStock    StockStatus = "in_stock"
	StockOutOfStock StockStatus = "out_of_stock"
	StockContact    StockStatus = "contact"
	StockUnknown    StockStatus = "unknown"
)

// ParseStockStatus maps anything outside the known set to StockUnknown.
func ParseStockStatus(s string) StockStatus {
	switch StockStatus(s) {
	case StockInStock, StockOutOfStock, StockContact:
		return StockStatus(s)
	}
	return StockUnknown
}

// TrendStatus compares a competitor's latest price to the one before it.
type TrendStatus string

const (
	TrendStable    TrendStatus = "stable"
	TrendIncreased TrendStatus = "increased"
	TrendDecreased TrendStatus = "decreased"
	TrendUnknown   TrendStatus = "unknown"
)

type Strategy string

const (
	StrategyManual        Strategy = "manual"
	StrategyMatchLowest   Strategy = "match_lowest"
	StrategyBeatLowest5k  Strategy = "beat_lowest_5k"
	StrategyBeatLowest10k Strategy = "beat_lowest_10k"
)

func (s Strategy) Valid() bool {
	switch s {
	case StrategyManual, StrategyMatchLowest, StrategyBeatLowest5k, StrategyBeatLowest10k:
		return true
	}
	return false
}

type Category string

const (
	CategoryLaptop      Category = "Laptop"
	CategoryDesktop     Category = "PC Desktop"
	CategoryMonitor     Category = "Màn hình"
	CategoryComponents  Category = "Linh kiện PC"
	CategoryPeripherals Category = "Chuột & Bàn phím"
	CategoryAudio       Category = "Tai nghe & Loa"
	CategoryNetworking  Category = "Thiết bị mạng"
	CategoryOther       Category = "Khác"
)

// Categories lists the fixed category set in display order. CategoryOther is the catch-all.
var Categories = []Category{
	CategoryLaptop,
	CategoryDesktop,
	CategoryMonitor,
	CategoryComponents,
	CategoryPeripherals,
	CategoryAudio,
	CategoryNetworking,
	CategoryOther,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory returns the matching category or CategoryOther.
func ParseCategory(s string) Category {
	if c := Category(s); c.Valid() {
		return c
	}
	return CategoryOther
}

const (
	MaxCompetitors = 5
	MaxHistory     = 30
)

type PricePoint struct {
	Date  time.Time       `json:"date"`
	Price decimal.Decimal `json:"price"`
}

type Competitor struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	URL          string              `json:"url"`
	CurrentPrice decimal.NullDecimal `json:"current_price"`
	StockStatus  StockStatus         `json:"stock_status"`
	Promotion    string              `json:"promotion,omitempty"`
	LastUpdated  *time.Time          `json:"last_updated"`
	PriceHistory []PricePoint        `json:"price_history"`
	Status       TrendStatus         `json:"status"`
	Error        string              `json:"error,omitempty"`
}

type Product struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	SKU            string              `json:"sku,omitempty"`
	MyPrice        decimal.Decimal     `json:"my_price"`
	MyPromotion    string              `json:"my_promotion,omitempty"`
	CostPrice      decimal.NullDecimal `json:"cost_price"`
	MinPrice       decimal.NullDecimal `json:"min_price"`
	Strategy       Strategy            `json:"strategy"`
	SuggestedPrice decimal.NullDecimal `json:"suggested_price"`
	Category       Category            `json:"category"`
	Competitors    []Competitor        `json:"competitors"`
	Loading        bool                `json:"loading"`
}

// CompetitorInput is one competitor row of an incoming product record.
// ID is only set by edits that address an already tracked competitor.
type CompetitorInput struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// NewProductData is an incoming product record from manual entry, bulk
// import or search import.
type NewProductData struct {
	Name        string              `json:"name"`
	SKU         string              `json:"sku"`
	MyPrice     decimal.Decimal     `json:"my_price"`
	MyPromotion string              `json:"my_promotion"`
	CostPrice   decimal.NullDecimal `json:"cost_price"`
	MinPrice    decimal.NullDecimal `json:"min_price"`
	Strategy    Strategy            `json:"strategy"`
	Category    Category            `json:"category"`
	Competitors []CompetitorInput   `json:"competitors"`
}

// Clone returns a deep copy so callers never share competitor slices with the store.
func (p Product) Clone() Product {
	out := p
	if p.Competitors != nil {
		out.Competitors = make([]Competitor, len(p.Competitors))
		for i, c := range p.Competitors {
			out.Competitors[i] = c.clone()
		}
	}
	return out
}

func (c Competitor) clone() Competitor {
	out := c
	if c.PriceHistory != nil {
		out.PriceHistory = make([]PricePoint, len(c.PriceHistory))
		copy(out.PriceHistory, c.PriceHistory)
	}
	if c.LastUpdated != nil {
		t := *c.LastUpdated
		out.LastUpdated = &t
	}
	return out
}

// positive reports whether d holds a value greater than zero.
func positive(d decimal.NullDecimal) bool {
	return d.Valid && d.Decimal.IsPositive()
}
