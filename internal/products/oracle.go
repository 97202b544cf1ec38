package products

import (
	"context"

	"github.com/shopspring/decimal"
)

// Quote is a price and stock snapshot of one competitor listing.
type Quote struct {
	Price       decimal.Decimal
	Promotion   string
	StockStatus StockStatus
}

// QuoteOracle looks up a competitor's current quote. Implementations own any
// retry or backoff; a nil quote, or an error, means no quote was found.
type QuoteOracle interface {
	FetchQuote(ctx context.Context, productName, url, competitorName string) (*Quote, error)
}

type SearchResult struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	URL      string          `json:"url"`
	SKU      string          `json:"sku,omitempty"`
	Category string          `json:"category,omitempty"`
}

// Searcher finds catalogue entries by free text or SKU. It only originates
// new product records and is never used by the refresh pipeline.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}
