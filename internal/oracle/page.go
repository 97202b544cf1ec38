package oracle

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/valeevte/pricewatch/internal/config"
	"github.com/valeevte/pricewatch/internal/products"
)

// PageOracle reads the quote straight from the competitor's product page.
type PageOracle struct {
	fetch              *fetcher
	priceSelectors     []string
	stockSelectors     []string
	promotionSelectors []string
	minPrice           decimal.Decimal
	logger             *zap.Logger
}

var _ products.QuoteOracle = (*PageOracle)(nil)

func NewPageOracle(cfg config.OracleConfig, logger *zap.Logger) *PageOracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageOracle{
		fetch:              newFetcher(cfg.Timeout, cfg.UserAgent, cfg.MaxRetries, cfg.InitialBackoff, logger),
		priceSelectors:     cfg.PriceSelectors,
		stockSelectors:     cfg.StockSelectors,
		promotionSelectors: cfg.PromotionSelectors,
		minPrice:           decimal.NewFromInt(cfg.MinPrice),
		logger:             logger,
	}
}

// FetchQuote returns nil without error when the page has no usable price.
func (o *PageOracle) FetchQuote(ctx context.Context, productName, url, competitorName string) (*products.Quote, error) {
	doc, err := o.fetch.document(ctx, url)
	if err != nil {
		return nil, err
	}

	price, ok := o.lowestPrice(doc)
	if !ok {
		o.logger.Debug("no price on page",
			zap.String("product", productName),
			zap.String("competitor", competitorName),
			zap.String("url", url))
		return nil, nil
	}
	return &products.Quote{
		Price:       price,
		StockStatus: o.stock(doc),
		Promotion:   o.promotion(doc),
	}, nil
}

// lowestPrice picks the smallest plausible amount across the price
// selectors. Machine-readable content attributes are preferred to text.
func (o *PageOracle) lowestPrice(doc *goquery.Document) (decimal.Decimal, bool) {
	var (
		best  decimal.Decimal
		found bool
	)
	consider := func(d decimal.Decimal) {
		if d.LessThan(o.minPrice) || !d.IsPositive() {
			return
		}
		if !found || d.LessThan(best) {
			best, found = d, true
		}
	}
	for _, sel := range o.priceSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if content, ok := s.Attr("content"); ok {
				if d, err := decimal.NewFromString(strings.TrimSpace(content)); err == nil {
					consider(d)
					return
				}
			}
			text := s.Text()
			if isInstallment(text) {
				return
			}
			for _, d := range ParsePrices(text) {
				consider(d)
			}
		})
	}
	return best, found
}

func (o *PageOracle) stock(doc *goquery.Document) products.StockStatus {
	for _, sel := range o.stockSelectors {
		status := products.StockUnknown
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			for _, v := range []string{s.AttrOr("content", ""), s.AttrOr("href", ""), s.Text()} {
				if st := ClassifyStock(v); st != products.StockUnknown {
					status = st
					return false
				}
			}
			return true
		})
		if status != products.StockUnknown {
			return status
		}
	}
	return products.StockUnknown
}

func (o *PageOracle) promotion(doc *goquery.Document) string {
	for _, sel := range o.promotionSelectors {
		text := strings.Join(strings.Fields(doc.Find(sel).First().Text()), " ")
		if text != "" {
			return text
		}
	}
	return ""
}
