package oracle

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/valeevte/pricewatch/internal/config"
	"github.com/valeevte/pricewatch/internal/products"
)

// SiteSearcher queries one retailer's search page and reads the result grid.
type SiteSearcher struct {
	fetch    *fetcher
	base     *url.URL
	path     string
	cfg      config.SearchConfig
	minPrice decimal.Decimal
	logger   *zap.Logger
}

var _ products.Searcher = (*SiteSearcher)(nil)

func NewSiteSearcher(cfg config.SearchConfig, oracleCfg config.OracleConfig, logger *zap.Logger) (*SiteSearcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, err
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.New("oracle: search base_url must be absolute")
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 20
	}
	return &SiteSearcher{
		fetch:    newFetcher(oracleCfg.Timeout, oracleCfg.UserAgent, oracleCfg.MaxRetries, oracleCfg.InitialBackoff, logger),
		base:     base,
		path:     cfg.Path,
		cfg:      cfg,
		minPrice: decimal.NewFromInt(oracleCfg.MinPrice),
		logger:   logger,
	}, nil
}

func (s *SiteSearcher) Search(ctx context.Context, query string) ([]products.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is required")
	}
	endpoint := s.base.ResolveReference(&url.URL{Path: s.path, RawQuery: url.Values{"q": {query}}.Encode()})

	doc, err := s.fetch.document(ctx, endpoint.String())
	if err != nil {
		return nil, err
	}

	results := []products.SearchResult{}
	doc.Find(s.cfg.ItemSelector).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		name := strings.Join(strings.Fields(item.Find(s.cfg.NameSelector).First().Text()), " ")
		if name == "" {
			return true
		}
		price, ok := s.firstPrice(item.Find(s.cfg.PriceSelector).First().Text())
		if !ok {
			return true
		}
		link := item.Find(s.cfg.LinkSelector).First().AttrOr("href", "")
		if ref, err := url.Parse(link); err == nil && link != "" {
			link = s.base.ResolveReference(ref).String()
		}
		results = append(results, products.SearchResult{
			Name:     name,
			Price:    price,
			URL:      link,
			SKU:      strings.TrimSpace(item.Find(s.cfg.SKUSelector).First().Text()),
			Category: strings.TrimSpace(item.AttrOr("data-category", "")),
		})
		return len(results) < s.cfg.Limit
	})
	s.logger.Debug("search finished", zap.String("query", query), zap.Int("results", len(results)))
	return results, nil
}

func (s *SiteSearcher) firstPrice(text string) (decimal.Decimal, bool) {
	if isInstallment(text) {
		return decimal.Decimal{}, false
	}
	for _, d := range ParsePrices(text) {
		if !d.LessThan(s.minPrice) && d.IsPositive() {
			return d, true
		}
	}
	return decimal.Decimal{}, false
}
