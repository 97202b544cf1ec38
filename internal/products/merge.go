package products

import (
	"strings"
)

// NormalizeSKU returns the merge key for sku: trimmed and upper-cased.
func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

// IDFunc allocates unique ids for new products and competitors.
type IDFunc func() string

// Upsert reconciles one incoming record with set. When the normalized SKU
// matches a tracked product that product is updated in place: descriptive and
// guardrail fields are overwritten, and competitors whose URL already exists
// keep their id, price, status and history. Otherwise a new product is
// prepended. set itself is never modified.
func Upsert(set []Product, in NewProductData, newID IDFunc) ([]Product, Product, bool) {
	if key := NormalizeSKU(in.SKU); key != "" {
		for i := range set {
			if NormalizeSKU(set[i].SKU) != key {
				continue
			}
			existing := set[i]
			updated := existing.Clone()
			updated.Name = in.Name
			updated.MyPrice = in.MyPrice
			updated.MyPromotion = in.MyPromotion
			updated.CostPrice = in.CostPrice
			updated.MinPrice = in.MinPrice
			updated.Strategy = in.Strategy
			updated.Category = in.Category
			updated.Competitors = mergeCompetitors(existing.Competitors, in.Competitors, newID)
			updated.Loading = false
			reprice(&updated)

			out := make([]Product, len(set))
			copy(out, set)
			out[i] = updated
			return out, updated, false
		}
	}

	created := Product{
		ID:          newID(),
		Name:        in.Name,
		SKU:         in.SKU,
		MyPrice:     in.MyPrice,
		MyPromotion: in.MyPromotion,
		CostPrice:   in.CostPrice,
		MinPrice:    in.MinPrice,
		Strategy:    in.Strategy,
		Category:    in.Category,
		Competitors: make([]Competitor, 0, len(in.Competitors)),
	}
	for _, row := range in.Competitors {
		created.Competitors = append(created.Competitors, newCompetitor(newID(), row.Name, row.URL))
	}
	reprice(&created)

	out := make([]Product, 0, len(set)+1)
	out = append(out, created)
	out = append(out, set...)
	return out, created, true
}

// BulkUpsert folds records into set in order, so later rows can match SKUs
// introduced by earlier rows of the same batch. targets holds the resulting
// product for each record.
func BulkUpsert(set []Product, records []NewProductData, newID IDFunc) (out []Product, targets []Product, created int) {
	out = set
	targets = make([]Product, 0, len(records))
	for _, rec := range records {
		var (
			target Product
			isNew  bool
		)
		out, target, isNew = Upsert(out, rec, newID)
		targets = append(targets, target)
		if isNew {
			created++
		}
	}
	return out, targets, created
}

func mergeCompetitors(existing []Competitor, rows []CompetitorInput, newID IDFunc) []Competitor {
	merged := make([]Competitor, 0, len(rows))
	used := make(map[string]bool, len(existing))
	for _, row := range rows {
		if c, ok := findByURL(existing, row.URL); ok && !used[c.ID] {
			used[c.ID] = true
			c = c.clone()
			if name := strings.TrimSpace(row.Name); name != "" {
				c.Name = name
			}
			merged = append(merged, c)
			continue
		}
		merged = append(merged, newCompetitor(newID(), row.Name, row.URL))
	}
	return merged
}

func findByURL(list []Competitor, url string) (Competitor, bool) {
	url = strings.TrimSpace(url)
	for _, c := range list {
		if strings.TrimSpace(c.URL) == url {
			return c, true
		}
	}
	return Competitor{}, false
}

func newCompetitor(id, name, url string) Competitor {
	return Competitor{
		ID:           id,
		Name:         name,
		URL:          url,
		StockStatus:  StockUnknown,
		PriceHistory: []PricePoint{},
		Status:       TrendUnknown,
	}
}
