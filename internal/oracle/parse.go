package oracle

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/valeevte/pricewatch/internal/products"
)

// amountPattern matches grouped amounts like 23.995.000, 23,995,000 or
// 23\u00a0995\u00a0000 and plain digit runs. An ordinary space separates two
// amounts, it never groups digits.
var amountPattern = regexp.MustCompile(`\d{1,3}(?:[.,\x{00A0}\x{202F}]\d{3})+|\d+`)

// ParsePrices extracts every amount in text, ignoring thousand separators.
func ParsePrices(text string) []decimal.Decimal {
	var out []decimal.Decimal
	for _, m := range amountPattern.FindAllString(text, -1) {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, m)
		d, err := decimal.NewFromString(digits)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}

// isInstallment reports text that quotes a monthly installment, not a price.
func isInstallment(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "trả góp") || strings.Contains(lower, "/tháng")
}

var stockKeywords = []struct {
	status products.StockStatus
	words  []string
}{
	{products.StockOutOfStock, []string{"hết hàng", "tạm hết", "out of stock", "outofstock", "soldout"}},
	{products.StockInStock, []string{"còn hàng", "sẵn hàng", "in stock", "instock"}},
	{products.StockContact, []string{"liên hệ", "đặt hàng", "preorder"}},
}

// ClassifyStock maps availability text to a stock status. Out-of-stock
// wording wins over in-stock wording so "Tạm hết hàng" is not read as
// available.
func ClassifyStock(text string) products.StockStatus {
	lower := strings.ToLower(text)
	for _, k := range stockKeywords {
		for _, w := range k.words {
			if strings.Contains(lower, w) {
				return k.status
			}
		}
	}
	return products.StockUnknown
}
