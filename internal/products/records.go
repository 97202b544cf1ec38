package products

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Columns of the import record. Exports use the same shape so a backup can
// be imported again.
const (
	colSKU         = "SKU"
	colName        = "ProductName"
	colMyPrice     = "MyPrice"
	colMyPromotion = "MyPromotion"
	colCostPrice   = "CostPrice"
	colMinPrice    = "MinPrice"
	colCategory    = "Category"
)

func competitorColumns(n int) (name, url string) {
	return fmt.Sprintf("Competitor%d_Name", n), fmt.Sprintf("Competitor%d_URL", n)
}

// RecordHeader returns the import/export header row.
func RecordHeader() []string {
	header := []string{colSKU, colName, colMyPrice, colMyPromotion, colCostPrice, colMinPrice, colCategory}
	for i := 1; i <= MaxCompetitors; i++ {
		name, url := competitorColumns(i)
		header = append(header, name, url)
	}
	return header
}

var ErrEmptyImport = errors.New("import has no header row")

// ReadRecords parses CSV import rows keyed by the header row. Columns may
// appear in any order and unknown ones are ignored. Cells are taken as-is;
// coercion happens in NormalizeImport.
func ReadRecords(r io.Reader) ([]NewProductData, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, ErrEmptyImport)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalidInput, err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")] = i
	}

	var out []NewProductData
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidInput, line, err)
		}
		cell := func(col string) string {
			if i, ok := index[col]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}
		if isBlankRow(row) {
			continue
		}

		rec := NewProductData{
			SKU:         cell(colSKU),
			Name:        cell(colName),
			MyPrice:     parseAmount(cell(colMyPrice)),
			MyPromotion: cell(colMyPromotion),
			CostPrice:   optionalAmount(cell(colCostPrice)),
			MinPrice:    optionalAmount(cell(colMinPrice)),
			Strategy:    StrategyManual,
			Category:    Category(cell(colCategory)),
		}
		for i := 1; i <= MaxCompetitors; i++ {
			nameCol, urlCol := competitorColumns(i)
			name, url := cell(nameCol), cell(urlCol)
			if name == "" || url == "" {
				continue
			}
			rec.Competitors = append(rec.Competitors, CompetitorInput{Name: name, URL: url})
		}
		out = append(out, rec)
	}
	return out, nil
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// parseAmount reads a plain number. Missing or non-numeric cells become 0.
func parseAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func optionalAmount(s string) decimal.NullDecimal {
	d := parseAmount(s)
	if !d.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// WriteRecords writes products in the import shape.
func WriteRecords(w io.Writer, list []Product) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RecordHeader()); err != nil {
		return err
	}
	for _, p := range list {
		row := []string{
			p.SKU,
			p.Name,
			p.MyPrice.String(),
			p.MyPromotion,
			nullString(p.CostPrice),
			nullString(p.MinPrice),
			string(p.Category),
		}
		for i := 0; i < MaxCompetitors; i++ {
			if i < len(p.Competitors) {
				row = append(row, p.Competitors[i].Name, p.Competitors[i].URL)
			} else {
				row = append(row, "", "")
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReport writes the price report: guardrails, suggestion and the
// lowest known competitor price next to each competitor's current price.
func WriteReport(w io.Writer, list []Product) error {
	cw := csv.NewWriter(w)
	header := []string{"Category", "SKU", "Product Name", "My Price", "My Promotion",
		"Cost Price", "Min Price", "Suggested Price", "Lowest Competitor"}
	for i := 1; i <= MaxCompetitors; i++ {
		header = append(header, "Competitor "+strconv.Itoa(i)+" Name", "Competitor "+strconv.Itoa(i)+" Price")
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, p := range list {
		row := []string{
			string(p.Category),
			p.SKU,
			p.Name,
			p.MyPrice.String(),
			p.MyPromotion,
			nullString(p.CostPrice),
			nullString(p.MinPrice),
			nullString(p.SuggestedPrice),
			nullString(lowestKnown(p.Competitors)),
		}
		for i := 0; i < MaxCompetitors; i++ {
			if i < len(p.Competitors) {
				row = append(row, p.Competitors[i].Name, nullString(p.Competitors[i].CurrentPrice))
			} else {
				row = append(row, "", "")
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// lowestKnown ignores stock status, unlike the repricing market minimum.
func lowestKnown(list []Competitor) decimal.NullDecimal {
	var low decimal.NullDecimal
	for _, c := range list {
		if !positive(c.CurrentPrice) {
			continue
		}
		if !low.Valid || c.CurrentPrice.Decimal.LessThan(low.Decimal) {
			low = c.CurrentPrice
		}
	}
	return low
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

// ImportSearchResults turns retailer search hits into product records with
// no competitors. The category is the first known category named inside
// the result's category text.
func ImportSearchResults(results []SearchResult) []NewProductData {
	out := make([]NewProductData, 0, len(results))
	for _, r := range results {
		out = append(out, NewProductData{
			Name:     strings.TrimSpace(r.Name),
			SKU:      strings.TrimSpace(r.SKU),
			MyPrice:  r.Price,
			Strategy: StrategyManual,
			Category: categoryFromText(r.Category),
		})
	}
	return out
}

func categoryFromText(s string) Category {
	for _, c := range Categories {
		if s != "" && strings.Contains(s, string(c)) {
			return c
		}
	}
	return CategoryOther
}
