package products

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/valeevte/pricewatch/internal/state"
)

const (
	stateKey = "products"
	// SchemaVersion 3 added sku, guardrails and strategy.
	SchemaVersion = 3
)

type snapshot struct {
	Version  int       `json:"version"`
	SavedAt  time.Time `json:"saved_at"`
	Products []Product `json:"products"`
}

// Notifier receives the events raised by catalogue changes.
type Notifier interface {
	ProductUpdated(ctx context.Context, sku string)
	ImportStarted(ctx context.Context, count int)
}

// Repository owns the tracked product collection. It is the single writer:
// every mutation runs under one lock, recomputes the suggested price and is
// written through to the state store before it becomes visible.
type Repository struct {
	mu     sync.Mutex
	items  []Product
	store  state.Store
	notes  Notifier
	logger *zap.Logger
	newID  IDFunc
	opts   ValidateOptions
}

func NewRepository(store state.Store, notes Notifier, logger *zap.Logger, opts ValidateOptions) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		store:  store,
		notes:  notes,
		logger: logger,
		newID:  uuid.NewString,
		opts:   opts,
	}
}

// Load replaces the in-memory collection with the persisted one. Records
// written by older versions get defaults for fields they lack.
func (r *Repository) Load(ctx context.Context) error {
	raw, found, err := r.store.Get(ctx, stateKey)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}
	var snap snapshot
	if found {
		snap, err = decodeSnapshot(raw)
		if err != nil {
			return err
		}
	}
	for i := range snap.Products {
		upgrade(&snap.Products[i])
	}

	r.mu.Lock()
	r.items = snap.Products
	r.mu.Unlock()

	r.logger.Info("products loaded", zap.Int("count", len(snap.Products)), zap.Int("version", snap.Version))
	return nil
}

func decodeSnapshot(raw []byte) (snapshot, error) {
	raw = bytes.TrimSpace(raw)
	var snap snapshot
	// unversioned state is a bare product list
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &snap.Products); err != nil {
			return snapshot{}, fmt.Errorf("decode products: %w", err)
		}
		return snap, nil
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snapshot{}, fmt.Errorf("decode products: %w", err)
	}
	return snap, nil
}

func upgrade(p *Product) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if !p.Strategy.Valid() {
		p.Strategy = StrategyManual
	}
	p.Category = ParseCategory(string(p.Category))
	p.Loading = false
	for i := range p.Competitors {
		c := &p.Competitors[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.StockStatus = ParseStockStatus(string(c.StockStatus))
		switch c.Status {
		case TrendStable, TrendIncreased, TrendDecreased:
		default:
			c.Status = TrendUnknown
		}
		if c.PriceHistory == nil {
			c.PriceHistory = []PricePoint{}
		}
	}
	reprice(p)
}

// commitLocked persists next and, only on success, makes it current.
func (r *Repository) commitLocked(ctx context.Context, next []Product) error {
	raw, err := json.Marshal(snapshot{Version: SchemaVersion, SavedAt: time.Now().UTC(), Products: next})
	if err != nil {
		return fmt.Errorf("encode products: %w", err)
	}
	if err := r.store.Put(ctx, stateKey, raw); err != nil {
		return fmt.Errorf("save products: %w", err)
	}
	r.items = next
	return nil
}

func (r *Repository) indexLocked(id string) int {
	for i := range r.items {
		if r.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Repository) List() []Product {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Product, len(r.items))
	for i, p := range r.items {
		out[i] = p.Clone()
	}
	return out
}

// Filter lists products in category (empty for all) whose name or SKU
// contains query, case-insensitively.
func (r *Repository) Filter(category Category, query string) []Product {
	query = strings.ToLower(strings.TrimSpace(query))
	all := r.List()
	out := all[:0]
	for _, p := range all {
		if category != "" && p.Category != category {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(p.Name), query) &&
			!strings.Contains(strings.ToLower(p.SKU), query) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (r *Repository) Get(id string) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexLocked(id); i >= 0 {
		return r.items[i].Clone(), nil
	}
	return Product{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (r *Repository) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.items))
	for i, p := range r.items {
		ids[i] = p.ID
	}
	return ids
}

// Add validates a manually entered record and merges it into the collection.
func (r *Repository) Add(ctx context.Context, in NewProductData) (Product, bool, error) {
	in = Normalize(in)
	if err := Validate(in, r.opts); err != nil {
		return Product{}, false, err
	}

	r.mu.Lock()
	next, target, isNew := Upsert(r.items, in, r.newID)
	err := r.commitLocked(ctx, next)
	r.mu.Unlock()
	if err != nil {
		return Product{}, false, err
	}

	if !isNew && r.notes != nil {
		r.notes.ProductUpdated(ctx, in.SKU)
	}
	r.logger.Info("product upserted", zap.String("product_id", target.ID), zap.Bool("created", isNew))
	return target.Clone(), isNew, nil
}

// AddBulk merges imported records in order. Rows are coerced, never rejected.
func (r *Repository) AddBulk(ctx context.Context, records []NewProductData) ([]Product, error) {
	normalized := make([]NewProductData, len(records))
	for i, rec := range records {
		normalized[i] = NormalizeImport(rec)
	}

	r.mu.Lock()
	next, targets, created := BulkUpsert(r.items, normalized, r.newID)
	err := r.commitLocked(ctx, next)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if r.notes != nil && len(targets) > 0 {
		r.notes.ImportStarted(ctx, len(targets))
	}
	r.logger.Info("bulk upsert", zap.Int("rows", len(records)), zap.Int("created", created))
	return targets, nil
}

// ProductPatch carries the editable fields; nil fields are left untouched.
type ProductPatch struct {
	Name        *string              `json:"name"`
	MyPrice     *decimal.Decimal     `json:"my_price"`
	MyPromotion *string              `json:"my_promotion"`
	CostPrice   *decimal.NullDecimal `json:"cost_price"`
	MinPrice    *decimal.NullDecimal `json:"min_price"`
	Strategy    *Strategy            `json:"strategy"`
	Category    *Category            `json:"category"`
	Competitors *[]CompetitorInput   `json:"competitors"`
}

// Edit applies patch to product id. Competitor rows with a known id keep
// that competitor's history even when the URL changes; rows without an id
// are matched by URL and otherwise start fresh.
func (r *Repository) Edit(ctx context.Context, id string, patch ProductPatch) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(id)
	if i < 0 {
		return Product{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p := r.items[i].Clone()

	// reuse the manual-entry checks on the merged view
	view := NewProductData{
		Name:        p.Name,
		SKU:         p.SKU,
		MyPrice:     p.MyPrice,
		MyPromotion: p.MyPromotion,
		CostPrice:   p.CostPrice,
		MinPrice:    p.MinPrice,
		Strategy:    p.Strategy,
		Category:    p.Category,
	}
	if patch.Name != nil {
		view.Name = *patch.Name
	}
	if patch.MyPrice != nil {
		view.MyPrice = *patch.MyPrice
	}
	if patch.MyPromotion != nil {
		view.MyPromotion = *patch.MyPromotion
	}
	if patch.CostPrice != nil {
		view.CostPrice = *patch.CostPrice
	}
	if patch.MinPrice != nil {
		view.MinPrice = *patch.MinPrice
	}
	if patch.Strategy != nil {
		view.Strategy = *patch.Strategy
	}
	if patch.Category != nil {
		view.Category = *patch.Category
	}
	if patch.Competitors != nil {
		view.Competitors = *patch.Competitors
	}
	normalized := Normalize(view)
	if err := Validate(normalized, ValidateOptions{}); err != nil {
		return Product{}, err
	}
	if patch.Competitors != nil && len(normalized.Competitors) == 0 {
		return Product{}, fmt.Errorf("%w: at least one competitor is required", ErrInvalidInput)
	}

	p.Name = normalized.Name
	p.MyPrice = normalized.MyPrice
	p.MyPromotion = normalized.MyPromotion
	p.CostPrice = normalized.CostPrice
	p.MinPrice = normalized.MinPrice
	p.Strategy = normalized.Strategy
	p.Category = normalized.Category
	if patch.Competitors != nil {
		p.Competitors = r.editCompetitors(p.Competitors, normalized.Competitors)
	}
	reprice(&p)

	next := make([]Product, len(r.items))
	copy(next, r.items)
	next[i] = p
	if err := r.commitLocked(ctx, next); err != nil {
		return Product{}, err
	}
	return p.Clone(), nil
}

func (r *Repository) editCompetitors(existing []Competitor, rows []CompetitorInput) []Competitor {
	out := make([]Competitor, 0, len(rows))
	used := make(map[string]bool, len(existing))
	for _, row := range rows {
		var (
			c  Competitor
			ok bool
		)
		if row.ID != "" {
			for _, e := range existing {
				if e.ID == row.ID && !used[e.ID] {
					c, ok = e.clone(), true
					break
				}
			}
		}
		if !ok {
			if e, found := findByURL(existing, row.URL); found && !used[e.ID] {
				c, ok = e.clone(), true
			}
		}
		if !ok {
			out = append(out, newCompetitor(r.newID(), row.Name, row.URL))
			continue
		}
		used[c.ID] = true
		c.Name = row.Name
		c.URL = row.URL
		out = append(out, c)
	}
	return out
}

// Delete removes one product. Confirmation is the caller's concern.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := make([]Product, 0, len(r.items)-1)
	next = append(next, r.items[:i]...)
	next = append(next, r.items[i+1:]...)
	return r.commitLocked(ctx, next)
}

// DeleteMany removes every listed product and reports how many existed.
func (r *Repository) DeleteMany(ctx context.Context, ids []string) (int, error) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]Product, 0, len(r.items))
	for _, p := range r.items {
		if !drop[p.ID] {
			next = append(next, p)
		}
	}
	removed := len(r.items) - len(next)
	if removed == 0 {
		return 0, nil
	}
	if err := r.commitLocked(ctx, next); err != nil {
		return 0, err
	}
	return removed, nil
}

// SetLoading flips the transient refresh flag. It is not persisted.
func (r *Repository) SetLoading(id string, loading bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexLocked(id); i >= 0 {
		next := make([]Product, len(r.items))
		copy(next, r.items)
		next[i].Loading = loading
		r.items = next
	}
}

// ApplyCompetitor stores a refreshed competitor. The result is discarded,
// with applied=false, when the competitor was removed or re-pointed to
// another URL while its quote was being fetched.
func (r *Repository) ApplyCompetitor(ctx context.Context, productID string, c Competitor) (applied bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(productID)
	if i < 0 {
		return false, fmt.Errorf("%w: %s", ErrNotFound, productID)
	}
	p := r.items[i].Clone()
	for j := range p.Competitors {
		if p.Competitors[j].ID != c.ID {
			continue
		}
		if strings.TrimSpace(p.Competitors[j].URL) != strings.TrimSpace(c.URL) {
			return false, nil
		}
		// keep edits made to the name while the quote was in flight
		c.Name = p.Competitors[j].Name
		p.Competitors[j] = c.clone()
		reprice(&p)
		next := make([]Product, len(r.items))
		copy(next, r.items)
		next[i] = p
		if err := r.commitLocked(ctx, next); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Reprice recomputes the suggested price of one product.
func (r *Repository) Reprice(ctx context.Context, id string) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return Product{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p := r.items[i].Clone()
	before := p.SuggestedPrice
	reprice(&p)
	if before.Valid == p.SuggestedPrice.Valid && before.Decimal.Equal(p.SuggestedPrice.Decimal) {
		return p, nil
	}
	next := make([]Product, len(r.items))
	copy(next, r.items)
	next[i] = p
	if err := r.commitLocked(ctx, next); err != nil {
		return Product{}, err
	}
	return p.Clone(), nil
}

// Summary holds the dashboard counters over the whole collection.
type Summary struct {
	Products          int `json:"products"`
	Competitors       int `json:"competitors"`
	CheaperInStock    int `json:"cheaper_in_stock"`
	OutOfStock        int `json:"out_of_stock"`
	WithSuggestion    int `json:"with_suggestion"`
	FailedCompetitors int `json:"failed_competitors"`
}

func (r *Repository) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Summary{Products: len(r.items)}
	for _, p := range r.items {
		if p.SuggestedPrice.Valid {
			s.WithSuggestion++
		}
		for _, c := range p.Competitors {
			s.Competitors++
			if c.Error != "" {
				s.FailedCompetitors++
			}
			switch c.StockStatus {
			case StockOutOfStock:
				s.OutOfStock++
			case StockInStock:
				if positive(c.CurrentPrice) && c.CurrentPrice.Decimal.LessThan(p.MyPrice) {
					s.CheaperInStock++
				}
			}
		}
	}
	return s
}
