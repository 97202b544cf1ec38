package notify

import (
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

const stateKey = "notifications"

// Center is the append-only notification log. Entries are kept newest first
// and written through to the state store on every change.
type Center struct {
	mu     sync.Mutex
	items  []Notification
	store  state.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewCenter(store state.Store, logger *zap.Logger) *Center {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Center{store: store, logger: logger, now: time.Now}
}

// Load restores the log saved by a previous process. A missing key is not an error.
func (c *Center) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	raw, found, err := c.store.Get(ctx, stateKey)
	if err != nil {
		return fmt.Errorf("load notifications: %w", err)
	}
	if !found {
		return nil
	}
	var items []Notification
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("decode notifications: %w", err)
	}
	if len(items) > MaxEntries {
		items = items[:MaxEntries]
	}
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	return nil
}

func (c *Center) Emit(ctx context.Context, typ Type, message string) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		Type:      typ,
		Message:   message,
		Timestamp: c.now(),
	}
	c.mu.Lock()
	items := make([]Notification, 0, len(c.items)+1)
	items = append(items, n)
	items = append(items, c.items...)
	if len(items) > MaxEntries {
		items = items[:MaxEntries]
	}
	c.items = items
	c.persistLocked(ctx)
	c.mu.Unlock()

	c.logger.Info("notification", zap.String("type", string(typ)), zap.String("message", message))
	return n
}

// List returns a copy of the log, newest first.
func (c *Center) List() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Center) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, it := range c.items {
		if !it.Read {
			n++
		}
	}
	return n
}

func (c *Center) MarkRead(ctx context.Context, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == id {
			if !c.items[i].Read {
				c.items[i].Read = true
				c.persistLocked(ctx)
			}
			return true
		}
	}
	return false
}

func (c *Center) MarkAllRead(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for i := range c.items {
		if !c.items[i].Read {
			c.items[i].Read = true
			n++
		}
	}
	if n > 0 {
		c.persistLocked(ctx)
	}
	return n
}

func (c *Center) persistLocked(ctx context.Context) {
	if c.store == nil {
		return
	}
	raw, err := json.Marshal(c.items)
	if err != nil {
		c.logger.Error("encode notifications", zap.Error(err))
		return
	}
	if err := c.store.Put(ctx, stateKey, raw); err != nil {
		c.logger.Warn("persist notifications failed", zap.Error(err))
	}
}

func (c *Center) PriceDropped(ctx context.Context, productName, competitorName string, price decimal.Decimal) {
	c.Emit(ctx, TypeWarning, fmt.Sprintf("Competitor %s dropped the price of %s to %s", competitorName, productName, FormatPrice(price)))
}

func (c *Center) OutOfStock(ctx context.Context, productName, competitorName string) {
	c.Emit(ctx, TypeInfo, fmt.Sprintf("Competitor %s is out of stock on %s", competitorName, productName))
}

func (c *Center) ProductUpdated(ctx context.Context, sku string) {
	c.Emit(ctx, TypeInfo, fmt.Sprintf("Updated existing product SKU: %s", sku))
}

func (c *Center) ImportStarted(ctx context.Context, count int) {
	c.Emit(ctx, TypeInfo, fmt.Sprintf("Processing %d imported products", count))
}

// BatchCompleted reports a finished refresh batch. label names the batch
// origin, e.g. "import"; an empty label is a plain price scan.
func (c *Center) BatchCompleted(ctx context.Context, label string, count int) {
	if label == "" {
		c.Emit(ctx, TypeSuccess, fmt.Sprintf("Finished price scan of %d products", count))
		return
	}
	c.Emit(ctx, TypeSuccess, fmt.Sprintf("Finished %s and price update of %d products", label, count))
}

// FormatPrice renders an amount in whole dong with thousands separators.
func FormatPrice(d decimal.Decimal) string {
	digits := d.Round(0).Abs().String()
	var b strings.Builder
	if d.Round(0).IsNegative() {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	b.WriteString("đ")
	return b.String()
}
