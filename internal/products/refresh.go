package products

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// NotFoundMarker is the marker stored on a competitor whose last lookup failed.
const NotFoundMarker = "price not found"

// Alerter receives the user-facing events a refresh can raise.
type Alerter interface {
	PriceDropped(ctx context.Context, productName, competitorName string, price decimal.Decimal)
	OutOfStock(ctx context.Context, productName, competitorName string)
}

type EventKind string

const (
	EventPriceDropped EventKind = "price_dropped"
	EventOutOfStock   EventKind = "out_of_stock"
)

// Event is an alert detected by a refresh. It is announced only after the
// refreshed competitor has been stored.
type Event struct {
	Kind  EventKind
	Price decimal.Decimal
}

// Result is a refreshed competitor plus the events its new quote raised.
type Result struct {
	Competitor Competitor
	Events     []Event
}

// Refresher updates one competitor from one oracle call.
type Refresher struct {
	Oracle QuoteOracle
	Alerts Alerter
	Logger *zap.Logger
	Now    func() time.Time
}

func NewRefresher(oracle QuoteOracle, alerts Alerter, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{Oracle: oracle, Alerts: alerts, Logger: logger, Now: time.Now}
}

// Refresh returns c updated with a fresh quote. A failed lookup only sets the
// error marker; price, stock, trend and history stay as they were.
func (r *Refresher) Refresh(ctx context.Context, productName string, c Competitor) Result {
	out := c.clone()

	quote, err := r.Oracle.FetchQuote(ctx, productName, c.URL, c.Name)
	if err != nil {
		r.Logger.Warn("quote lookup failed",
			zap.String("product", productName),
			zap.String("competitor", c.Name),
			zap.String("url", c.URL),
			zap.Error(err))
		quote = nil
	}
	if quote == nil || !quote.Price.IsPositive() {
		out.Error = NotFoundMarker
		return Result{Competitor: out}
	}

	now := r.now()
	stock := ParseStockStatus(string(quote.StockStatus))

	out.Status = trend(c.CurrentPrice, quote.Price)
	if len(out.PriceHistory) == 0 || !c.CurrentPrice.Valid || !c.CurrentPrice.Decimal.Equal(quote.Price) {
		out.PriceHistory = appendPoint(out.PriceHistory, now, quote.Price)
	}
	out.CurrentPrice = decimal.NewNullDecimal(quote.Price)
	out.StockStatus = stock
	out.Promotion = quote.Promotion
	out.LastUpdated = &now
	out.Error = ""

	res := Result{Competitor: out}
	if out.Status == TrendDecreased {
		res.Events = append(res.Events, Event{Kind: EventPriceDropped, Price: quote.Price})
	}
	if c.StockStatus == StockInStock && stock == StockOutOfStock {
		res.Events = append(res.Events, Event{Kind: EventOutOfStock})
	}
	return res
}

// Announce forwards events of a stored refresh to the alerter.
func (r *Refresher) Announce(ctx context.Context, productName, competitorName string, events []Event) {
	if r.Alerts == nil {
		return
	}
	for _, e := range events {
		switch e.Kind {
		case EventPriceDropped:
			r.Alerts.PriceDropped(ctx, productName, competitorName, e.Price)
		case EventOutOfStock:
			r.Alerts.OutOfStock(ctx, productName, competitorName)
		}
	}
}

func (r *Refresher) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// trend compares against the previous current price, not the history.
func trend(prev decimal.NullDecimal, price decimal.Decimal) TrendStatus {
	if !positive(prev) {
		return TrendStable
	}
	switch {
	case price.GreaterThan(prev.Decimal):
		return TrendIncreased
	case price.LessThan(prev.Decimal):
		return TrendDecreased
	}
	return TrendStable
}

// appendPoint adds a point keeping dates non-decreasing and evicting the
// oldest points beyond MaxHistory.
func appendPoint(history []PricePoint, at time.Time, price decimal.Decimal) []PricePoint {
	if n := len(history); n > 0 && at.Before(history[n-1].Date) {
		at = history[n-1].Date
	}
	history = append(history, PricePoint{Date: at, Price: price})
	if over := len(history) - MaxHistory; over > 0 {
		history = append([]PricePoint(nil), history[over:]...)
	}
	return history
}
