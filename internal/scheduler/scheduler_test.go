package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/valeevte/pricewatch/internal/products"
	"github.com/valeevte/pricewatch/internal/state"
)

// timeline records oracle calls and delays in the order they happen.
type timeline struct {
	mu     sync.Mutex
	events []string
}

func (tl *timeline) add(e string) {
	tl.mu.Lock()
	tl.events = append(tl.events, e)
	tl.mu.Unlock()
}

func (tl *timeline) snapshot() []string {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return append([]string(nil), tl.events...)
}

type fakeOracle struct {
	tl       *timeline
	price    int64
	active   int32
	maxSeen  int32
	cancelFn context.CancelFunc
}

func (o *fakeOracle) FetchQuote(ctx context.Context, productName, url, competitorName string) (*products.Quote, error) {
	n := atomic.AddInt32(&o.active, 1)
	defer atomic.AddInt32(&o.active, -1)
	for {
		m := atomic.LoadInt32(&o.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&o.maxSeen, m, n) {
			break
		}
	}
	o.tl.add("fetch " + url)
	if o.cancelFn != nil {
		o.cancelFn()
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &products.Quote{Price: decimal.NewFromInt(o.price), StockStatus: products.StockInStock}, nil
}

type batchRecorder struct {
	labels []string
	counts []int
}

func (b *batchRecorder) BatchCompleted(ctx context.Context, label string, count int) {
	b.labels = append(b.labels, label)
	b.counts = append(b.counts, count)
}

type alertRecorder struct {
	mu     sync.Mutex
	alerts []string
}

func (a *alertRecorder) PriceDropped(ctx context.Context, productName, competitorName string, price decimal.Decimal) {
	a.mu.Lock()
	a.alerts = append(a.alerts, fmt.Sprintf("drop %s %s %s", productName, competitorName, price))
	a.mu.Unlock()
}

func (a *alertRecorder) OutOfStock(ctx context.Context, productName, competitorName string) {
	a.mu.Lock()
	a.alerts = append(a.alerts, fmt.Sprintf("out_of_stock %s %s", productName, competitorName))
	a.mu.Unlock()
}

func (a *alertRecorder) snapshot() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.alerts...)
}

type fixture struct {
	repo    *products.Repository
	oracle  *fakeOracle
	batches *batchRecorder
	alerts  *alertRecorder
	tl      *timeline
	sched   *Scheduler
}

func newFixture(t *testing.T, competitorsPerProduct ...int) *fixture {
	t.Helper()
	ctx := context.Background()
	tl := &timeline{}
	repo := products.NewRepository(state.NewMemoryStore(), nil, nil, products.ValidateOptions{})
	if err := repo.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	for i, n := range competitorsPerProduct {
		in := products.NewProductData{
			Name:     fmt.Sprintf("product-%d", i),
			SKU:      fmt.Sprintf("SKU-%d", i),
			MyPrice:  decimal.NewFromInt(2_000_000),
			Strategy: products.StrategyMatchLowest,
		}
		for j := 0; j < n; j++ {
			in.Competitors = append(in.Competitors, products.CompetitorInput{
				Name: fmt.Sprintf("shop-%d", j),
				URL:  fmt.Sprintf("https://shop/%d/%d", i, j),
			})
		}
		if _, _, err := repo.Add(ctx, in); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	oracle := &fakeOracle{tl: tl, price: 1_500_000}
	batches := &batchRecorder{}
	alerts := &alertRecorder{}
	s := New(repo, products.NewRefresher(oracle, alerts, nil), batches, Config{
		CompetitorDelay: 10 * time.Second,
		ProductDelay:    5 * time.Second,
		QueueSize:       4,
	}, nil)
	s.Sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		tl.add(fmt.Sprintf("sleep %s", d))
		return nil
	}
	return &fixture{repo: repo, oracle: oracle, batches: batches, alerts: alerts, tl: tl, sched: s}
}

func equalEvents(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("events=%v\nwant   %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d]=%q want %q\nall=%v", i, got[i], want[i], got)
		}
	}
}

func TestScheduler_ProductRefreshIsSequential(t *testing.T) {
	f := newFixture(t, 3)
	id := f.repo.IDs()[0]

	if err := f.sched.EnqueueProduct(id); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := f.sched.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	equalEvents(t, f.tl.snapshot(), []string{
		"sleep 10s", "fetch https://shop/0/0",
		"sleep 10s", "fetch https://shop/0/1",
		"sleep 10s", "fetch https://shop/0/2",
	})
	if f.oracle.maxSeen != 1 {
		t.Fatalf("max concurrent oracle calls=%d want 1", f.oracle.maxSeen)
	}

	p, _ := f.repo.Get(id)
	if p.Loading {
		t.Fatalf("loading flag left set")
	}
	for _, c := range p.Competitors {
		if !c.CurrentPrice.Valid || c.LastUpdated == nil {
			t.Fatalf("competitor not refreshed: %+v", c)
		}
	}
	if !p.SuggestedPrice.Valid || !p.SuggestedPrice.Decimal.Equal(decimal.NewFromInt(1_500_000)) {
		t.Fatalf("suggested=%v want 1500000", p.SuggestedPrice)
	}
}

func TestScheduler_AnnouncesStoredPriceDrop(t *testing.T) {
	f := newFixture(t, 1)
	id := f.repo.IDs()[0]
	_ = f.sched.EnqueueProduct(id)
	_ = f.sched.Drain(context.Background())

	f.oracle.price = 1_200_000
	_ = f.sched.EnqueueProduct(id)
	_ = f.sched.Drain(context.Background())

	got := f.alerts.snapshot()
	if len(got) != 1 || got[0] != "drop product-0 shop-0 1200000" {
		t.Fatalf("alerts=%v want one drop to 1200000", got)
	}
}

func TestScheduler_DiscardedResultRaisesNoAlert(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	id := f.repo.IDs()[0]
	_ = f.sched.EnqueueProduct(id)
	_ = f.sched.Drain(ctx)

	p, _ := f.repo.Get(id)
	compID := p.Competitors[0].ID
	f.oracle.price = 900_000
	// re-point the competitor while its lookup is waiting on the delay
	f.sched.Sleep = func(ctx context.Context, d time.Duration) error {
		rows := []products.CompetitorInput{{ID: compID, Name: "shop-0", URL: "https://new"}}
		if _, err := f.repo.Edit(ctx, id, products.ProductPatch{Competitors: &rows}); err != nil {
			t.Errorf("edit: %v", err)
		}
		return nil
	}
	_ = f.sched.EnqueueProduct(id)
	_ = f.sched.Drain(ctx)

	p, _ = f.repo.Get(id)
	c := p.Competitors[0]
	if c.URL != "https://new" || !c.CurrentPrice.Decimal.Equal(decimal.NewFromInt(1_500_000)) {
		t.Fatalf("competitor=%+v want url https://new with the previous price", c)
	}
	if got := f.alerts.snapshot(); len(got) != 0 {
		t.Fatalf("alerts=%v want none for a discarded result", got)
	}
}

func TestScheduler_CoalescesQueuedProduct(t *testing.T) {
	f := newFixture(t, 1)
	id := f.repo.IDs()[0]
	for i := 0; i < 3; i++ {
		if err := f.sched.EnqueueProduct(id); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if q := f.sched.Status().Queued; q != 1 {
		t.Fatalf("queued=%d want 1", q)
	}
	_ = f.sched.Drain(context.Background())
	if n := len(f.tl.snapshot()); n != 2 {
		t.Fatalf("events=%d want one delay and one fetch", n)
	}

	// once processed it can be queued again
	if err := f.sched.EnqueueProduct(id); err != nil || f.sched.Status().Queued != 1 {
		t.Fatalf("re-enqueue failed: %v", err)
	}
}

func TestScheduler_QueueFull(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		if err := f.sched.EnqueueProduct(fmt.Sprintf("p-%d", i)); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := f.sched.EnqueueProduct("p-4"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err=%v want ErrQueueFull", err)
	}
	if err := f.sched.EnqueueBatch(nil, ""); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err=%v want ErrQueueFull", err)
	}
}

func TestScheduler_BatchWaitsBetweenProducts(t *testing.T) {
	f := newFixture(t, 1, 2)
	ids := f.repo.IDs()

	if err := f.sched.EnqueueBatch(nil, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	_ = f.sched.Drain(context.Background())

	// products are listed newest first
	equalEvents(t, f.tl.snapshot(), []string{
		"sleep 10s", "fetch https://shop/1/0",
		"sleep 10s", "fetch https://shop/1/1",
		"sleep 5s",
		"sleep 10s", "fetch https://shop/0/0",
		"sleep 5s",
	})
	if len(f.batches.counts) != 1 || f.batches.counts[0] != len(ids) {
		t.Fatalf("batch notifications=%v", f.batches.counts)
	}
	if st := f.sched.Status(); st.LastBatchAt == nil {
		t.Fatalf("last batch time not recorded")
	}
}

func TestScheduler_BatchSubsetSkipsUnknownIDs(t *testing.T) {
	f := newFixture(t, 1, 1)
	target := f.repo.IDs()[1]
	_ = f.sched.EnqueueBatch([]string{target, "gone"}, "import")
	_ = f.sched.Drain(context.Background())

	if len(f.batches.counts) != 1 || f.batches.counts[0] != 1 || f.batches.labels[0] != "import" {
		t.Fatalf("batches=%v/%v", f.batches.labels, f.batches.counts)
	}
	if n := len(f.tl.snapshot()); n != 3 {
		t.Fatalf("events=%v want a single product refresh", f.tl.snapshot())
	}
}

func TestScheduler_CancelKeepsInFlightResult(t *testing.T) {
	f := newFixture(t, 2)
	id := f.repo.IDs()[0]
	ctx, cancel := context.WithCancel(context.Background())
	f.oracle.cancelFn = cancel

	_ = f.sched.EnqueueBatch(nil, "")
	_ = f.sched.Drain(ctx)

	equalEvents(t, f.tl.snapshot(), []string{"sleep 10s", "fetch https://shop/0/0"})
	p, _ := f.repo.Get(id)
	if !p.Competitors[0].CurrentPrice.Valid {
		t.Fatalf("in-flight result must still be applied")
	}
	if p.Competitors[1].CurrentPrice.Valid {
		t.Fatalf("no lookup may start after cancellation")
	}
	if p.Loading {
		t.Fatalf("loading flag left set")
	}
	if len(f.batches.counts) != 0 {
		t.Fatalf("interrupted batch must not report completion")
	}
}

func TestScheduler_RunStops(t *testing.T) {
	f := newFixture(t, 1)
	done := make(chan struct{})
	go func() {
		f.sched.Run(context.Background())
		close(done)
	}()
	_ = f.sched.EnqueueProduct(f.repo.IDs()[0])
	f.sched.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after Stop")
	}
	if f.sched.Status().Running {
		t.Fatalf("status still running")
	}
}
