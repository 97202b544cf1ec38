// Package scheduler runs competitor refreshes one at a time, spacing oracle
// calls with fixed delays so retailer sites are not hammered.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/valeevte/pricewatch/internal/products"
)

// ErrQueueFull is returned when a job cannot be queued without blocking.
var ErrQueueFull = products.ErrQueueFull

// Store is the part of products.Repository the worker writes through.
type Store interface {
	Get(id string) (products.Product, error)
	IDs() []string
	SetLoading(id string, loading bool)
	ApplyCompetitor(ctx context.Context, productID string, c products.Competitor) (bool, error)
	Reprice(ctx context.Context, id string) (products.Product, error)
}

// Refresher looks up one competitor. Announce is called only for results
// that were stored.
type Refresher interface {
	Refresh(ctx context.Context, productName string, c products.Competitor) products.Result
	Announce(ctx context.Context, productName, competitorName string, events []products.Event)
}

type Notifier interface {
	BatchCompleted(ctx context.Context, label string, count int)
}

type Config struct {
	CompetitorDelay time.Duration
	ProductDelay    time.Duration
	QueueSize       int
}

type job struct {
	productID string
	batch     bool
	ids       []string
	label     string
}

// Status is a point-in-time view of the worker.
type Status struct {
	Queued      int        `json:"queued"`
	InFlight    string     `json:"in_flight,omitempty"`
	LastBatchAt *time.Time `json:"last_batch_at"`
	Running     bool       `json:"running"`
}

type Scheduler struct {
	store     Store
	refresher Refresher
	notes     Notifier
	cfg       Config
	logger    *zap.Logger

	// Sleep waits d or until ctx is done. Tests replace it with a virtual clock.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time

	jobs     chan job
	stop     chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	queued    map[string]bool
	inFlight  string
	lastBatch time.Time
	running   bool
}

func New(store Store, refresher Refresher, notes Notifier, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Scheduler{
		store:     store,
		refresher: refresher,
		notes:     notes,
		cfg:       cfg,
		logger:    logger,
		Sleep:     sleep,
		Now:       time.Now,
		jobs:      make(chan job, cfg.QueueSize),
		stop:      make(chan struct{}),
		queued:    map[string]bool{},
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// EnqueueProduct queues a refresh of one product. A product that is already
// waiting in the queue is not queued twice.
func (s *Scheduler) EnqueueProduct(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queued[id] {
		return nil
	}
	select {
	case s.jobs <- job{productID: id}:
		s.queued[id] = true
		return nil
	default:
		return ErrQueueFull
	}
}

// EnqueueBatch queues a sequential refresh of ids, or of every product when
// ids is empty. Targets are resolved when the batch starts.
func (s *Scheduler) EnqueueBatch(ids []string, label string) error {
	j := job{batch: true, ids: append([]string(nil), ids...), label: label}
	select {
	case s.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run processes jobs until ctx is cancelled or Stop is called. The job in
// progress stops at its next delay.
func (s *Scheduler) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.setRunning(true)
	defer s.setRunning(false)
	s.logger.Info("scheduler started",
		zap.Duration("competitor_delay", s.cfg.CompetitorDelay),
		zap.Duration("product_delay", s.cfg.ProductDelay))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", zap.Int("queued", len(s.jobs)))
			return
		case j := <-s.jobs:
			s.process(ctx, j)
		}
	}
}

// Drain processes every queued job on the calling goroutine and returns when
// the queue is empty. It must not be used while Run is active.
func (s *Scheduler) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case j := <-s.jobs:
			s.process(ctx, j)
		default:
			return nil
		}
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Queued: len(s.jobs), InFlight: s.inFlight, Running: s.running}
	if !s.lastBatch.IsZero() {
		t := s.lastBatch
		st.LastBatchAt = &t
	}
	return st
}

func (s *Scheduler) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

func (s *Scheduler) process(ctx context.Context, j job) {
	if !j.batch {
		s.mu.Lock()
		delete(s.queued, j.productID)
		s.mu.Unlock()
		s.refreshProduct(ctx, j.productID)
		return
	}
	s.runBatch(ctx, j)
}

func (s *Scheduler) runBatch(ctx context.Context, j job) {
	targets := s.resolve(j.ids)
	s.mu.Lock()
	s.lastBatch = s.Now()
	s.mu.Unlock()

	log := s.logger.With(zap.String("label", j.label), zap.Int("targets", len(targets)))
	log.Info("batch refresh started")
	for _, id := range targets {
		if !s.refreshProduct(ctx, id) && ctx.Err() != nil {
			log.Warn("batch refresh interrupted")
			return
		}
		if err := s.Sleep(ctx, s.cfg.ProductDelay); err != nil {
			log.Warn("batch refresh interrupted", zap.Error(err))
			return
		}
	}
	log.Info("batch refresh finished")
	if s.notes != nil {
		s.notes.BatchCompleted(context.WithoutCancel(ctx), j.label, len(targets))
	}
}

func (s *Scheduler) resolve(ids []string) []string {
	all := s.store.IDs()
	if len(ids) == 0 {
		return all
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]string, 0, len(ids))
	for _, id := range all {
		if want[id] {
			out = append(out, id)
		}
	}
	return out
}

// refreshProduct walks the product's competitors in order, waiting the
// competitor delay before each lookup. It returns false when the product
// could not be refreshed to the end.
func (s *Scheduler) refreshProduct(ctx context.Context, id string) bool {
	p, err := s.store.Get(id)
	if err != nil {
		s.logger.Warn("refresh target missing", zap.String("product_id", id), zap.Error(err))
		return false
	}

	s.mu.Lock()
	s.inFlight = id
	s.mu.Unlock()
	s.store.SetLoading(id, true)

	// results already fetched are written even after cancellation
	persist := context.WithoutCancel(ctx)
	defer func() {
		if _, err := s.store.Reprice(persist, id); err != nil && !errors.Is(err, products.ErrNotFound) {
			s.logger.Error("reprice failed", zap.String("product_id", id), zap.Error(err))
		}
		s.store.SetLoading(id, false)
		s.mu.Lock()
		s.inFlight = ""
		s.mu.Unlock()
	}()

	for _, c := range p.Competitors {
		if err := s.Sleep(ctx, s.cfg.CompetitorDelay); err != nil {
			return false
		}
		res := s.refresher.Refresh(persist, p.Name, c)
		applied, err := s.store.ApplyCompetitor(persist, id, res.Competitor)
		switch {
		case err != nil:
			s.logger.Error("apply refresh failed",
				zap.String("product_id", id), zap.String("competitor_id", c.ID), zap.Error(err))
		case !applied:
			s.logger.Info("refresh result discarded, competitor changed",
				zap.String("product_id", id), zap.String("competitor_id", c.ID))
		default:
			s.refresher.Announce(persist, p.Name, c.Name, res.Events)
		}
	}
	s.logger.Debug("product refreshed", zap.String("product_id", id), zap.Int("competitors", len(p.Competitors)))
	return true
}
