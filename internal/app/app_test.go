package app

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/valeevte/pricewatch/internal/config"
	"github.com/valeevte/pricewatch/internal/products"
)

func memoryConfig() config.Config {
	return config.Config{
		Storage:   config.StorageConfig{Driver: "memory"},
		Scheduler: config.SchedulerConfig{CompetitorDelay: time.Millisecond, ProductDelay: time.Millisecond, QueueSize: 8},
		Oracle:    config.OracleConfig{Timeout: time.Second, MinPrice: 1000},
		Search:    config.SearchConfig{BaseURL: "https://shop.example", Path: "/tim"},
	}
}

func TestNew_WiresComponents(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	if err := a.Ready(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if a.Searcher == nil {
		t.Fatalf("searcher not configured")
	}
	if _, _, err := a.Repo.Add(ctx, products.NewProductData{Name: "p", SKU: "S1"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, _, err := a.Repo.Add(ctx, products.NewProductData{Name: "p2", SKU: "s1"}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if a.Center.Unread() != 1 {
		t.Fatalf("merge notification not routed to the center: %d", a.Center.Unread())
	}
}

func TestNew_UnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Driver = "cassandra"
	if _, err := New(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
