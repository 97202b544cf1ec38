package notify

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/valeevte/pricewatch/internal/state"
)

func TestEmit_CapsAtFiftyNewestFirst(t *testing.T) {
	c := NewCenter(nil, nil)
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		c.Emit(ctx, TypeInfo, fmt.Sprintf("msg %d", i))
	}
	items := c.List()
	if len(items) != MaxEntries {
		t.Fatalf("len=%d want=%d", len(items), MaxEntries)
	}
	if items[0].Message != "msg 59" {
		t.Fatalf("first=%q want newest", items[0].Message)
	}
	if items[len(items)-1].Message != "msg 10" {
		t.Fatalf("last=%q want msg 10", items[len(items)-1].Message)
	}
}

func TestMarkRead(t *testing.T) {
	c := NewCenter(nil, nil)
	ctx := context.Background()
	a := c.Emit(ctx, TypeWarning, "a")
	c.Emit(ctx, TypeInfo, "b")
	if c.Unread() != 2 {
		t.Fatalf("unread=%d want 2", c.Unread())
	}
	if !c.MarkRead(ctx, a.ID) {
		t.Fatalf("MarkRead returned false for known id")
	}
	if c.MarkRead(ctx, "missing") {
		t.Fatalf("MarkRead returned true for unknown id")
	}
	if c.Unread() != 1 {
		t.Fatalf("unread=%d want 1", c.Unread())
	}
	if n := c.MarkAllRead(ctx); n != 1 {
		t.Fatalf("MarkAllRead=%d want 1", n)
	}
	if c.Unread() != 0 {
		t.Fatalf("unread=%d want 0", c.Unread())
	}
}

func TestLoad_RestoresPersistedLog(t *testing.T) {
	store := state.NewMemoryStore()
	ctx := context.Background()
	c := NewCenter(store, nil)
	c.PriceDropped(ctx, "Dell G15", "GearVN", decimal.NewFromInt(23995000))
	c.BatchCompleted(ctx, "", 3)

	restored := NewCenter(store, nil)
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	items := restored.List()
	if len(items) != 2 {
		t.Fatalf("len=%d want 2", len(items))
	}
	if items[0].Type != TypeSuccess || items[1].Type != TypeWarning {
		t.Fatalf("types=%s,%s want success,warning", items[0].Type, items[1].Type)
	}
	if items[1].Message != "Competitor GearVN dropped the price of Dell G15 to 23,995,000đ" {
		t.Fatalf("message=%q", items[1].Message)
	}
}

func TestFormatPrice(t *testing.T) {
	cases := map[string]string{
		"0":        "0đ",
		"999":      "999đ",
		"1000":     "1,000đ",
		"24000000": "24,000,000đ",
		"-5000":    "-5,000đ",
	}
	for in, want := range cases {
		if got := FormatPrice(decimal.RequireFromString(in)); got != want {
			t.Errorf("FormatPrice(%s)=%s want %s", in, got, want)
		}
	}
}
