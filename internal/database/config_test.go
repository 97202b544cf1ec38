package database

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestTargetDSN_EncodesCredentials(t *testing.T) {
	cfg := DBConfig{User: "price", Password: "p@ss word", Host: "db", Port: "5432", DBName: "pricewatch"}
	dsn := cfg.TargetDSN()
	if !strings.HasPrefix(dsn, "postgres://price:p%40ss%20word@db:5432/pricewatch") {
		t.Fatalf("dsn=%s", dsn)
	}
	if !strings.Contains(dsn, "sslmode=disable") {
		t.Fatalf("dsn=%s want sslmode=disable", dsn)
	}
}

func TestAdminDSN_EmptyWithoutSuperUser(t *testing.T) {
	cfg := DBConfig{User: "price", Host: "db", Port: "5432", DBName: "pricewatch"}
	if got := cfg.AdminDSN(); got != "" {
		t.Fatalf("admin dsn=%q want empty", got)
	}
	cfg.SuperUser = "postgres"
	if got := cfg.AdminDSN(); !strings.Contains(got, "/postgres?") {
		t.Fatalf("admin dsn=%q want maintenance db", got)
	}
}

func TestConnect_RejectsIncompleteConfig(t *testing.T) {
	_, err := Connect(context.Background(), DBConfig{Host: "db"}, nil)
	if !errors.Is(err, ErrIncompleteConfig) {
		t.Fatalf("err=%v want ErrIncompleteConfig", err)
	}
}
