package processor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/madcok-co/consumerd/internal/apierr"
)

func TestDatabaseSync_MissingDSNIsBadConfig(t *testing.T) {
	_, err := NewDatabaseSync("p1", map[string]any{})
	if !apierr.Is(err, apierr.BadConfig) {
		t.Fatalf("expected BadConfig, got %v", err)
	}
}

func TestDatabaseSync_InsertsRow(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "sync.db")
	p, err := NewDatabaseSync("p1", map[string]any{"db_dsn": dsn})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer p.Close()

	rec := Record{Topic: "t", Partition: 0, Offset: 42, Key: []byte("k"), Value: []byte("v")}
	if err := p.Process(context.Background(), rec); err != nil {
		t.Fatalf("process: %v", err)
	}

	ds := p.(*DatabaseSync)
	var count int64
	if err := ds.db.Table(ds.table).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestDatabaseSync_CustomTableName(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "sync.db")
	p, err := NewDatabaseSync("p1", map[string]any{"db_dsn": dsn, "table": "custom_rows"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer p.Close()

	ds := p.(*DatabaseSync)
	if ds.table != "custom_rows" {
		t.Fatalf("expected custom table name, got %q", ds.table)
	}
	if !ds.db.Migrator().HasTable("custom_rows") {
		t.Fatalf("expected custom_rows table to exist")
	}
}

func TestDatabaseSync_SafeToCloseAfterProcess(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "sync.db")
	p, _ := NewDatabaseSync("p1", map[string]any{"db_dsn": dsn})

	_ = p.Process(context.Background(), Record{Value: []byte("x")})
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
