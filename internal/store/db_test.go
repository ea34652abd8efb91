package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenMemory(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if db.Path != ":memory:" {
		t.Errorf("Path = %q, want :memory:", db.Path)
	}
}

func TestSchemaVersion(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 2 {
		t.Errorf("SchemaVersion = %d, want 2", v)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 2 {
		t.Errorf("SchemaVersion after re-migrate = %d, want 2", v)
	}
}

func TestOpenFileReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "attention.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := db.KV("c").Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	got, err := db.KV("c").Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Get = %q, want v", got)
	}
}

func TestSQLiteKV(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	kv := db.KV("concepts")
	other := db.KV("links")

	got, err := kv.Get(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("Get missing = %q, %v; want nil, nil", got, err)
	}

	if err := kv.Put(ctx, "bird", []byte(`{"term":"bird"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := kv.Put(ctx, "bird", []byte(`{"term":"bird","v":2}`)); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, err = kv.Get(ctx, "bird")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"term":"bird","v":2}` {
		t.Errorf("Get = %s", got)
	}

	if got, _ := other.Get(ctx, "bird"); got != nil {
		t.Errorf("namespaces leak: %s", got)
	}

	if n, err := kv.Count(ctx); err != nil || n != 1 {
		t.Errorf("Count = %d, %v; want 1", n, err)
	}

	if err := kv.Delete(ctx, "bird"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := kv.Delete(ctx, "bird"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if got, _ := kv.Get(ctx, "bird"); got != nil {
		t.Errorf("Get after Delete = %s", got)
	}
}

func TestSQLiteKVPrune(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	kv := db.KV("c")

	if _, err := db.Exec(
		"INSERT INTO bag_items (namespace, key, value, updated_at) VALUES ('c', 'old', x'00', 1)",
	); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := kv.Put(ctx, "new", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	n, err := kv.Prune(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("Prune removed %d, want 1", n)
	}
	if got, _ := kv.Get(ctx, "new"); string(got) != "x" {
		t.Errorf("new item pruned")
	}
}

func TestSQLiteKVClosed(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	kv := db.KV("c")
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	ctx := context.Background()
	if _, err := kv.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get err = %v, want ErrClosed", err)
	}
	if err := kv.Put(ctx, "k", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Put err = %v, want ErrClosed", err)
	}
	if err := kv.Delete(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Delete err = %v, want ErrClosed", err)
	}
}
