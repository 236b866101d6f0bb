package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Andrew-022/michatapp-sub000/internal/store"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestGetMissing(t *testing.T) {
	db := testDB(t)
	_, err := db.Get(context.Background(), "nope")
	if err != store.ErrNotFound {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestSetGetOverwrite(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.Set(ctx, "messages:c1", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := db.Set(ctx, "messages:c1", "v2"); err != nil {
		t.Fatal(err)
	}

	got, err := db.Get(ctx, "messages:c1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "v2" {
		t.Errorf("Get() = %q, want v2 (overwrite)", got)
	}
}

func TestRemove(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		if err := db.Set(ctx, k, "v"); err != nil {
			t.Fatal(err)
		}
	}

	if err := db.Remove(ctx, "a", "b", "missing"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if _, err := db.Get(ctx, "a"); err != store.ErrNotFound {
		t.Error("key a still present after Remove")
	}
	if _, err := db.Get(ctx, "c"); err != nil {
		t.Errorf("key c lost: %v", err)
	}
}

func TestRemoveEmpty(t *testing.T) {
	db := testDB(t)
	if err := db.Remove(context.Background()); err != nil {
		t.Errorf("Remove() with no keys error = %v", err)
	}
}
