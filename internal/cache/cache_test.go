package cache

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Andrew-022/michatapp-sub000/internal/attachfs"
	"github.com/Andrew-022/michatapp-sub000/internal/media"
	"github.com/Andrew-022/michatapp-sub000/internal/model"
	"github.com/Andrew-022/michatapp-sub000/internal/store"
	"github.com/Andrew-022/michatapp-sub000/internal/store/boltstore"
)

// fakeFS records unlinks; the cache only needs Unlink from the interface.
type fakeFS struct {
	mu       sync.Mutex
	unlinked []string
}

func (f *fakeFS) Exists(context.Context, string) (bool, error) { return true, nil }
func (f *fakeFS) MkdirAll(context.Context, string) error       { return nil }
func (f *fakeFS) Download(context.Context, string, string) (int, error) {
	return 200, nil
}
func (f *fakeFS) Stat(context.Context, string) (time.Time, error) { return time.Time{}, nil }
func (f *fakeFS) Unlink(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlinked = append(f.unlinked, path)
	return nil
}
func (f *fakeFS) ListDir(context.Context, string) ([]attachfs.Entry, error) { return nil, nil }

func testKV(t *testing.T) store.KV {
	t.Helper()
	kv, err := boltstore.Open(filepath.Join(t.TempDir(), "test.bolt"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func TestLoadMissing(t *testing.T) {
	c := New(testKV(t), &fakeFS{}, nil)
	if snap := c.Load(context.Background(), "conv-1"); snap != nil {
		t.Errorf("Load() = %+v, want nil on miss", snap)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c := New(testKV(t), &fakeFS{}, nil)
	ctx := context.Background()

	created := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	msgs := []model.Message{
		{ID: "m2", SenderID: "u2", CreatedAt: created.Add(time.Minute), Kind: model.KindText, Text: "two", Status: model.StatusSent},
		{ID: "m1", SenderID: "u2", CreatedAt: created, Kind: model.KindImage, ImageURL: "https://cdn/x.jpg", Status: model.StatusSent},
	}
	if err := c.Save(ctx, "conv-1", msgs); err != nil {
		t.Fatal(err)
	}

	snap := c.Load(ctx, "conv-1")
	if snap == nil {
		t.Fatal("Load() = nil after Save")
	}
	if len(snap.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(snap.Messages))
	}
	if !snap.Messages[1].CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v (date restored)", snap.Messages[1].CreatedAt, created)
	}
	if snap.Messages[1].Kind != model.KindImage {
		t.Errorf("Kind = %q, want image", snap.Messages[1].Kind)
	}
	if snap.LastSyncAt.IsZero() {
		t.Error("LastSyncAt not set by Save")
	}
}

func TestLoadCorruptReturnsNil(t *testing.T) {
	kv := testKV(t)
	c := New(kv, &fakeFS{}, nil)
	ctx := context.Background()

	if err := kv.Set(ctx, store.MessagesKey("conv-1"), "{not json"); err != nil {
		t.Fatal(err)
	}
	if snap := c.Load(ctx, "conv-1"); snap != nil {
		t.Error("Load() of corrupt snapshot should be nil, not an error")
	}
}

func TestLastSyncAt(t *testing.T) {
	c := New(testKV(t), &fakeFS{}, nil)
	ctx := context.Background()

	if got := c.LastSyncAt(ctx, "conv-1"); !got.IsZero() {
		t.Errorf("LastSyncAt() before any save = %v, want zero", got)
	}

	before := time.Now()
	if err := c.Save(ctx, "conv-1", nil); err != nil {
		t.Fatal(err)
	}
	got := c.LastSyncAt(ctx, "conv-1")
	if got.Before(before.Add(-time.Second)) {
		t.Errorf("LastSyncAt() = %v, want >= %v", got, before)
	}
}

func TestClear(t *testing.T) {
	kv := testKV(t)
	fs := &fakeFS{}
	c := New(kv, fs, nil)
	ctx := context.Background()

	if err := c.Save(ctx, "conv-1", []model.Message{{ID: "m1", Status: model.StatusSent}}); err != nil {
		t.Fatal(err)
	}
	if err := media.SaveIndexEntry(ctx, kv, "conv-1", "https://cdn/a.jpg", "/cache/a.jpg"); err != nil {
		t.Fatal(err)
	}
	if err := media.SaveIndexEntry(ctx, kv, "conv-1", "https://cdn/b.jpg", ""); err != nil {
		t.Fatal(err)
	}

	if err := c.Clear(ctx, "conv-1"); err != nil {
		t.Fatal(err)
	}

	if snap := c.Load(ctx, "conv-1"); snap != nil {
		t.Error("snapshot survived Clear")
	}
	if got := c.LastSyncAt(ctx, "conv-1"); !got.IsZero() {
		t.Error("sync watermark survived Clear")
	}
	if _, err := kv.Get(ctx, store.AttachmentsKey("conv-1")); err != store.ErrNotFound {
		t.Error("attachment index survived Clear")
	}
	// Only the entry with a real local path gets unlinked.
	if len(fs.unlinked) != 1 || fs.unlinked[0] != "/cache/a.jpg" {
		t.Errorf("unlinked = %v, want [/cache/a.jpg]", fs.unlinked)
	}
}
