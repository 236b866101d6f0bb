package chat

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Andrew-022/michatapp-sub000/internal/attachfs"
	"github.com/Andrew-022/michatapp-sub000/internal/bus"
	"github.com/Andrew-022/michatapp-sub000/internal/cache"
	"github.com/Andrew-022/michatapp-sub000/internal/conv"
	"github.com/Andrew-022/michatapp-sub000/internal/feed"
	"github.com/Andrew-022/michatapp-sub000/internal/media"
	"github.com/Andrew-022/michatapp-sub000/internal/model"
	"github.com/Andrew-022/michatapp-sub000/internal/outbox"
	"github.com/Andrew-022/michatapp-sub000/internal/payload"
	"github.com/Andrew-022/michatapp-sub000/internal/store/boltstore"
	intsync "github.com/Andrew-022/michatapp-sub000/internal/sync"
)

// fakeFeed hands the test control of the push side.
type fakeFeed struct {
	mu           sync.Mutex
	onBatch      func([]feed.Record)
	unsubscribed bool
}

func (f *fakeFeed) Subscribe(_ string, onBatch func([]feed.Record), _ func(error)) (func(), error) {
	f.mu.Lock()
	f.onBatch = onBatch
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.unsubscribed = true
		f.mu.Unlock()
	}, nil
}

func (f *fakeFeed) Write(context.Context, string, feed.Record) (string, error) {
	return "srv1", nil
}

func (f *fakeFeed) UpdateSummary(context.Context, string, feed.Summary) error { return nil }

func (f *fakeFeed) push(records []feed.Record) {
	f.mu.Lock()
	onBatch := f.onBatch
	f.mu.Unlock()
	onBatch(records)
}

type nullFS struct{}

func (nullFS) Exists(context.Context, string) (bool, error)              { return false, nil }
func (nullFS) MkdirAll(context.Context, string) error                    { return nil }
func (nullFS) Download(context.Context, string, string) (int, error)     { return 200, nil }
func (nullFS) Stat(context.Context, string) (time.Time, error)           { return time.Time{}, nil }
func (nullFS) Unlink(context.Context, string) error                      { return nil }
func (nullFS) ListDir(context.Context, string) ([]attachfs.Entry, error) { return nil, nil }

type nullUploader struct{}

func (nullUploader) Upload(context.Context, string) (string, error) {
	return "https://cdn.example.com/x.jpg", nil
}

func newManager(t *testing.T, ff *fakeFeed) (*Manager, *payload.Codec) {
	t.Helper()
	kv, err := boltstore.Open(filepath.Join(t.TempDir(), "test.bolt"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kv.Close() })

	codec := payload.NewCodec(nil)
	c := cache.New(kv, nullFS{}, nil)
	images := media.NewQueue(nullFS{}, kv, media.Options{Dir: "/cache"}, nil)
	registry := conv.NewRegistry(bus.New())
	engine := intsync.NewEngine(registry, c, codec, images, "me", nil)
	pipeline := outbox.NewPipeline(registry, c, codec, images, ff, nullUploader{}, "me", nil)
	return NewManager(ff, engine, pipeline, registry, nil), codec
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestOpenAttachesAndReconciles(t *testing.T) {
	ff := &fakeFeed{}
	m, codec := newManager(t, ff)

	s, err := m.Open("conv-1")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Cleanup()

	if !s.Loading() {
		t.Error("session not loading before first batch")
	}
	if m.Current() != s {
		t.Error("opened session is not current")
	}

	ff.push([]feed.Record{{
		ID: "m1", SenderID: "them", CreatedAt: time.Now(),
		Kind: model.KindText, Text: codec.Encrypt("hello", "conv-1"),
	}})

	waitFor(t, func() bool { return len(s.Messages()) == 1 })
	if got := s.Messages()[0].Text; got != "hello" {
		t.Errorf("text = %q, want decrypted", got)
	}
	waitFor(t, func() bool { return !s.Loading() })
}

func TestSendThroughSession(t *testing.T) {
	ff := &fakeFeed{}
	m, _ := newManager(t, ff)

	s, err := m.Open("conv-1")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Cleanup()

	task := s.SendText("hi")
	if len(s.Messages()) != 1 {
		t.Fatal("optimistic echo missing")
	}
	<-task.Done()
	if got := s.Messages()[0]; got.ID != "srv1" || got.Status != model.StatusSent {
		t.Errorf("message = %+v, want confirmed", got)
	}
}

func TestCleanupDetaches(t *testing.T) {
	ff := &fakeFeed{}
	m, _ := newManager(t, ff)

	s, err := m.Open("conv-1")
	if err != nil {
		t.Fatal(err)
	}

	s.Cleanup()

	ff.mu.Lock()
	unsubbed := ff.unsubscribed
	ff.mu.Unlock()
	if !unsubbed {
		t.Error("Cleanup() did not unsubscribe from the feed")
	}
	if m.Current() != nil {
		t.Error("current conversation pointer not reset")
	}
}

func TestSetReplyTarget(t *testing.T) {
	ff := &fakeFeed{}
	m, _ := newManager(t, ff)

	s, err := m.Open("conv-1")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Cleanup()

	s.SetReplyTarget(&model.ReplyTarget{ID: "m5", Text: "quoted", Kind: model.KindText})
	task := s.SendText("reply")
	<-task.Done()

	if got := s.Messages()[0]; got.ReplyToID != "m5" || got.ReplyToText != "quoted" {
		t.Errorf("reply fields = %q/%q", got.ReplyToID, got.ReplyToText)
	}
}
