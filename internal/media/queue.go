// Package media serializes attachment downloads into an on-disk cache.
// Exactly one download is in flight at any instant, system-wide: the queue
// is a deliberate throttle against overlapping writes to the cache
// directory on constrained storage.
package media

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Andrew-022/michatapp-sub000/internal/attachfs"
	"github.com/Andrew-022/michatapp-sub000/internal/store"
)

// Queue downloads attachments one at a time, FIFO, into the cache
// directory, and maintains the per-conversation attachment index.
type Queue struct {
	fs     attachfs.FS
	kv     store.KV
	dir    string
	prefix string // "file://" on Android, empty elsewhere
	logger *zap.Logger

	mu    sync.Mutex
	tasks []*task
	busy  bool
}

type task struct {
	remoteURL      string
	conversationID string
	done           chan struct{}
	localPath      string // resolved path, empty on failure
}

// Options configures a Queue.
type Options struct {
	// Dir is the on-disk cache directory.
	Dir string
	// FileScheme prepends "file://" to resolved paths. Android image views
	// require the scheme; other platforms take the bare path.
	FileScheme bool
}

// NewQueue creates an attachment download queue.
func NewQueue(fs attachfs.FS, kv store.KV, opts Options, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := ""
	if opts.FileScheme {
		prefix = "file://"
	}
	return &Queue{
		fs:     fs,
		kv:     kv,
		dir:    opts.Dir,
		prefix: prefix,
		logger: logger,
	}
}

// EnqueueDownload appends a download task and blocks until that task has
// been processed. It returns the resolved local path, or "" when the
// download failed — failures are not errors to the caller. The returned
// error is only ever the caller's own context expiring; the download
// itself still runs to completion in the background.
func (q *Queue) EnqueueDownload(ctx context.Context, remoteURL, conversationID string) (string, error) {
	t := &task{
		remoteURL:      remoteURL,
		conversationID: conversationID,
		done:           make(chan struct{}),
	}

	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	if !q.busy {
		q.busy = true
		go q.run()
	}
	q.mu.Unlock()

	select {
	case <-t.done:
		return t.localPath, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// run drains the queue. Only one run loop exists at a time; it exits when
// the queue is empty and clears the busy flag under the same lock that
// enqueuers take, so no task is ever stranded.
func (q *Queue) run() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.busy = false
			q.mu.Unlock()
			return
		}
		t := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		t.localPath = q.process(context.Background(), t)
		close(t.done)
	}
}

func (q *Queue) process(ctx context.Context, t *task) string {
	// Already cached from an earlier message referencing the same url.
	if p := q.LookupLocal(ctx, t.remoteURL, t.conversationID); p != "" {
		return p
	}

	if err := q.fs.MkdirAll(ctx, q.dir); err != nil {
		q.logger.Warn("attachment cache dir unavailable", zap.String("dir", q.dir), zap.Error(err))
		q.recordEntry(ctx, t.conversationID, t.remoteURL, "")
		return ""
	}

	dest := filepath.Join(q.dir, localFilename(t.conversationID, t.remoteURL))

	status, err := q.fs.Download(ctx, t.remoteURL, dest)
	if err != nil || status != 200 {
		q.logger.Warn("attachment download failed",
			zap.String("url", t.remoteURL),
			zap.Int("status", status),
			zap.Error(err))
		q.recordEntry(ctx, t.conversationID, t.remoteURL, "")
		return ""
	}

	ok, err := q.fs.Exists(ctx, dest)
	if err != nil || !ok {
		q.logger.Warn("downloaded attachment missing on disk", zap.String("path", dest), zap.Error(err))
		q.recordEntry(ctx, t.conversationID, t.remoteURL, "")
		return ""
	}

	q.recordEntry(ctx, t.conversationID, t.remoteURL, dest)
	return q.prefix + dest
}

// LookupLocal consults the attachment index without enqueueing anything.
// The cached file is re-verified on disk before its path is returned.
func (q *Queue) LookupLocal(ctx context.Context, remoteURL, conversationID string) string {
	index := LoadIndex(ctx, q.kv, conversationID)
	entry, ok := index[remoteURL]
	if !ok || entry.LocalPath == "" {
		return ""
	}
	exists, err := q.fs.Exists(ctx, entry.LocalPath)
	if err != nil || !exists {
		return ""
	}
	return q.prefix + entry.LocalPath
}

// AdoptLocal registers an already-local file as the cached copy for a
// remote url, skipping the download path entirely. The send pipeline uses
// it for assets that originated on this device.
func (q *Queue) AdoptLocal(ctx context.Context, remoteURL, conversationID, localPath string) {
	q.recordEntry(ctx, conversationID, remoteURL, localPath)
}

// EvictOlderThan removes cached files whose modification time is older
// than maxAge. Best-effort: individual failures are logged and skipped.
func (q *Queue) EvictOlderThan(ctx context.Context, maxAge time.Duration) {
	entries, err := q.fs.ListDir(ctx, q.dir)
	if err != nil {
		q.logger.Warn("attachment cache scan failed", zap.String("dir", q.dir), zap.Error(err))
		return
	}
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		p := filepath.Join(q.dir, e.Name)
		mtime, err := q.fs.Stat(ctx, p)
		if err != nil {
			continue
		}
		if mtime.Before(cutoff) {
			if err := q.fs.Unlink(ctx, p); err != nil {
				q.logger.Warn("attachment evict failed", zap.String("path", p), zap.Error(err))
			}
		}
	}
}

func (q *Queue) recordEntry(ctx context.Context, conversationID, remoteURL, localPath string) {
	if err := SaveIndexEntry(ctx, q.kv, conversationID, remoteURL, localPath); err != nil {
		q.logger.Warn("attachment index write failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
}

// localFilename builds a conversation-scoped unique name, keeping the
// remote extension so image viewers can sniff the type.
func localFilename(conversationID, remoteURL string) string {
	ext := path.Ext(remoteURL)
	if i := strings.IndexByte(ext, '?'); i >= 0 {
		ext = ext[:i]
	}
	if len(ext) > 8 {
		ext = ""
	}
	return sanitize(conversationID) + "_" + uuid.NewString() + ext
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}
