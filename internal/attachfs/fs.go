// Package attachfs is the filesystem capability the attachment cache runs
// on: a narrow surface over the local disk plus a URL-to-file download.
package attachfs

import (
	"context"
	"time"
)

// Entry is one directory listing result.
type Entry struct {
	Name  string
	IsDir bool
}

// FS is the attachment filesystem capability. Callers treat any failure
// as "file absent"; nothing here is fatal.
type FS interface {
	Exists(ctx context.Context, path string) (bool, error)
	MkdirAll(ctx context.Context, path string) error
	// Download fetches url into toPath and returns the HTTP status code.
	Download(ctx context.Context, url, toPath string) (int, error)
	// Stat returns the file's modification time.
	Stat(ctx context.Context, path string) (time.Time, error)
	Unlink(ctx context.Context, path string) error
	ListDir(ctx context.Context, path string) ([]Entry, error)
}
