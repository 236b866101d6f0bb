package attachfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Local implements FS over the OS filesystem and an HTTP client.
type Local struct {
	client *http.Client
}

// NewLocal creates a Local filesystem. A nil client uses http.DefaultClient.
func NewLocal(client *http.Client) *Local {
	if client == nil {
		client = http.DefaultClient
	}
	return &Local{client: client}
}

func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (l *Local) MkdirAll(_ context.Context, path string) error {
	return os.MkdirAll(path, 0700)
}

// Download fetches url into toPath. The partial file is removed when the
// response is not 200 or the body copy fails.
func (l *Local) Download(ctx context.Context, url, toPath string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}

	f, err := os.OpenFile(toPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("open %s: %w", toPath, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(toPath)
		return resp.StatusCode, fmt.Errorf("write %s: %w", toPath, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(toPath)
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}

func (l *Local) Stat(_ context.Context, path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (l *Local) Unlink(_ context.Context, path string) error {
	return os.Remove(path)
}

func (l *Local) ListDir(_ context.Context, path string) ([]Entry, error) {
	dirents, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		entries = append(entries, Entry{Name: de.Name(), IsDir: de.IsDir()})
	}
	return entries, nil
}
