package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// HTTPUploader implements Uploader against a blob store that accepts PUTs
// and serves the object back at the same URL.
type HTTPUploader struct {
	BaseURL string
	Client  *http.Client
}

// Upload PUTs the file and returns its public URL.
func (u *HTTPUploader) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	url := strings.TrimRight(u.BaseURL, "/") + "/" + uuid.NewString() + filepath.Ext(localPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, f)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}

	client := u.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", localPath, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload %s: status %d", localPath, resp.StatusCode)
	}
	return url, nil
}
