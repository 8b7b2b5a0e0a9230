package assets

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DownloadOptions bounds remote fetches.
type DownloadOptions struct {
	Timeout  time.Duration
	MaxBytes int64
	Client   *http.Client // optional, for tests
}

type downloader struct {
	httpClient *http.Client
	maxBytes   int64
}

func newDownloader(opts DownloadOptions) *downloader {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	c := opts.Client
	if c == nil {
		c = &http.Client{Timeout: opts.Timeout}
	}
	return &downloader{httpClient: c, maxBytes: opts.MaxBytes}
}

// Download fetches rawURL and stores the body under a generated name. The
// extension comes from the URL path, or from the Content-Type when the path
// has none.
func (s *Store) Download(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("download %q: unsupported url", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := s.dl.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("download %s: status %d: %s", rawURL, resp.StatusCode, string(respBody))
	}
	if resp.ContentLength > s.dl.maxBytes {
		return "", fmt.Errorf("download %s: %w: %d bytes", rawURL, ErrTooLarge, resp.ContentLength)
	}

	ext := extOf(path.Base(u.Path))
	if ext == "" {
		ext = extForType(resp.Header.Get("Content-Type"))
	}
	name, err := s.write(ext, io.LimitReader(resp.Body, s.dl.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	return name, nil
}

func extForType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mt {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	}
	if exts, err := mime.ExtensionsByType(mt); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// Close releases idle connections.
func (s *Store) Close() {
	s.dl.httpClient.CloseIdleConnections()
}
