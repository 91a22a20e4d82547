// Package archive downloads advisory archives and pulls the forecast layers
// out of them.
package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/storm-tracker-service/internal/domain"
	"github.com/go-resty/resty/v2"
)

const chunkSize = 8192

// Fetcher streams archives to disk.
type Fetcher struct {
	client *resty.Client
	logger *slog.Logger
}

// NewFetcher creates a Fetcher. A zero timeout leaves downloads unbounded.
func NewFetcher(timeout time.Duration, logger *slog.Logger) *Fetcher {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &Fetcher{client: client, logger: logger.With("component", "archive_fetcher")}
}

// Fetch downloads url into dir/name in fixed-size chunks and returns the file
// path. Network errors and non-2xx responses wrap domain.ErrArchiveFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, url, dir, name string) (string, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrArchiveFetchFailed, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if !resp.IsSuccess() {
		return "", fmt.Errorf("%w: status %d from %s", domain.ErrArchiveFetchFailed, resp.StatusCode(), url)
	}

	path := filepath.Join(dir, name)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}

	n, err := io.CopyBuffer(out, body, make([]byte, chunkSize))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%w: stream body: %w", domain.ErrArchiveFetchFailed, err)
	}

	f.logger.Debug("archive downloaded", "url", url, "bytes", n)
	return path, nil
}
