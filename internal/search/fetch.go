package search

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/botforge/forge3d/internal/apperr"
)

// Fetcher downloads images with a bounded time and size
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

func (f *Fetcher) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalid, err, "bad image url %q", url)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, err, "download of %s failed", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apperr.UpstreamError{URL: url, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, err, "download of %s failed", url)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, apperr.New(apperr.ErrUpstream, "%s is larger than %d bytes", url, f.maxBytes)
	}
	return data, nil
}
