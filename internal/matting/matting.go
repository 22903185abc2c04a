// Package matting removes backgrounds from reference images through a
// rembg server.
package matting

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/botforge/forge3d/internal/apperr"
	"github.com/botforge/forge3d/internal/imageutil"
)

// Remover cuts the subject out of an image
type Remover interface {
	Remove(ctx context.Context, img image.Image) (image.Image, error)
}

// Disabled is used when no matting server is configured
type Disabled struct{}

func (Disabled) Remove(context.Context, image.Image) (image.Image, error) {
	return nil, apperr.New(apperr.ErrUnavailable, "background removal is not configured; set matting.url to a rembg server")
}

// RembgClient talks to `rembg s`
type RembgClient struct {
	url    string
	client *http.Client
}

func NewRembgClient(url string, timeout time.Duration) *RembgClient {
	return &RembgClient{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// New returns a client for url, or Disabled when url is empty
func New(url string, timeout time.Duration) Remover {
	if url == "" {
		return Disabled{}
	}
	return NewRembgClient(url, timeout)
}

func (c *RembgClient) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, err
	}
	if err := imageutil.EncodePNG(part, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	endpoint := c.url + "/api/remove"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUnavailable, err, "rembg server not reachable at %s", c.url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &apperr.UpstreamError{URL: endpoint, Status: resp.StatusCode}
	}

	return imageutil.Decode(resp.Body)
}
