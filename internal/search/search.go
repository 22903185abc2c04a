// Package search finds reference images on the web and downloads them.
package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/botforge/forge3d/internal/apperr"
)

// Result is one image hit
type Result struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Provider runs image searches
type Provider interface {
	Search(ctx context.Context, query string, max int) ([]Result, error)
}

// Disabled is the provider used when no search backend is configured
type Disabled struct{}

func (Disabled) Search(context.Context, string, int) ([]Result, error) {
	return nil, apperr.New(apperr.ErrUnavailable, "image search is not configured; set search.provider to duckduckgo")
}

type Options struct {
	Provider      string
	Endpoint      string
	RatePerSecond float64
	Timeout       time.Duration
}

// NewProvider builds the provider named in opts
func NewProvider(opts Options) (Provider, error) {
	switch strings.ToLower(opts.Provider) {
	case "", "none":
		return Disabled{}, nil
	case "duckduckgo", "ddg":
		client := &http.Client{Timeout: opts.Timeout}
		return NewDuckDuckGo(opts.Endpoint, opts.RatePerSecond, client), nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", opts.Provider)
	}
}
