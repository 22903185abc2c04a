package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/time/rate"

	"github.com/botforge/forge3d/internal/apperr"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

var vqdPattern = regexp.MustCompile(`vqd=["']?([0-9-]+)`)

// DuckDuckGo searches images through the duckduckgo.com web endpoints:
// the landing page hands out a vqd token which the i.js JSON endpoint
// requires
type DuckDuckGo struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

func NewDuckDuckGo(endpoint string, perSecond float64, client *http.Client) *DuckDuckGo {
	if endpoint == "" {
		endpoint = "https://duckduckgo.com"
	}
	if client == nil {
		client = http.DefaultClient
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &DuckDuckGo{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

type ddgResponse struct {
	Results []struct {
		Image string `json:"image"`
		Title string `json:"title"`
	} `json:"results"`
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, max int) ([]Result, error) {
	token, err := d.token(ctx, query)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"l":   {"us-en"},
		"o":   {"json"},
		"q":   {query},
		"vqd": {token},
		"f":   {",,,,,"},
		"p":   {"1"},
	}
	body, err := d.get(ctx, d.endpoint+"/i.js?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp ddgResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, err, "unexpected image search response")
	}

	results := make([]Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Image == "" {
			continue
		}
		results = append(results, Result{URL: r.Image, Title: r.Title})
		if max > 0 && len(results) == max {
			break
		}
	}
	return results, nil
}

func (d *DuckDuckGo) token(ctx context.Context, query string) (string, error) {
	params := url.Values{"q": {query}, "iax": {"images"}, "ia": {"images"}}
	body, err := d.get(ctx, d.endpoint+"/?"+params.Encode())
	if err != nil {
		return "", err
	}
	m := vqdPattern.FindSubmatch(body)
	if m == nil {
		return "", apperr.New(apperr.ErrUpstream, "image search token not found")
	}
	return string(m[1]), nil
}

func (d *DuckDuckGo) get(ctx context.Context, u string) ([]byte, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", d.endpoint+"/")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, err, "image search request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apperr.UpstreamError{URL: redact(u), Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	return body, nil
}

// redact drops the query string, which carries the session token
func redact(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}
