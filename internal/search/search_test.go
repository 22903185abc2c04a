package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforge/forge3d/internal/apperr"
)

func ddgServer(t *testing.T, results string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var searches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<html><script>vqd="4-123456789012345678901234567890";</script></html>`))
	})
	mux.HandleFunc("/i.js", func(w http.ResponseWriter, r *http.Request) {
		searches.Add(1)
		if r.URL.Query().Get("vqd") != "4-123456789012345678901234567890" {
			http.Error(w, "bad token", http.StatusForbidden)
			return
		}
		assert.Equal(t, "json", r.URL.Query().Get("o"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(results))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &searches
}

func TestDuckDuckGoSearch(t *testing.T) {
	srv, _ := ddgServer(t, `{"results":[
		{"image":"https://img.example/1.png","title":"one"},
		{"image":"","title":"skipped"},
		{"image":"https://img.example/2.png","title":"two"},
		{"image":"https://img.example/3.png","title":"three"}
	]}`)

	d := NewDuckDuckGo(srv.URL, 0, srv.Client())
	results, err := d.Search(context.Background(), "robot arm", 2)
	require.NoError(t, err)

	assert.Equal(t, []Result{
		{URL: "https://img.example/1.png", Title: "one"},
		{URL: "https://img.example/2.png", Title: "two"},
	}, results)
}

func TestDuckDuckGoNoResults(t *testing.T) {
	srv, _ := ddgServer(t, `{"results":[]}`)

	d := NewDuckDuckGo(srv.URL, 0, srv.Client())
	results, err := d.Search(context.Background(), "nothing", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDuckDuckGoErrors(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html></html>"))
		}))
		defer srv.Close()

		_, err := NewDuckDuckGo(srv.URL, 0, srv.Client()).Search(context.Background(), "q", 5)
		assert.ErrorIs(t, err, apperr.ErrUpstream)
	})

	t.Run("rate limited upstream", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewDuckDuckGo(srv.URL, 0, srv.Client()).Search(context.Background(), "q", 5)
		var upstream *apperr.UpstreamError
		require.ErrorAs(t, err, &upstream)
		assert.Equal(t, http.StatusTooManyRequests, upstream.Status)
		assert.Equal(t, http.StatusBadGateway, apperr.Status(err))
	})
}

func TestDuckDuckGoRateLimit(t *testing.T) {
	srv, _ := ddgServer(t, `{"results":[]}`)

	d := NewDuckDuckGo(srv.URL, 20, srv.Client())
	start := time.Now()
	_, err := d.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	_, err = d.Search(context.Background(), "q", 5)
	require.NoError(t, err)

	// four requests at 20/s with a burst of one
	assert.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)
}

func TestCache(t *testing.T) {
	srv, searches := ddgServer(t, `{"results":[{"image":"https://img.example/1.png","title":"one"}]}`)

	var hits, misses int
	c := NewCache(NewDuckDuckGo(srv.URL, 0, srv.Client()), 8, time.Minute)
	c.OnLookup = func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}

	for i := 0; i < 3; i++ {
		results, err := c.Search(context.Background(), "robot", 5)
		require.NoError(t, err)
		require.Len(t, results, 1)
	}
	_, err := c.Search(context.Background(), "robot", 1)
	require.NoError(t, err)

	assert.Equal(t, int32(2), searches.Load())
	assert.Equal(t, 2, hits)
	assert.Equal(t, 2, misses)
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	c := NewCache(Disabled{}, 8, time.Minute)
	_, err := c.Search(context.Background(), "robot", 5)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
	assert.Equal(t, 0, c.lru.Len())
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(Options{Provider: "none"})
	require.NoError(t, err)
	assert.IsType(t, Disabled{}, p)

	p, err = NewProvider(Options{Provider: "DuckDuckGo", Endpoint: "http://localhost:1"})
	require.NoError(t, err)
	assert.IsType(t, &DuckDuckGo{}, p)

	_, err = NewProvider(Options{Provider: "altavista"})
	assert.Error(t, err)

	_, err = Disabled{}.Search(context.Background(), "q", 5)
	assert.Equal(t, http.StatusServiceUnavailable, apperr.Status(err))
}

func TestFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Write([]byte("png bytes"))
		case "/big.png":
			w.Write([]byte(strings.Repeat("x", 64)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(time.Second, 32)

	data, err := f.Download(context.Background(), srv.URL+"/ok.png")
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(data))

	_, err = f.Download(context.Background(), srv.URL+"/missing.png")
	var upstream *apperr.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusNotFound, upstream.Status)

	_, err = f.Download(context.Background(), srv.URL+"/big.png")
	assert.ErrorIs(t, err, apperr.ErrUpstream)

	_, err = f.Download(context.Background(), "http://127.0.0.1:1/unreachable.png")
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}
