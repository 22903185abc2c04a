package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"invalid", fmt.Errorf("bad rotation: %w", ErrInvalid), http.StatusBadRequest},
		{"not found", fmt.Errorf("part not found: a.glb: %w", ErrNotFound), http.StatusNotFound},
		{"unavailable", fmt.Errorf("model unavailable: %w", ErrUnavailable), http.StatusServiceUnavailable},
		{"timeout", fmt.Errorf("rigging: %w", ErrTimeout), http.StatusGatewayTimeout},
		{"upstream", &UpstreamError{URL: "http://x", Status: 403}, http.StatusBadGateway},
		{"wrapped upstream", fmt.Errorf("download: %w", &UpstreamError{URL: "http://x", Status: 500}), http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
		{"context", context.Canceled, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Generation failed: boom", Message("Generation", errors.New("boom")))

	err := fmt.Errorf("part not found: /parts/generated/a.glb: %w", ErrNotFound)
	assert.Equal(t, err.Error(), Message("Merge", err))
}

func TestError(t *testing.T) {
	err := New(ErrNotFound, "Part not found: %s", "/parts/generated/a.glb")
	assert.Equal(t, "Part not found: /parts/generated/a.glb", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, http.StatusNotFound, Status(err))

	cause := errors.New("connection refused")
	wrapped := Wrap(ErrUnavailable, cause, "model unavailable")
	assert.Equal(t, "model unavailable: connection refused", wrapped.Error())
	assert.ErrorIs(t, wrapped, ErrUnavailable)
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, http.StatusServiceUnavailable, Status(fmt.Errorf("generate: %w", wrapped)))
}

func TestUpstreamError(t *testing.T) {
	err := &UpstreamError{URL: "https://example.com/a.png", Status: http.StatusForbidden}
	assert.Equal(t, "https://example.com/a.png returned 403 Forbidden", err.Error())
	assert.True(t, errors.Is(err, ErrUpstream))

	var ue *UpstreamError
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", err), &ue))
	assert.Equal(t, 403, ue.Status)
}
