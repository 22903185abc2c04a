// Package models owns the lifecycle of the generation models: lazy loading
// on first use, shared use during inference and explicit release before
// other GPU work.
package models

import (
	"context"
	"image"

	"github.com/botforge/forge3d/internal/mesh"
)

// Params are the reconstruction knobs exposed to callers
type Params struct {
	Seed          int64   `json:"seed"`
	Steps         int     `json:"num_inference_steps"`
	GuidanceScale float64 `json:"guidance_scale"`
	Resolution    int     `json:"resolution,omitempty"`
}

// Reconstructor turns a prepared image into a triangle mesh
type Reconstructor interface {
	Reconstruct(ctx context.Context, img image.Image, p Params) (*mesh.Mesh, error)
}

// Segmenter removes the background of an image, returning it with alpha
type Segmenter interface {
	RemoveBackground(ctx context.Context, img image.Image) (image.Image, error)
}

// Pipelines is the resident model pair
type Pipelines struct {
	Reconstructor Reconstructor
	Segmenter     Segmenter
}

// Backend loads and unloads the model pair
type Backend interface {
	Load(ctx context.Context) (*Pipelines, error)
	Unload(ctx context.Context) error
}

// Observer is notified of lifecycle transitions
type Observer interface {
	ModelsLoaded(loaded bool)
	ModelTransition(action string, err error)
}

type nopObserver struct{}

func (nopObserver) ModelsLoaded(bool)             {}
func (nopObserver) ModelTransition(string, error) {}
