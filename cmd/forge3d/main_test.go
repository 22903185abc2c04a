package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/botforge/forge3d/internal/config"
	"github.com/botforge/forge3d/internal/gpu"
	"github.com/botforge/forge3d/internal/imageutil"
	"github.com/botforge/forge3d/internal/mesh"
	"github.com/botforge/forge3d/internal/models"
)

// TestCLIHelp tests the help command
func TestCLIHelp(t *testing.T) {
	t.Setenv("FORGE3D_HOME", t.TempDir())

	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name: "root help",
			args: []string{"--help"},
			expected: []string{
				"forge3d turns images into 3D parts",
				"Available Commands:",
				"init",
				"serve",
				"generate",
				"status",
				"health",
				"parts",
			},
		},
		{
			name: "generate help",
			args: []string{"generate", "--help"},
			expected: []string{
				"Generate a 3D mesh from one image",
				"--input",
				"--output",
				"--resolution",
				"--test",
				"--gpu-check",
			},
		},
		{
			name: "serve help",
			args: []string{"serve", "--help"},
			expected: []string{
				"Run the forge3d HTTP server in the foreground",
				"--port",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootCmd.SetArgs(tt.args)

			var buf bytes.Buffer
			rootCmd.SetOut(&buf)
			rootCmd.SetErr(&buf)

			err := rootCmd.Execute()
			require.NoError(t, err)

			output := buf.String()
			for _, expected := range tt.expected {
				assert.Contains(t, output, expected)
			}
		})
	}
}

type cliReconstructor struct{ last models.Params }

func (r *cliReconstructor) Reconstruct(ctx context.Context, img image.Image, p models.Params) (*mesh.Mesh, error) {
	r.last = p
	return mesh.New(
		[][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		[][3]uint32{{0, 2, 1}, {0, 1, 3}, {0, 3, 2}, {1, 2, 3}},
	)
}

type cliSegmenter struct{ calls int }

func (s *cliSegmenter) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	s.calls++
	return img, nil
}

type cliBackend struct {
	loadErr  error
	recon    *cliReconstructor
	seg      *cliSegmenter
	unloaded bool
}

func (b *cliBackend) Load(ctx context.Context) (*models.Pipelines, error) {
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	return &models.Pipelines{Reconstructor: b.recon, Segmenter: b.seg}, nil
}

func (b *cliBackend) Unload(ctx context.Context) error {
	b.unloaded = true
	return nil
}

type cliProbe struct{ info gpu.Info }

func (p cliProbe) Query(ctx context.Context) gpu.Info { return p.info }

func newCLIBackend() *cliBackend {
	return &cliBackend{recon: &cliReconstructor{}, seg: &cliSegmenter{}}
}

func testGeneration() config.GenerationConfig {
	return config.GenerationConfig{Steps: 50, GuidanceScale: 7.0, Seed: 42}
}

func TestRunGenerateGPUCheck(t *testing.T) {
	var out bytes.Buffer
	probe := cliProbe{info: gpu.Info{Available: true, Name: "RTX 4090", Count: 1, TotalGB: 23.99, FreeGB: 20}}

	err := runGenerate(context.Background(), &out, generateOptions{gpuCheck: true}, testGeneration(),
		probe, newCLIBackend(), zap.NewNop())
	require.NoError(t, err)

	assert.Contains(t, out.String(), "GPU Available: ✓")
	assert.Contains(t, out.String(), "GPU: RTX 4090")
	assert.Contains(t, out.String(), "VRAM Total: 23.99 GB")
	assert.NotContains(t, out.String(), "RESULTS")
}

func TestRunGenerateRequiresInput(t *testing.T) {
	var out bytes.Buffer
	err := runGenerate(context.Background(), &out, generateOptions{resolution: 256}, testGeneration(),
		cliProbe{info: gpu.Info{Error: "nvidia-smi not found"}}, newCLIBackend(), zap.NewNop())

	assert.ErrorIs(t, err, errNoInput)
	assert.Contains(t, out.String(), "GPU Available: ✗")
	assert.Contains(t, out.String(), "ERROR: Provide --input <image_path> or --test")
}

func TestRunGenerateResolutionRange(t *testing.T) {
	for _, res := range []int{64, 127, 513} {
		err := runGenerate(context.Background(), &bytes.Buffer{}, generateOptions{test: true, resolution: res},
			testGeneration(), cliProbe{}, newCLIBackend(), zap.NewNop())
		assert.ErrorContains(t, err, "--resolution", "resolution %d", res)
	}
}

func TestRunGenerateTestImage(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	backend := newCLIBackend()
	output := filepath.Join("output", "test_bot.glb")
	var out bytes.Buffer

	err := runGenerate(context.Background(), &out, generateOptions{test: true, output: output, resolution: 384},
		testGeneration(), cliProbe{}, backend, zap.NewNop())
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "images", "test_robot.png"))
	assert.FileExists(t, filepath.Join(dir, output))
	assert.Equal(t, 384, backend.recon.last.Resolution)
	assert.Equal(t, int64(42), backend.recon.last.Seed)
	// the synthetic image already has an alpha channel
	assert.Equal(t, 0, backend.seg.calls)
	assert.True(t, backend.unloaded)

	text := out.String()
	assert.Contains(t, text, "[Input] Image size: 512x512")
	assert.Contains(t, text, "Success: ✓")
	assert.Contains(t, text, "Method: worker")
	assert.Contains(t, text, "Vertices: 4")
	assert.Contains(t, text, "Faces: 4")
}

func TestRunGenerateInputImage(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "photo.png")
	photo := imaging.New(64, 48, color.White)
	photo = imaging.Paste(photo, imaging.New(20, 20, color.NRGBA{R: 200, A: 255}), image.Pt(20, 14))
	require.NoError(t, imageutil.Save(photo, input))

	backend := newCLIBackend()
	output := filepath.Join(dir, "out", "bot.glb")
	var out bytes.Buffer

	err := runGenerate(context.Background(), &out, generateOptions{input: input, output: output, resolution: 256},
		testGeneration(), cliProbe{}, backend, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 1, backend.seg.calls)
	assert.FileExists(t, output)
	assert.Contains(t, out.String(), "[Input] Image size: 64x48")
}

func TestRunGenerateMissingInputFile(t *testing.T) {
	err := runGenerate(context.Background(), &bytes.Buffer{},
		generateOptions{input: filepath.Join(t.TempDir(), "none.png"), resolution: 256},
		testGeneration(), cliProbe{}, newCLIBackend(), zap.NewNop())
	assert.ErrorContains(t, err, "failed to open input")
}

func TestRunGenerateFallback(t *testing.T) {
	t.Chdir(t.TempDir())

	backend := newCLIBackend()
	backend.loadErr = errors.New("worker not installed")
	var out bytes.Buffer

	err := runGenerate(context.Background(), &out, generateOptions{test: true, output: "bot.glb", resolution: 256},
		testGeneration(), cliProbe{}, backend, zap.NewNop())
	require.NoError(t, err)

	assert.FileExists(t, "bot.glb")
	text := out.String()
	assert.Contains(t, text, "Method: fallback")
	assert.Contains(t, text, "Success: ✓")
	assert.Contains(t, text, "worker not installed")
}
