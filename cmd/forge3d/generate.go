package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/botforge/forge3d/internal/config"
	"github.com/botforge/forge3d/internal/gpu"
	"github.com/botforge/forge3d/internal/imageutil"
	"github.com/botforge/forge3d/internal/mesh"
	"github.com/botforge/forge3d/internal/models"
	"github.com/botforge/forge3d/internal/ui"
)

// testImagePath is where --test writes the synthetic input
var testImagePath = filepath.Join("images", "test_robot.png")

const testImageSize = 512

var errNoInput = errors.New("Provide --input <image_path> or --test")

type generateOptions struct {
	input      string
	output     string
	resolution int
	test       bool
	gpuCheck   bool
}

var generateOpts generateOptions

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a 3D mesh from one image",
	Long: `Generate a 3D mesh from one image without running the server.

Prints the accelerator status first. The inference worker is started, used
once and released. When the worker is unavailable a simple geometric robot
is written instead, so the rest of the toolchain can still be exercised.

Examples:
  forge3d generate --gpu-check
  forge3d generate --test
  forge3d generate --input photo.png --output output/bot.glb --resolution 384`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		logger := newLogger()
		defer logger.Sync()

		backend := models.NewWorkerBackend(models.WorkerOptions{
			URL:                   cfg.Models.Worker.URL,
			Command:               cfg.Models.Worker.Command,
			Dir:                   cfg.Storage.ProjectRoot,
			StartupTimeout:        cfg.Models.Worker.StartupTimeout,
			RequestTimeout:        cfg.Models.Worker.RequestTimeout,
			ReconstructionWeights: cfg.Models.ReconstructionWeights,
			SegmentationWeights:   cfg.Models.SegmentationWeights,
		}, logger)

		return runGenerate(cmd.Context(), cmd.OutOrStdout(), generateOpts, cfg.Generation,
			gpu.NewSMIProbe(cfg.GPU.SMIPath), backend, logger)
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVar(&generateOpts.input, "input", "", "path to input image")
	generateCmd.Flags().StringVar(&generateOpts.output, "output", filepath.Join("output", "test_bot.glb"), "output .glb path")
	generateCmd.Flags().IntVar(&generateOpts.resolution, "resolution", 256, "mesh resolution (128-512)")
	generateCmd.Flags().BoolVar(&generateOpts.test, "test", false, "run with the synthetic test image")
	generateCmd.Flags().BoolVar(&generateOpts.gpuCheck, "gpu-check", false, "only print accelerator information")
}

// generateResult is what the summary reports
type generateResult struct {
	success    bool
	method     string
	loadTime   time.Duration
	genTime    time.Duration
	vertices   int
	faces      int
	fileSizeKB float64
	err        error
}

func runGenerate(ctx context.Context, out io.Writer, opts generateOptions, gen config.GenerationConfig,
	probe gpu.Probe, backend models.Backend, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	rule := strings.Repeat("=", 60)
	fmt.Fprintln(out, rule)
	fmt.Fprintln(out, "forge3d mesh generation")
	fmt.Fprintln(out, rule)
	fmt.Fprintln(out)
	printGPU(out, probe.Query(ctx))

	if opts.gpuCheck {
		return nil
	}

	if opts.resolution < 128 || opts.resolution > 512 {
		return fmt.Errorf("--resolution must be between 128 and 512, got %d", opts.resolution)
	}

	var img image.Image
	switch {
	case opts.test:
		fmt.Fprintln(out, "\n[Test] Creating procedural test image...")
		robot := imageutil.TestRobot(testImageSize)
		if err := os.MkdirAll(filepath.Dir(testImagePath), 0755); err != nil {
			return fmt.Errorf("failed to create image directory: %w", err)
		}
		if err := imageutil.Save(robot, testImagePath); err != nil {
			return fmt.Errorf("failed to save test image: %w", err)
		}
		fmt.Fprintf(out, "[Test] Saved test image to %s\n", testImagePath)
		img = robot
	case opts.input != "":
		fmt.Fprintf(out, "\n[Input] Loading image: %s\n", opts.input)
		f, err := os.Open(opts.input)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		decoded, err := imageutil.Decode(f)
		f.Close()
		if err != nil {
			return err
		}
		img = decoded
	default:
		fmt.Fprintln(out, "ERROR: "+errNoInput.Error())
		return errNoInput
	}
	b := img.Bounds()
	fmt.Fprintf(out, "[Input] Image size: %dx%d\n", b.Dx(), b.Dy())
	fmt.Fprintln(out, "\n"+strings.Repeat("-", 60))

	manager := models.NewManager(backend, logger)
	defer func() {
		if err := manager.Release(context.Background()); err != nil {
			logger.Warn("error releasing models", zap.Error(err))
		}
	}()

	res := generate(ctx, out, manager, img, opts, gen)
	if res.err == nil {
		size, err := saveMesh(opts.output, res.mesh)
		if err != nil {
			res.err = fmt.Errorf("failed to save mesh: %w", err)
		} else {
			res.success = true
			res.fileSizeKB = math.Round(float64(size)/1024*10) / 10
			fmt.Fprintf(out, "[%s] Mesh saved: %s\n", res.method, opts.output)
		}
	}

	printResults(out, res.generateResult, opts.output)
	return res.err
}

func saveMesh(path string, m *mesh.Mesh) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, err
	}
	return mesh.SaveGLB(path, m)
}

type generated struct {
	generateResult
	mesh *mesh.Mesh
}

func generate(ctx context.Context, out io.Writer, manager *models.Manager, img image.Image,
	opts generateOptions, gen config.GenerationConfig) generated {
	var res generated

	spinner := ui.NewSpinner(out, "Loading models")
	lease, err := manager.Acquire(ctx)
	res.loadTime = spinner.Stop()

	if err != nil {
		fmt.Fprintf(out, "[fallback] Models unavailable: %v\n", err)
		fmt.Fprintln(out, "[fallback] Building geometric test mesh instead...")
		start := time.Now()
		res.mesh = mesh.Fallback()
		res.genTime = time.Since(start)
		res.method = "fallback"
		res.vertices, res.faces = res.mesh.VertexCount(), res.mesh.FaceCount()
		return res
	}
	defer lease.Close()
	res.method = "worker"

	start := time.Now()
	fg := img
	if !imageutil.HasTransparency(img) {
		fmt.Fprintln(out, "[worker] Removing background...")
		fg, err = lease.Segmenter.RemoveBackground(ctx, img)
		if err != nil {
			res.err = fmt.Errorf("background removal: %w", err)
			return res
		}
	}
	prepared := imageutil.Prepare(fg, color.White, imageutil.DefaultPadRatio)

	spinner = ui.NewSpinner(out, fmt.Sprintf("Generating 3D at resolution %d", opts.resolution))
	m, err := lease.Reconstructor.Reconstruct(ctx, prepared, models.Params{
		Seed:          gen.Seed,
		Steps:         gen.Steps,
		GuidanceScale: gen.GuidanceScale,
		Resolution:    opts.resolution,
	})
	spinner.Stop()
	res.genTime = time.Since(start)
	if err != nil {
		res.err = err
		return res
	}

	res.mesh = m
	res.vertices, res.faces = m.VertexCount(), m.FaceCount()
	return res
}

func printResults(out io.Writer, res generateResult, output string) {
	mark := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "✗"
	}
	method := res.method
	if method == "" {
		method = "N/A"
	}

	rule := strings.Repeat("=", 60)
	fmt.Fprintln(out, "\n"+rule)
	fmt.Fprintln(out, "RESULTS:")
	fmt.Fprintf(out, "  Success: %s\n", mark(res.success))
	fmt.Fprintf(out, "  Method: %s\n", method)
	fmt.Fprintf(out, "  Model load time: %s\n", ui.FormatDuration(res.loadTime))
	fmt.Fprintf(out, "  Generation time: %s\n", ui.FormatDuration(res.genTime))
	if res.success {
		fmt.Fprintf(out, "  Vertices: %d\n", res.vertices)
		fmt.Fprintf(out, "  Faces: %d\n", res.faces)
		fmt.Fprintf(out, "  File size: %.1f KB\n", res.fileSizeKB)
		fmt.Fprintf(out, "  Output: %s\n", output)
	} else {
		fmt.Fprintf(out, "  Error: %v\n", res.err)
	}
	fmt.Fprintln(out, rule)
}
