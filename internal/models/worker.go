package models

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"github.com/botforge/forge3d/internal/apperr"
	"github.com/botforge/forge3d/internal/imageutil"
	"github.com/botforge/forge3d/internal/mesh"
)

// WorkerOptions configures the inference worker backend
type WorkerOptions struct {
	URL string
	// Command starts the worker when set; otherwise it is managed externally
	Command []string
	Dir     string

	StartupTimeout time.Duration
	RequestTimeout time.Duration

	ReconstructionWeights string
	SegmentationWeights   string
}

// WorkerBackend drives an inference worker over HTTP. The worker exposes
// GET /health, POST /load, POST /unload, POST /segment (PNG in and out) and
// POST /reconstruct (JSON). When it owns the worker process, unloading also
// stops the process, which returns all device memory.
type WorkerBackend struct {
	opts   WorkerOptions
	client *http.Client
	logger *zap.Logger

	mu     sync.Mutex
	proc   *exec.Cmd
	exited chan struct{}
}

func NewWorkerBackend(opts WorkerOptions, logger *zap.Logger) *WorkerBackend {
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = 2 * time.Minute
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Minute
	}
	opts.URL = strings.TrimRight(opts.URL, "/")
	return &WorkerBackend{
		opts:   opts,
		client: &http.Client{Timeout: opts.RequestTimeout},
		logger: logger.With(zap.String("component", "worker")),
	}
}

type loadRequest struct {
	ReconstructionWeights string `json:"reconstruction_weights"`
	SegmentationWeights   string `json:"segmentation_weights"`
}

type reconstructRequest struct {
	ImagePNG []byte `json:"image_png"`
	Params
}

type reconstructResponse struct {
	Vertices [][3]float32 `json:"vertices"`
	Faces    [][3]uint32  `json:"faces"`
}

func (b *WorkerBackend) Load(ctx context.Context) (*Pipelines, error) {
	if len(b.opts.Command) > 0 {
		if err := b.start(ctx); err != nil {
			return nil, err
		}
	} else if err := b.Health(ctx); err != nil {
		return nil, apperr.Wrap(apperr.ErrUnavailable, err,
			"inference worker not reachable at %s; start it or set models.worker.command", b.opts.URL)
	}

	for _, w := range []WeightsInfo{
		InspectWeights("reconstruction", b.opts.ReconstructionWeights),
		InspectWeights("segmentation", b.opts.SegmentationWeights),
	} {
		if !w.Present {
			b.logger.Info("weights not on disk yet, worker will download them", zap.String("name", w.Name), zap.String("path", w.Path))
		}
	}

	req := loadRequest{
		ReconstructionWeights: b.opts.ReconstructionWeights,
		SegmentationWeights:   b.opts.SegmentationWeights,
	}
	if err := b.postJSON(ctx, "/load", req, nil); err != nil {
		if stopErr := b.stop(); stopErr != nil {
			b.logger.Warn("could not stop inference worker after failed load", zap.Error(stopErr))
		}
		return nil, fmt.Errorf("worker load: %w", err)
	}

	return &Pipelines{Reconstructor: b, Segmenter: b}, nil
}

func (b *WorkerBackend) Unload(ctx context.Context) error {
	err := b.postJSON(ctx, "/unload", struct{}{}, nil)
	if stopErr := b.stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	if err != nil {
		return fmt.Errorf("worker unload: %w", err)
	}
	return nil
}

// Health checks the worker answers
func (b *WorkerBackend) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.opts.URL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned status %d", resp.StatusCode)
	}
	return nil
}

func (b *WorkerBackend) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	data, err := imageutil.PNGBytes(img)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.opts.URL+"/segment", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/png")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("worker segment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("worker segment: %w", readError(resp))
	}
	out, err := imageutil.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("worker segment: %v", err)
	}
	return out, nil
}

func (b *WorkerBackend) Reconstruct(ctx context.Context, img image.Image, p Params) (*mesh.Mesh, error) {
	data, err := imageutil.PNGBytes(img)
	if err != nil {
		return nil, err
	}

	var out reconstructResponse
	if err := b.postJSON(ctx, "/reconstruct", reconstructRequest{ImagePNG: data, Params: p}, &out); err != nil {
		return nil, fmt.Errorf("worker reconstruct: %w", err)
	}

	m, err := mesh.New(out.Vertices, out.Faces)
	if err != nil {
		return nil, fmt.Errorf("worker returned an invalid mesh: %w", err)
	}
	return m, nil
}

func (b *WorkerBackend) postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.opts.URL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &e) == nil {
		if e.Error != "" {
			msg = e.Error
		} else if e.Detail != "" {
			msg = e.Detail
		}
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
}

// start launches the worker process and waits for it to answer /health
func (b *WorkerBackend) start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.proc != nil {
		return nil
	}

	out := &zapio.Writer{Log: b.logger, Level: zap.InfoLevel}
	cmd := exec.Command(b.opts.Command[0], b.opts.Command[1:]...)
	cmd.Dir = b.opts.Dir
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return apperr.Wrap(apperr.ErrUnavailable, err, "cannot start inference worker %q", b.opts.Command[0])
	}
	b.logger.Info("inference worker started", zap.Int("pid", cmd.Process.Pid))

	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		out.Close()
		b.logger.Info("inference worker exited", zap.Error(err))
		close(exited)
	}()

	ctx, cancel := context.WithTimeout(ctx, b.opts.StartupTimeout)
	defer cancel()

	delay := 250 * time.Millisecond
	for {
		if err := b.Health(ctx); err == nil {
			b.proc, b.exited = cmd, exited
			return nil
		}
		select {
		case <-exited:
			return apperr.New(apperr.ErrUnavailable, "inference worker exited during startup")
		case <-ctx.Done():
			cmd.Process.Kill()
			<-exited
			return apperr.Wrap(apperr.ErrUnavailable, ctx.Err(), "inference worker did not become healthy")
		case <-time.After(delay):
		}
		if delay < 5*time.Second {
			delay *= 2
		}
	}
}

// stop terminates an owned worker process, interrupting it first
func (b *WorkerBackend) stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.proc == nil {
		return nil
	}
	proc, exited := b.proc, b.exited
	b.proc, b.exited = nil, nil

	if err := proc.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		proc.Process.Kill()
	}

	select {
	case <-exited:
		return nil
	case <-time.After(10 * time.Second):
		b.logger.Warn("inference worker ignored interrupt, killing")
		if err := proc.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
		<-exited
		return nil
	}
}

// Running reports whether an owned worker process is alive
func (b *WorkerBackend) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.proc != nil
}
