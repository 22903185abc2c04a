// Package rigging drives the external auto-rigging toolchain: skeleton
// prediction, skin weight prediction and the conversion of the weights to
// JSON.
package rigging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/botforge/forge3d/internal/apperr"
)

const (
	StatusComplete          = "complete"
	StatusPartialNoSkinData = "partial_no_skin_data"

	// SkinFile is the weights file the conversion step writes into the work dir
	SkinFile = "skin.json"
	// SkinPredictionFile is the raw weights output of the skin step
	SkinPredictionFile = "predict_skin.npz"

	maxStderr       = 500
	maxExportStderr = 300
)

// Rigger attaches a skeleton and skin weights to a mesh
type Rigger interface {
	Rig(ctx context.Context, req Request) (*Result, error)
}

type Request struct {
	MeshPath string
	WorkDir  string
}

// Result describes a finished rigging run. SkinJSON is empty when the
// conversion step produced nothing.
type Result struct {
	Status      string
	OutputDir   string
	SkinJSON    string
	BoneCount   int
	VertexCount int
	Message     string
}

// StepError is a mandatory step that exited nonzero
type StepError struct {
	Step     string
	ExitCode int
	Stderr   string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Step, e.Stderr)
}

type Options struct {
	Dir            string
	Python         string
	SkeletonConfig string
	SkinConfig     string
	ExportScript   string
	StepTimeout    time.Duration
	ExportTimeout  time.Duration
}

// UniRig runs the UniRig toolchain from its checkout directory
type UniRig struct {
	opts   Options
	runner Runner
	logger *zap.Logger
}

func NewUniRig(opts Options, runner Runner, logger *zap.Logger) *UniRig {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 120 * time.Second
	}
	if opts.ExportTimeout <= 0 {
		opts.ExportTimeout = 30 * time.Second
	}
	if opts.Python == "" {
		opts.Python = "python3"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &UniRig{
		opts:   opts,
		runner: runner,
		logger: logger.With(zap.String("component", "rigging")),
	}
}

// Rig runs both prediction steps then the optional conversion. The
// subprocesses outlive a cancelled caller; only the per-step timeout
// bounds them.
func (u *UniRig) Rig(ctx context.Context, req Request) (*Result, error) {
	ctx = context.WithoutCancel(ctx)

	if err := os.MkdirAll(req.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	if err := clearOutputs(req.WorkDir); err != nil {
		return nil, err
	}

	steps := []struct {
		name     string
		resource string
	}{
		{"Skeleton prediction", "resources.skeleton_config=" + u.opts.SkeletonConfig},
		{"Skin prediction", "resources.skin_config=" + u.opts.SkinConfig},
	}

	for _, step := range steps {
		u.logger.Info("running step", zap.String("step", step.name), zap.String("mesh", req.MeshPath))
		cmd := Command{
			Path: u.opts.Python,
			Args: []string{
				"-m", "src.main",
				"input.mesh_path=" + req.MeshPath,
				step.resource,
				"output.directory=" + req.WorkDir,
			},
			Dir: u.opts.Dir,
		}
		if err := u.runStep(ctx, step.name, cmd); err != nil {
			return nil, err
		}
	}

	skinPath := filepath.Join(req.WorkDir, SkinFile)
	result := &Result{OutputDir: req.WorkDir}

	if !u.export(ctx, req.WorkDir, skinPath) {
		result.Status = StatusPartialNoSkinData
		result.Message = "Rigging completed but skin.json not generated"
		return result, nil
	}

	skin, err := readSkin(skinPath)
	if err != nil {
		u.logger.Warn("skin json unreadable", zap.Error(err))
		result.Status = StatusPartialNoSkinData
		result.Message = "Rigging completed but skin.json not generated"
		return result, nil
	}

	result.Status = StatusComplete
	result.SkinJSON = skinPath
	result.BoneCount = len(skin.Bones)
	result.VertexCount = len(skin.Weights)

	u.logger.Info("rigging complete",
		zap.Int("bones", result.BoneCount),
		zap.Int("weighted_vertices", result.VertexCount))

	return result, nil
}

func (u *UniRig) runStep(ctx context.Context, name string, cmd Command) error {
	ctx, cancel := context.WithTimeout(ctx, u.opts.StepTimeout)
	defer cancel()

	out, err := u.runner.Run(ctx, cmd)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperr.New(apperr.ErrTimeout, "Rigging timed out (%ds limit)", int(u.opts.StepTimeout.Seconds()))
		}
		return apperr.Wrap(apperr.ErrUnavailable, err, "cannot run rigging toolchain %q", cmd.Path)
	}
	if out.ExitCode != 0 {
		u.logger.Error("step failed", zap.String("step", name), zap.Int("exit_code", out.ExitCode), zap.String("stderr", out.Stderr))
		return &StepError{Step: name, ExitCode: out.ExitCode, Stderr: truncate(out.Stderr, maxStderr)}
	}
	return nil
}

// clearOutputs drops files a previous run with the same work dir left
// behind so they are never reported as this run's output
func clearOutputs(workDir string) error {
	for _, name := range []string{SkinFile, SkinPredictionFile} {
		err := os.Remove(filepath.Join(workDir, name))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to clear %s: %w", name, err)
		}
	}
	return nil
}

// export converts the predicted weights to JSON and reports whether the
// conversion exited cleanly
func (u *UniRig) export(ctx context.Context, workDir, skinPath string) bool {
	script := filepath.Join(u.opts.Dir, u.opts.ExportScript)
	if _, err := os.Stat(script); err != nil {
		u.logger.Warn("skin json export script missing", zap.String("script", script))
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, u.opts.ExportTimeout)
	defer cancel()

	out, err := u.runner.Run(ctx, Command{
		Path: u.opts.Python,
		Args: []string{script, filepath.Join(workDir, SkinPredictionFile), skinPath},
		Dir:  u.opts.Dir,
	})
	switch {
	case err != nil:
		u.logger.Warn("skin json export failed", zap.Error(err))
	case out.ExitCode != 0:
		u.logger.Warn("skin json export failed", zap.String("stderr", truncate(out.Stderr, maxExportStderr)))
	default:
		return true
	}
	return false
}

type skinData struct {
	Bones   []json.RawMessage `json:"bones"`
	Weights []json.RawMessage `json:"weights"`
}

func readSkin(path string) (*skinData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var skin skinData
	if err := json.Unmarshal(data, &skin); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", SkinFile, err)
	}
	return &skin, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
