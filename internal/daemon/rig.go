package daemon

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/botforge/forge3d/internal/apperr"
	"github.com/botforge/forge3d/internal/rigging"
	"github.com/botforge/forge3d/internal/storage"
	"github.com/botforge/forge3d/pkg/types"
)

// Rig runs the rigging toolchain on a mesh. The generation models are
// released first so the toolchain has the accelerator to itself.
func (d *Daemon) Rig(ctx context.Context, req types.RigRequest) (resp *types.RigResponse, err error) {
	start := time.Now()
	defer func() { d.observe("rig", start, err) }()

	name := req.OutputName
	if name == "" {
		name = types.DefaultRigName
	}
	if !storage.ValidName(name) {
		return nil, apperr.New(apperr.ErrInvalid, "invalid output_name %q", name)
	}

	meshPath, err := d.paths.Resolve(req.GLBPath)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.New(apperr.ErrNotFound, "GLB not found: %s", req.GLBPath)
		}
		return nil, err
	}

	if err := d.models.Release(context.WithoutCancel(ctx)); err != nil {
		d.logger.Warn("model release before rigging reported an error", zap.Error(err))
	}

	d.logger.Info("rigging", zap.String("mesh", meshPath), zap.String("output", name))

	workDir := d.paths.RigDir(name)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create rig work dir: %w", err)
	}

	result, err := d.rigger.Rig(ctx, rigging.Request{MeshPath: meshPath, WorkDir: workDir})
	if err != nil {
		d.logger.Error("rigging failed", zap.Error(err))
		return nil, err
	}

	resp = &types.RigResponse{
		Status:      result.Status,
		OutputDir:   workDir,
		GLBInput:    req.GLBPath,
		BoneCount:   result.BoneCount,
		VertexCount: result.VertexCount,
		Message:     result.Message,
	}
	if result.SkinJSON != "" {
		url := d.paths.URLPath(result.SkinJSON)
		resp.SkinJSON = &url
	}

	manifest := rigging.Manifest{
		Input:       req.GLBPath,
		Status:      result.Status,
		BoneCount:   result.BoneCount,
		VertexCount: result.VertexCount,
		CreatedAt:   time.Now(),
	}
	if resp.SkinJSON != nil {
		manifest.SkinJSON = *resp.SkinJSON
	}
	if err := rigging.WriteManifest(workDir, manifest); err != nil {
		d.logger.Warn("could not write rig manifest", zap.Error(err))
	}

	if result.SkinJSON != "" {
		d.record(ctx, "rig_"+name, types.AssetRig, result.SkinJSON)
	}

	return resp, nil
}
