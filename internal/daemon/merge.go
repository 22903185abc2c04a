package daemon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/botforge/forge3d/internal/apperr"
	"github.com/botforge/forge3d/internal/mesh"
	"github.com/botforge/forge3d/internal/storage"
	"github.com/botforge/forge3d/pkg/types"
)

// Merge combines parts into one file, each placed by its own transform.
// Every part is resolved before anything is written.
func (d *Daemon) Merge(ctx context.Context, req types.MergeRequest) (resp *types.MergeResponse, err error) {
	start := time.Now()
	defer func() { d.observe("merge", start, err) }()

	if err := req.Validate(); err != nil {
		return nil, apperr.New(apperr.ErrInvalid, "%s", err)
	}
	name := req.OutputName
	if name == "" {
		name = types.DefaultMergeName
	}
	if !storage.ValidName(name) {
		return nil, apperr.New(apperr.ErrInvalid, "invalid output_name %q", name)
	}

	d.logger.Info("merging parts", zap.Int("parts", len(req.Parts)), zap.String("output", name))

	paths := make([]string, len(req.Parts))
	for i, part := range req.Parts {
		p, err := d.paths.Resolve(part.Path)
		if err != nil {
			return nil, err
		}
		paths[i] = p
	}

	loaded := make([][]*mesh.Mesh, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			meshes, err := mesh.LoadGLB(p)
			if err != nil {
				return fmt.Errorf("part %s: %w", req.Parts[i].Path, err)
			}
			loaded[i] = meshes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scene := mesh.NewScene()
	for i, part := range req.Parts {
		t := mesh.Transform{}
		copy(t.Translation[:], part.Position)
		copy(t.RotationDeg[:], part.Rotation)

		geoms := loaded[i]
		for _, m := range geoms {
			node := fmt.Sprintf("part_%d", i)
			if len(geoms) > 1 {
				node = fmt.Sprintf("part_%d_%s", i, m.Name)
			}
			if err := scene.Add(node, m, t); err != nil {
				return nil, fmt.Errorf("part %s: %w", part.Path, err)
			}
		}
	}

	out := d.paths.PartPath(name + ".glb")
	size, err := scene.Save(out)
	if err != nil {
		return nil, err
	}
	d.record(ctx, name, types.AssetMesh, out)
	d.state.IncrementMerged()

	d.logger.Info("merged mesh saved", zap.String("path", out), zap.Int64("bytes", size))

	return &types.MergeResponse{
		MergedPath: d.paths.URLPath(out),
		PartsCount: len(req.Parts),
		FileSize:   size,
	}, nil
}
