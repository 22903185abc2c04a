package daemon

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/botforge/forge3d/internal/imageutil"
	"github.com/botforge/forge3d/internal/mesh"
	"github.com/botforge/forge3d/internal/models"
	"github.com/botforge/forge3d/internal/storage"
	"github.com/botforge/forge3d/pkg/types"
)

// Generate reconstructs a mesh from an uploaded image and stores it as a
// new part. Reported elapsed time covers inference and decimation.
func (d *Daemon) Generate(ctx context.Context, data []byte, p types.GenerateParams) (resp *types.GenerateResponse, err error) {
	start := time.Now()
	defer func() { d.observe("generate", start, err) }()

	lease, err := d.models.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Close()

	img, err := imageutil.DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	d.logger.Info("generating mesh from image",
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))

	var fg image.Image = img
	if !imageutil.HasTransparency(img) {
		fg, err = lease.Segmenter.RemoveBackground(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("background removal: %w", err)
		}
	}
	prepared := imageutil.Prepare(fg, color.White, imageutil.DefaultPadRatio)

	inferStart := time.Now()
	m, err := lease.Reconstructor.Reconstruct(ctx, prepared, models.Params{
		Seed:          p.Seed,
		Steps:         p.Steps,
		GuidanceScale: p.GuidanceScale,
	})
	if err != nil {
		return nil, err
	}
	lease.Close()

	if p.Faces > 0 && m.FaceCount() > p.Faces {
		reduced, err := mesh.Decimate(ctx, m, p.Faces, d.config.Generation.DecimateAttempts)
		if err != nil {
			d.logger.Warn("mesh simplification failed, keeping full mesh",
				zap.Int("faces", m.FaceCount()), zap.Int("target", p.Faces), zap.Error(err))
		} else {
			d.logger.Info("mesh simplified", zap.Int("from", m.FaceCount()), zap.Int("to", reduced.FaceCount()))
			m = reduced
		}
	}
	elapsed := time.Since(inferStart)

	id := storage.NewToken("gen")
	path := d.paths.PartPath(id + ".glb")
	m.Name = id
	if _, err := mesh.SaveGLB(path, m); err != nil {
		return nil, err
	}
	d.record(ctx, id, types.AssetMesh, path)

	d.logger.Info("mesh generated",
		zap.String("part_id", id),
		zap.Int("vertices", m.VertexCount()),
		zap.Int("faces", m.FaceCount()),
		zap.Duration("elapsed", elapsed))

	return &types.GenerateResponse{
		PartID:   id,
		GLBPath:  d.paths.URLPath(path),
		Vertices: m.VertexCount(),
		Faces:    m.FaceCount(),
		ElapsedS: roundTo(elapsed.Seconds(), 2),
	}, nil
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
