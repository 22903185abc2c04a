package daemon

import (
	"context"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/botforge/forge3d/internal/apperr"
	"github.com/botforge/forge3d/internal/imageutil"
	"github.com/botforge/forge3d/internal/storage"
	"github.com/botforge/forge3d/pkg/types"
)

// SearchImage finds a reference image, downloads the top hit, optionally
// removes its background and stores it. A nil response with a nil error
// means the search found nothing.
func (d *Daemon) SearchImage(ctx context.Context, req types.SearchImageRequest) (resp *types.SearchImageResponse, err error) {
	start := time.Now()
	defer func() { d.observe("search_image", start, err) }()

	d.logger.Info("searching images", zap.String("query", req.Query))
	results, err := d.search.Search(ctx, req.Query, d.config.Search.MaxResults)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	source := results[0].URL
	d.logger.Info("downloading reference image", zap.String("url", source))
	data, err := d.fetcher.Download(ctx, source)
	if err != nil {
		return nil, err
	}

	decoded, err := imageutil.DecodeBytes(data)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, err, "downloaded file is not an image")
	}
	var img image.Image = decoded

	if req.ShouldRemoveBG() {
		cut, err := d.remover.Remove(ctx, img)
		switch {
		case apperr.IsUnavailable(err):
			d.logger.Warn("background removal unavailable, keeping original", zap.Error(err))
		case err != nil:
			return nil, fmt.Errorf("background removal: %w", err)
		default:
			img = cut
			d.logger.Info("background removed")
		}
	}

	id := storage.NewToken("ref")
	path := d.paths.PartPath(id + ".png")
	if err := imageutil.Save(img, path); err != nil {
		return nil, fmt.Errorf("failed to save image: %w", err)
	}
	d.record(ctx, id, types.AssetReferenceImage, path)

	all := make([]types.ImageResult, len(results))
	for i, r := range results {
		all[i] = types.ImageResult{URL: r.URL, Title: r.Title}
	}

	b := img.Bounds()
	return &types.SearchImageResponse{
		ImageID:    id,
		ImagePath:  d.paths.URLPath(path),
		SourceURL:  source,
		Size:       [2]int{b.Dx(), b.Dy()},
		AllResults: all,
	}, nil
}
