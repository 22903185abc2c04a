package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/botforge/forge3d/internal/rigging"
)

// Janitor reclaims what interrupted operations leave in the output
// directory: rigging work dirs that never got a manifest and staging files
// of atomic writes.
type Janitor struct {
	outputDir string
	maxAge    time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewJanitor(outputDir string, maxAge time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		outputDir: outputDir,
		maxAge:    maxAge,
		logger:    logger.With(zap.String("component", "janitor")),
		now:       time.Now,
	}
}

func (j *Janitor) Name() string { return "output_cleanup" }

func (j *Janitor) Run(ctx context.Context) error {
	entries, err := os.ReadDir(j.outputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	cutoff := j.now().Add(-j.maxAge)
	var removed int
	var errs []error

	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		name := e.Name()
		path := filepath.Join(j.outputDir, name)

		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		switch {
		case e.IsDir() && strings.HasPrefix(name, "rig_"):
			if rigging.HasManifest(path) {
				continue
			}
			err = os.RemoveAll(path)
		case !e.IsDir() && strings.HasSuffix(name, ".tmp"):
			err = os.Remove(path)
		default:
			continue
		}

		if err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
		j.logger.Info("removed stale output", zap.String("path", path))
	}

	if removed > 0 {
		j.logger.Info("cleanup complete", zap.Int("removed", removed))
	}
	return errors.Join(errs...)
}
