package mesh

import (
	"context"
	"fmt"
	"math"

	"github.com/unixpickle/model3d/model3d"
)

// DefaultDecimateAttempts bounds how many times the tolerance is doubled
const DefaultDecimateAttempts = 12

// Decimate reduces m to at most target faces. Vertex removal with a
// doubling tolerance runs first; whatever it cannot remove is taken off by
// collapsing the shortest edges. A mesh already within budget is returned
// unchanged. On error callers keep m.
func Decimate(ctx context.Context, m *Mesh, target, attempts int) (*Mesh, error) {
	if target <= 0 || m.FaceCount() <= target {
		return m, nil
	}
	if attempts <= 0 {
		attempts = DefaultDecimateAttempts
	}

	current := toModel3D(m)
	diag := current.Max().Dist(current.Min())
	if diag == 0 {
		return nil, fmt.Errorf("cannot decimate degenerate mesh")
	}

	faces := len(current.TriangleSlice())
	eps := diag * 1e-4
	for i := 0; i < attempts && eps < diag; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d := &model3d.Decimator{
			PlaneDistance:      eps,
			BoundaryDistance:   eps,
			FeatureAngle:       math.Pi,
			MinimumAspectRatio: 1e-3,
		}
		next := d.Decimate(current)
		n := len(next.TriangleSlice())
		if n > 0 && n < faces {
			current, faces = next, n
			if n <= target {
				return fromModel3D(current, m.Name), nil
			}
		}
		eps *= 2
	}

	return collapseEdges(ctx, fromModel3D(current, m.Name), target)
}
