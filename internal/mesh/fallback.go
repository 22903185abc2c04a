package mesh

import (
	"github.com/unixpickle/model3d/model3d"
)

const fallbackGridStep = 0.0125

// Fallback builds a simple geometric robot without any learned model: a
// box body and head, four wheels and a saw blade, meshed with marching
// cubes and flattened with a tight decimation pass
func Fallback() *Mesh {
	box := func(cx, cy, cz, ex, ey, ez float64) model3d.Solid {
		return &model3d.Rect{
			MinVal: model3d.XYZ(cx-ex/2, cy-ey/2, cz-ez/2),
			MaxVal: model3d.XYZ(cx+ex/2, cy+ey/2, cz+ez/2),
		}
	}
	// cylinders run along Z
	cylinder := func(cx, cy, cz, radius, height float64) model3d.Solid {
		return &model3d.Cylinder{
			P1:     model3d.XYZ(cx, cy, cz-height/2),
			P2:     model3d.XYZ(cx, cy, cz+height/2),
			Radius: radius,
		}
	}

	solid := model3d.JoinedSolid{
		box(0, 0, 0, 0.8, 0.3, 0.6),
		box(0, 0.3, 0, 0.4, 0.3, 0.4),
		cylinder(-0.3, -0.2, 0.35, 0.1, 0.08),
		cylinder(0.3, -0.2, 0.35, 0.1, 0.08),
		cylinder(-0.3, -0.2, -0.35, 0.1, 0.08),
		cylinder(0.3, -0.2, -0.35, 0.1, 0.08),
		cylinder(0.5, 0.2, 0, 0.25, 0.03),
	}

	raw := model3d.MarchingCubesSearch(solid, fallbackGridStep, 8)
	flat := model3d.DecimateSimple(raw, fallbackGridStep/10)
	if len(flat.TriangleSlice()) > 0 {
		raw = flat
	}
	return fromModel3D(raw, "fallback_bot")
}
