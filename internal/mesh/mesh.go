// Package mesh holds the triangle mesh type forge3d passes between
// reconstruction, decimation, GLB export and scene assembly.
package mesh

import (
	"errors"
	"fmt"
	"math"

	"github.com/unixpickle/model3d/model3d"
)

// ErrEmpty is returned for meshes without faces
var ErrEmpty = errors.New("mesh has no faces")

// Mesh is an indexed triangle mesh
type Mesh struct {
	Name     string
	Vertices [][3]float32
	Faces    [][3]uint32
}

// New builds a mesh after checking every face index is in range
func New(vertices [][3]float32, faces [][3]uint32) (*Mesh, error) {
	m := &Mesh{Vertices: vertices, Faces: faces}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the mesh has faces and all indices address a vertex
func (m *Mesh) Validate() error {
	if len(m.Faces) == 0 {
		return ErrEmpty
	}
	n := uint32(len(m.Vertices))
	for i, f := range m.Faces {
		for _, idx := range f {
			if idx >= n {
				return fmt.Errorf("face %d references vertex %d of %d", i, idx, n)
			}
		}
	}
	for i, v := range m.Vertices {
		for _, c := range v {
			if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
				return fmt.Errorf("vertex %d is not finite", i)
			}
		}
	}
	return nil
}

func (m *Mesh) VertexCount() int { return len(m.Vertices) }

func (m *Mesh) FaceCount() int { return len(m.Faces) }

// Bounds returns the axis aligned bounding box
func (m *Mesh) Bounds() (min, max [3]float32) {
	if len(m.Vertices) == 0 {
		return min, max
	}
	min, max = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		for k := 0; k < 3; k++ {
			if v[k] < min[k] {
				min[k] = v[k]
			}
			if v[k] > max[k] {
				max[k] = v[k]
			}
		}
	}
	return min, max
}

// Indices flattens the faces into an index buffer
func (m *Mesh) Indices() []uint32 {
	out := make([]uint32, 0, len(m.Faces)*3)
	for _, f := range m.Faces {
		out = append(out, f[0], f[1], f[2])
	}
	return out
}

func toModel3D(m *Mesh) *model3d.Mesh {
	out := model3d.NewMesh()
	for _, f := range m.Faces {
		if f[0] == f[1] || f[1] == f[2] || f[0] == f[2] {
			continue
		}
		out.Add(&model3d.Triangle{
			coord(m.Vertices[f[0]]),
			coord(m.Vertices[f[1]]),
			coord(m.Vertices[f[2]]),
		})
	}
	return out
}

func fromModel3D(src *model3d.Mesh, name string) *Mesh {
	index := make(map[model3d.Coord3D]uint32)
	out := &Mesh{Name: name}
	vertex := func(c model3d.Coord3D) uint32 {
		if i, ok := index[c]; ok {
			return i
		}
		i := uint32(len(out.Vertices))
		index[c] = i
		out.Vertices = append(out.Vertices, [3]float32{float32(c.X), float32(c.Y), float32(c.Z)})
		return i
	}
	for _, t := range src.TriangleSlice() {
		out.Faces = append(out.Faces, [3]uint32{vertex(t[0]), vertex(t[1]), vertex(t[2])})
	}
	return out
}

func coord(v [3]float32) model3d.Coord3D {
	return model3d.XYZ(float64(v[0]), float64(v[1]), float64(v[2]))
}
