package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// Transform places a geometry in a scene. Rotation is Euler angles in
// degrees applied about the static X, then Y, then Z axes.
type Transform struct {
	Translation [3]float64
	RotationDeg [3]float64
}

// Identity is the zero transform
var Identity = Transform{}

// Rotation returns Rz * Ry * Rx
func (t Transform) Rotation() mgl64.Mat4 {
	rx := mgl64.HomogRotate3DX(mgl64.DegToRad(t.RotationDeg[0]))
	ry := mgl64.HomogRotate3DY(mgl64.DegToRad(t.RotationDeg[1]))
	rz := mgl64.HomogRotate3DZ(mgl64.DegToRad(t.RotationDeg[2]))
	return rz.Mul4(ry).Mul4(rx)
}

// Matrix returns T * Rz * Ry * Rx
func (t Transform) Matrix() mgl64.Mat4 {
	tr := mgl64.Translate3D(t.Translation[0], t.Translation[1], t.Translation[2])
	return tr.Mul4(t.Rotation())
}

// Quaternion returns the rotation as a glTF (x, y, z, w) quaternion
func (t Transform) Quaternion() [4]float32 {
	q := mgl64.Mat4ToQuat(t.Rotation()).Normalize()
	return [4]float32{float32(q.V[0]), float32(q.V[1]), float32(q.V[2]), float32(q.W)}
}

// Apply transforms a point
func (t Transform) Apply(v [3]float32) [3]float32 {
	return transformPoint(t.Matrix(), v)
}

func transformPoint(m mgl64.Mat4, v [3]float32) [3]float32 {
	p := m.Mul4x1(mgl64.Vec4{float64(v[0]), float64(v[1]), float64(v[2]), 1})
	return [3]float32{float32(p[0]), float32(p[1]), float32(p[2])}
}

// Scene assembles geometries into a single glTF document, one node per
// geometry carrying its placement
type Scene struct {
	doc   *gltf.Document
	faces int
}

func NewScene() *Scene {
	doc := gltf.NewDocument()
	doc.Asset.Generator = "forge3d"
	return &Scene{doc: doc}
}

// Add attaches a geometry under a named node
func (s *Scene) Add(nodeName string, m *Mesh, t Transform) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("geometry %q: %w", nodeName, err)
	}

	pos := modeler.WritePosition(s.doc, m.Vertices)
	idx := modeler.WriteIndices(s.doc, m.Indices())

	meshName := m.Name
	if meshName == "" {
		meshName = nodeName
	}
	s.doc.Meshes = append(s.doc.Meshes, &gltf.Mesh{
		Name: meshName,
		Primitives: []*gltf.Primitive{{
			Indices:    gltf.Index(idx),
			Attributes: map[string]uint32{gltf.POSITION: pos},
		}},
	})

	s.doc.Nodes = append(s.doc.Nodes, &gltf.Node{
		Name:   nodeName,
		Mesh:   gltf.Index(uint32(len(s.doc.Meshes) - 1)),
		Matrix: gltf.DefaultMatrix,
		Translation: [3]float32{
			float32(t.Translation[0]),
			float32(t.Translation[1]),
			float32(t.Translation[2]),
		},
		Rotation: t.Quaternion(),
		Scale:    [3]float32{1, 1, 1},
	})
	s.doc.Scenes[0].Nodes = append(s.doc.Scenes[0].Nodes, uint32(len(s.doc.Nodes)-1))
	s.faces += m.FaceCount()
	return nil
}

// Len returns the number of geometries added
func (s *Scene) Len() int { return len(s.doc.Nodes) }

// FaceCount returns the total faces across geometries
func (s *Scene) FaceCount() int { return s.faces }

// Encode writes the scene as binary glTF
func (s *Scene) Encode(w io.Writer) error {
	if s.Len() == 0 {
		return ErrEmpty
	}
	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	return enc.Encode(s.doc)
}

// Save writes the scene to path through a temporary file in the same
// directory and returns the number of bytes written
func (s *Scene) Save(path string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	cw := &countingWriter{w: bw}
	if err := s.Encode(cw); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to encode glb: %w", err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to write glb: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close glb: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to move glb into place: %w", err)
	}
	return cw.n, nil
}

// SaveGLB writes meshes untransformed into a single file
func SaveGLB(path string, meshes ...*Mesh) (int64, error) {
	s := NewScene()
	for i, m := range meshes {
		name := m.Name
		if name == "" {
			name = fmt.Sprintf("geometry_%d", i)
		}
		if err := s.Add(name, m, Identity); err != nil {
			return 0, err
		}
	}
	return s.Save(path)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
