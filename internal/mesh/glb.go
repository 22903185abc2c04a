package mesh

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// LoadGLB reads every triangle geometry of a glTF file. Node transforms
// are baked into the vertices so each geometry is in scene space.
func LoadGLB(path string) ([]*Mesh, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return fromDocument(doc)
}

func fromDocument(doc *gltf.Document) ([]*Mesh, error) {
	var out []*Mesh

	var visit func(idx uint32, parent mgl64.Mat4) error
	visit = func(idx uint32, parent mgl64.Mat4) error {
		if int(idx) >= len(doc.Nodes) {
			return fmt.Errorf("node %d out of range", idx)
		}
		node := doc.Nodes[idx]
		world := parent.Mul4(nodeMatrix(node))
		if node.Mesh != nil {
			meshes, err := readMesh(doc, *node.Mesh)
			if err != nil {
				return err
			}
			for _, m := range meshes {
				for i, v := range m.Vertices {
					m.Vertices[i] = transformPoint(world, v)
				}
				if node.Name != "" {
					m.Name = node.Name
				}
				out = append(out, m)
			}
		}
		for _, child := range node.Children {
			if err := visit(child, world); err != nil {
				return err
			}
		}
		return nil
	}

	var roots []uint32
	switch {
	case doc.Scene != nil && int(*doc.Scene) < len(doc.Scenes):
		roots = doc.Scenes[*doc.Scene].Nodes
	case len(doc.Scenes) > 0:
		roots = doc.Scenes[0].Nodes
	}

	if len(roots) == 0 {
		for i := range doc.Meshes {
			meshes, err := readMesh(doc, uint32(i))
			if err != nil {
				return nil, err
			}
			out = append(out, meshes...)
		}
	}
	for _, r := range roots {
		if err := visit(r, mgl64.Ident4()); err != nil {
			return nil, err
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no triangle geometry: %w", ErrEmpty)
	}
	for i, m := range out {
		if m.Name == "" {
			m.Name = fmt.Sprintf("geometry_%d", i)
		}
	}
	return out, nil
}

func readMesh(doc *gltf.Document, idx uint32) ([]*Mesh, error) {
	if int(idx) >= len(doc.Meshes) {
		return nil, fmt.Errorf("mesh %d out of range", idx)
	}
	src := doc.Meshes[idx]

	var out []*Mesh
	for pi, p := range src.Primitives {
		if p.Mode != gltf.PrimitiveTriangles {
			continue
		}
		posIdx, ok := p.Attributes[gltf.POSITION]
		if !ok {
			continue
		}
		positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
		if err != nil {
			return nil, fmt.Errorf("mesh %d primitive %d: %w", idx, pi, err)
		}

		var indices []uint32
		if p.Indices != nil {
			indices, err = modeler.ReadIndices(doc, doc.Accessors[*p.Indices], nil)
			if err != nil {
				return nil, fmt.Errorf("mesh %d primitive %d: %w", idx, pi, err)
			}
		} else {
			indices = make([]uint32, len(positions))
			for i := range indices {
				indices[i] = uint32(i)
			}
		}

		faces := make([][3]uint32, 0, len(indices)/3)
		for i := 0; i+2 < len(indices); i += 3 {
			faces = append(faces, [3]uint32{indices[i], indices[i+1], indices[i+2]})
		}

		m, err := New(positions, faces)
		if err != nil {
			return nil, fmt.Errorf("mesh %d primitive %d: %w", idx, pi, err)
		}
		m.Name = src.Name
		out = append(out, m)
	}
	return out, nil
}

func nodeMatrix(n *gltf.Node) mgl64.Mat4 {
	if n.Matrix != ([16]float32{}) && n.Matrix != gltf.DefaultMatrix {
		var m mgl64.Mat4
		for i, v := range n.Matrix {
			m[i] = float64(v)
		}
		return m
	}

	t := n.TranslationOrDefault()
	r := n.RotationOrDefault()
	s := n.ScaleOrDefault()

	q := mgl64.Quat{W: float64(r[3]), V: mgl64.Vec3{float64(r[0]), float64(r[1]), float64(r[2])}}
	return mgl64.Translate3D(float64(t[0]), float64(t[1]), float64(t[2])).
		Mul4(q.Normalize().Mat4()).
		Mul4(mgl64.Scale3D(float64(s[0]), float64(s[1]), float64(s[2])))
}
