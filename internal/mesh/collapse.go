package mesh

import (
	"container/heap"
	"context"
	"fmt"
	"math"
)

type edge struct {
	a, b       uint32
	length     float64
	verA, verB uint32
}

// edgeQueue is a min-heap of edges by length
type edgeQueue []edge

func (q edgeQueue) Len() int            { return len(q) }
func (q edgeQueue) Less(i, j int) bool  { return q[i].length < q[j].length }
func (q edgeQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *edgeQueue) Push(x interface{}) { *q = append(*q, x.(edge)) }
func (q *edgeQueue) Pop() interface{} {
	old := *q
	e := old[len(old)-1]
	*q = old[:len(old)-1]
	return e
}

// collapseEdges merges the endpoints of the shortest edge into its midpoint
// until at most target faces remain. Every collapse removes the faces that
// shared the edge. The last faces of a mesh are never collapsed away.
func collapseEdges(ctx context.Context, m *Mesh, target int) (*Mesh, error) {
	pos := make([][3]float64, len(m.Vertices))
	for i, v := range m.Vertices {
		pos[i] = [3]float64{float64(v[0]), float64(v[1]), float64(v[2])}
	}

	faces := make([][3]uint32, len(m.Faces))
	copy(faces, m.Faces)
	live := make([]bool, len(faces))
	incident := make([][]int, len(pos))
	var alive int
	for i, f := range faces {
		if f[0] == f[1] || f[1] == f[2] || f[0] == f[2] {
			continue
		}
		live[i] = true
		alive++
		for _, v := range f {
			incident[v] = append(incident[v], i)
		}
	}

	removed := make([]bool, len(pos))
	version := make([]uint32, len(pos))
	newEdge := func(a, b uint32) edge {
		if a > b {
			a, b = b, a
		}
		return edge{a: a, b: b, length: distance(pos[a], pos[b]), verA: version[a], verB: version[b]}
	}

	q := make(edgeQueue, 0, 3*alive)
	for i, f := range faces {
		if live[i] {
			q = append(q, newEdge(f[0], f[1]), newEdge(f[1], f[2]), newEdge(f[2], f[0]))
		}
	}
	heap.Init(&q)

	for step := 0; alive > target && q.Len() > 0; step++ {
		if step%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		e := heap.Pop(&q).(edge)
		if removed[e.a] || removed[e.b] || version[e.a] != e.verA || version[e.b] != e.verB {
			continue
		}

		var shared int
		for _, fi := range incident[e.b] {
			if live[fi] && hasVertex(faces[fi], e.a) {
				shared++
			}
		}
		if shared == 0 || shared >= alive {
			continue
		}

		for k := 0; k < 3; k++ {
			pos[e.a][k] = (pos[e.a][k] + pos[e.b][k]) / 2
		}
		for _, fi := range incident[e.b] {
			if !live[fi] {
				continue
			}
			if hasVertex(faces[fi], e.a) {
				live[fi] = false
				alive--
				continue
			}
			for k := range faces[fi] {
				if faces[fi][k] == e.b {
					faces[fi][k] = e.a
				}
			}
			incident[e.a] = append(incident[e.a], fi)
		}
		incident[e.b] = nil
		removed[e.b] = true
		version[e.a]++

		kept := incident[e.a][:0]
		seen := make(map[uint32]bool)
		for _, fi := range incident[e.a] {
			if !live[fi] {
				continue
			}
			kept = append(kept, fi)
			for _, v := range faces[fi] {
				if v != e.a && !seen[v] {
					seen[v] = true
					heap.Push(&q, newEdge(e.a, v))
				}
			}
		}
		incident[e.a] = kept
	}

	if alive > target {
		return nil, fmt.Errorf("could not reduce %d faces to %d, stopped at %d", m.FaceCount(), target, alive)
	}

	out := &Mesh{Name: m.Name}
	index := make(map[uint32]uint32)
	for i, f := range faces {
		if !live[i] {
			continue
		}
		var nf [3]uint32
		for k, v := range f {
			idx, ok := index[v]
			if !ok {
				idx = uint32(len(out.Vertices))
				index[v] = idx
				p := pos[v]
				out.Vertices = append(out.Vertices, [3]float32{float32(p[0]), float32(p[1]), float32(p[2])})
			}
			nf[k] = idx
		}
		out.Faces = append(out.Faces, nf)
	}
	return out, nil
}

func hasVertex(f [3]uint32, v uint32) bool {
	return f[0] == v || f[1] == v || f[2] == v
}

func distance(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
