package daemon

import (
	"context"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/botforge/forge3d/internal/config"
	"github.com/botforge/forge3d/internal/gpu"
	"github.com/botforge/forge3d/internal/imageutil"
	"github.com/botforge/forge3d/internal/mesh"
	"github.com/botforge/forge3d/internal/models"
	"github.com/botforge/forge3d/internal/rigging"
	"github.com/botforge/forge3d/internal/search"
)

// uvSphere builds a closed latitude/longitude sphere
func uvSphere(rings, segments int) *mesh.Mesh {
	var verts [][3]float32
	var faces [][3]uint32

	verts = append(verts, [3]float32{0, 1, 0})
	for r := 1; r < rings; r++ {
		phi := math.Pi * float64(r) / float64(rings)
		for s := 0; s < segments; s++ {
			theta := 2 * math.Pi * float64(s) / float64(segments)
			verts = append(verts, [3]float32{
				float32(math.Sin(phi) * math.Cos(theta)),
				float32(math.Cos(phi)),
				float32(math.Sin(phi) * math.Sin(theta)),
			})
		}
	}
	bottom := uint32(len(verts))
	verts = append(verts, [3]float32{0, -1, 0})

	ring := func(r, s int) uint32 {
		return uint32(1 + (r-1)*segments + (s % segments))
	}
	for s := 0; s < segments; s++ {
		faces = append(faces, [3]uint32{0, ring(1, s+1), ring(1, s)})
	}
	for r := 1; r < rings-1; r++ {
		for s := 0; s < segments; s++ {
			a, b := ring(r, s), ring(r, s+1)
			c, d := ring(r+1, s), ring(r+1, s+1)
			faces = append(faces, [3]uint32{a, b, d}, [3]uint32{a, d, c})
		}
	}
	for s := 0; s < segments; s++ {
		faces = append(faces, [3]uint32{bottom, ring(rings-1, s), ring(rings-1, s+1)})
	}

	m, err := mesh.New(verts, faces)
	if err != nil {
		panic(err)
	}
	return m
}

type fakeReconstructor struct {
	mesh func() *mesh.Mesh
	mu   sync.Mutex
	last models.Params
	size image.Rectangle
}

func (f *fakeReconstructor) Reconstruct(ctx context.Context, img image.Image, p models.Params) (*mesh.Mesh, error) {
	f.mu.Lock()
	f.last, f.size = p, img.Bounds()
	f.mu.Unlock()
	return f.mesh(), nil
}

type fakeSegmenter struct {
	mu    sync.Mutex
	calls int
}

// RemoveBackground keeps the center quarter of the image
func (f *fakeSegmenter) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	b := img.Bounds()
	out := imaging.New(b.Dx(), b.Dy(), color.NRGBA{})
	center := imaging.Crop(img, image.Rect(b.Dx()/4, b.Dy()/4, 3*b.Dx()/4, 3*b.Dy()/4))
	return imaging.Paste(out, center, image.Pt(b.Dx()/4, b.Dy()/4)), nil
}

type fakeBackend struct {
	mu      sync.Mutex
	loads   int
	unloads int
	loadErr error
	// unloadCtxErr is the context error seen by the last Unload
	unloadCtxErr error
	recon   *fakeReconstructor
	seg     *fakeSegmenter
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		recon: &fakeReconstructor{mesh: func() *mesh.Mesh { return uvSphere(16, 24) }},
		seg:   &fakeSegmenter{},
	}
}

func (f *fakeBackend) Load(ctx context.Context) (*models.Pipelines, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return &models.Pipelines{Reconstructor: f.recon, Segmenter: f.seg}, nil
}

func (f *fakeBackend) Unload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unloads++
	f.unloadCtxErr = ctx.Err()
	return nil
}

func (f *fakeBackend) counts() (loads, unloads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads, f.unloads
}

type fakeRigger struct {
	result *rigging.Result
	err    error
	req    rigging.Request
	// loadedDuring records whether models were resident when Rig ran
	loadedDuring func() bool
	wasLoaded    bool
}

func (f *fakeRigger) Rig(ctx context.Context, req rigging.Request) (*rigging.Result, error) {
	f.req = req
	if f.loadedDuring != nil {
		f.wasLoaded = f.loadedDuring()
	}
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	r.OutputDir = req.WorkDir
	if r.SkinJSON != "" {
		r.SkinJSON = filepath.Join(req.WorkDir, rigging.SkinFile)
	}
	return &r, nil
}

type fakeProvider struct {
	results []search.Result
	err     error
}

func (f *fakeProvider) Search(ctx context.Context, query string, max int) ([]search.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if max > 0 && len(f.results) > max {
		return f.results[:max], nil
	}
	return f.results, nil
}

type fakeDownloader struct {
	data []byte
	err  error
	urls []string
}

func (f *fakeDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	f.urls = append(f.urls, url)
	return f.data, f.err
}

type fakeProbe struct{ info gpu.Info }

func (f fakeProbe) Query(ctx context.Context) gpu.Info { return f.info }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()

	cfg := config.Defaults()
	cfg.Storage.BaseDir = filepath.Join(root, ".forge3d")
	cfg.Storage.ProjectRoot = root
	cfg.Storage.OutputDir = filepath.Join(root, "public", "parts", "generated")
	cfg.Search.Provider = "none"
	cfg.Cleanup.Enabled = false
	cfg.Mirror.Enabled = false
	return cfg
}

type testEnv struct {
	d       *Daemon
	backend *fakeBackend
	rigger  *fakeRigger
	search  *fakeProvider
	fetch   *fakeDownloader
}

func newTestDaemon(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		backend: newFakeBackend(),
		rigger: &fakeRigger{result: &rigging.Result{
			Status:      rigging.StatusComplete,
			SkinJSON:    "skin.json",
			BoneCount:   22,
			VertexCount: 1500,
		}},
		search: &fakeProvider{},
		fetch:  &fakeDownloader{},
	}

	all := append([]Option{
		WithBackend(env.backend),
		WithRigger(env.rigger),
		WithSearchProvider(env.search),
		WithDownloader(env.fetch),
		WithGPUProbe(fakeProbe{info: gpu.Info{Available: false, Error: "nvidia-smi not found"}}),
	}, opts...)

	d, err := New(testConfig(t), zap.NewNop(), all...)
	require.NoError(t, err)
	t.Cleanup(func() { d.Shutdown() })

	env.d = d
	env.rigger.loadedDuring = d.models.Loaded
	return env
}

// opaqueImage is a flat colored square with a darker subject in the middle
func opaqueImage(t *testing.T, size int) []byte {
	t.Helper()
	img := imaging.New(size, size, color.White)
	img = imaging.Paste(img, imaging.New(size/2, size/2, color.NRGBA{R: 180, G: 50, B: 50, A: 255}), image.Pt(size/4, size/4))
	data, err := imageutil.PNGBytes(img)
	require.NoError(t, err)
	return data
}

func transparentImage(t *testing.T, size int) []byte {
	t.Helper()
	data, err := imageutil.PNGBytes(imageutil.TestRobot(size))
	require.NoError(t, err)
	return data
}

func writePart(t *testing.T, d *Daemon, name string, m *mesh.Mesh) string {
	t.Helper()
	path := d.paths.PartPath(name + ".glb")
	_, err := mesh.SaveGLB(path, m)
	require.NoError(t, err)
	return path
}
