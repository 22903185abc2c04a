package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforge/forge3d/internal/apperr"
	"github.com/botforge/forge3d/internal/mesh"
	"github.com/botforge/forge3d/pkg/types"
)

func cube(name string) *mesh.Mesh {
	m, err := mesh.New(
		[][3]float32{
			{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
			{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
		},
		[][3]uint32{
			{0, 2, 1}, {0, 3, 2}, {4, 5, 6}, {4, 6, 7},
			{0, 1, 5}, {0, 5, 4}, {2, 3, 7}, {2, 7, 6},
			{1, 2, 6}, {1, 6, 5}, {0, 4, 7}, {0, 7, 3},
		},
	)
	if err != nil {
		panic(err)
	}
	m.Name = name
	return m
}

func TestMerge(t *testing.T) {
	env := newTestDaemon(t)
	d := env.d

	writePart(t, d, "body", cube("body"))
	library := filepath.Join(d.paths.ProjectRoot(), "public", "parts", "library", "wheel.glb")
	require.NoError(t, os.MkdirAll(filepath.Dir(library), 0755))
	_, err := mesh.SaveGLB(library, cube("wheel"))
	require.NoError(t, err)

	resp, err := d.Merge(context.Background(), types.MergeRequest{
		Parts: []types.MergePart{
			{Path: "/parts/generated/body.glb"},
			{Path: "/public/parts/library/wheel.glb", Position: []float64{5, 0, 0}, Rotation: []float64{0, 0, 90}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "/parts/generated/merged_bot.glb", resp.MergedPath)
	assert.Equal(t, 2, resp.PartsCount)

	out := d.paths.PartPath("merged_bot.glb")
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), resp.FileSize)

	meshes, err := mesh.LoadGLB(out)
	require.NoError(t, err)
	require.Len(t, meshes, 2)
	assert.Equal(t, "part_0", meshes[0].Name)
	assert.Equal(t, "part_1", meshes[1].Name)

	_, max0 := meshes[0].Bounds()
	min1, _ := meshes[1].Bounds()
	assert.InDelta(t, 1.0, max0[0], 1e-5)
	assert.InDelta(t, 4.0, min1[0], 1e-5, "rotated 90 degrees about z then moved 5 along x")

	stats := d.state.GetStatistics()
	assert.Equal(t, 1, stats.MeshesMerged)
}

func TestMergeMultiGeometryPartNames(t *testing.T) {
	env := newTestDaemon(t)
	d := env.d

	a, b := cube("left"), cube("right")
	path := d.paths.PartPath("pair.glb")
	_, err := mesh.SaveGLB(path, a, b)
	require.NoError(t, err)

	_, err = d.Merge(context.Background(), types.MergeRequest{
		Parts:      []types.MergePart{{Path: "/parts/generated/pair.glb"}},
		OutputName: "pair_merged",
	})
	require.NoError(t, err)

	meshes, err := mesh.LoadGLB(d.paths.PartPath("pair_merged.glb"))
	require.NoError(t, err)
	require.Len(t, meshes, 2)
	assert.Equal(t, "part_0_left", meshes[0].Name)
	assert.Equal(t, "part_0_right", meshes[1].Name)
}

func TestMergeMissingPartWritesNothing(t *testing.T) {
	env := newTestDaemon(t)
	d := env.d

	writePart(t, d, "body", cube("body"))

	_, err := d.Merge(context.Background(), types.MergeRequest{
		Parts: []types.MergePart{
			{Path: "/parts/generated/body.glb"},
			{Path: "/parts/generated/ghost.glb"},
		},
		OutputName: "broken",
	})
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Contains(t, err.Error(), "/parts/generated/ghost.glb")
	assert.NoFileExists(t, d.paths.PartPath("broken.glb"))
}

func TestMergeValidation(t *testing.T) {
	env := newTestDaemon(t)
	writePart(t, env.d, "body", cube("body"))

	tests := []struct {
		name string
		req  types.MergeRequest
	}{
		{"no parts", types.MergeRequest{}},
		{"bad position", types.MergeRequest{Parts: []types.MergePart{{Path: "/parts/generated/body.glb", Position: []float64{1}}}}},
		{"bad name", types.MergeRequest{Parts: []types.MergePart{{Path: "/parts/generated/body.glb"}}, OutputName: "../escape"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.d.Merge(context.Background(), tt.req)
			assert.ErrorIs(t, err, apperr.ErrInvalid)
		})
	}
}

func TestMergeCorruptPart(t *testing.T) {
	env := newTestDaemon(t)
	require.NoError(t, os.WriteFile(env.d.paths.PartPath("junk.glb"), []byte("not a glb"), 0644))

	_, err := env.d.Merge(context.Background(), types.MergeRequest{
		Parts: []types.MergePart{{Path: "/parts/generated/junk.glb"}},
	})
	assert.Error(t, err)
	assert.NoFileExists(t, env.d.paths.PartPath("merged_bot.glb"))
}
