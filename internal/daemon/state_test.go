package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforge/forge3d/pkg/types"
)

func TestStateLoadMissingFile(t *testing.T) {
	s := NewState(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, s.Load())

	stats := s.GetStatistics()
	assert.Equal(t, 1, stats.DaemonStartCount)
	assert.Equal(t, s.StartTime, stats.LastStartTime)
	assert.Empty(t, s.ListAssets())
}

func TestStateSaveLoad(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")

	mesh := filepath.Join(dir, "gen_1.glb")
	require.NoError(t, os.WriteFile(mesh, make([]byte, 64), 0644))
	img := filepath.Join(dir, "ref_1.png")
	require.NoError(t, os.WriteFile(img, make([]byte, 16), 0644))

	s := NewState(statePath)
	require.NoError(t, s.Load())
	s.AddAsset(types.Asset{ID: "gen_1", Kind: types.AssetMesh, Path: mesh, Size: 64})
	s.AddAsset(types.Asset{ID: "ref_1", Kind: types.AssetReferenceImage, Path: img, Size: 16})
	s.IncrementMerged()
	require.NoError(t, s.Save())

	assert.NoFileExists(t, statePath+".tmp")

	reloaded := NewState(statePath)
	require.NoError(t, reloaded.Load())

	stats := reloaded.GetStatistics()
	assert.Equal(t, 2, stats.DaemonStartCount)
	assert.Equal(t, 1, stats.MeshesWritten)
	assert.Equal(t, 1, stats.MeshesMerged)
	assert.Equal(t, 1, stats.ImagesFetched)
	assert.Equal(t, int64(80), stats.BytesWritten)

	a, ok := reloaded.GetAsset("gen_1")
	require.True(t, ok)
	assert.Equal(t, types.AssetMesh, a.Kind)
	assert.Equal(t, mesh, a.Path)
}

func TestStatePrunesMissingFiles(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	kept := filepath.Join(dir, "kept.glb")
	gone := filepath.Join(dir, "gone.glb")
	require.NoError(t, os.WriteFile(kept, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(gone, []byte("x"), 0644))

	s := NewState(statePath)
	s.AddAsset(types.Asset{ID: "kept", Kind: types.AssetMesh, Path: kept})
	s.AddAsset(types.Asset{ID: "gone", Kind: types.AssetMesh, Path: gone})
	require.NoError(t, s.Save())
	require.NoError(t, os.Remove(gone))

	reloaded := NewState(statePath)
	require.NoError(t, reloaded.Load())

	_, ok := reloaded.GetAsset("kept")
	assert.True(t, ok)
	_, ok = reloaded.GetAsset("gone")
	assert.False(t, ok)
}

func TestStateLoadCorrupt(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(statePath, []byte("{not json"), 0644))

	s := NewState(statePath)
	assert.Error(t, s.Load())
}

func TestStateListAssetsNewestFirst(t *testing.T) {
	s := NewState(filepath.Join(t.TempDir(), "state.json"))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.AddAsset(types.Asset{ID: "b", Kind: types.AssetMesh, CreatedAt: base})
	s.AddAsset(types.Asset{ID: "c", Kind: types.AssetMesh, CreatedAt: base.Add(time.Hour)})
	s.AddAsset(types.Asset{ID: "a", Kind: types.AssetMesh, CreatedAt: base})

	var ids []string
	for _, a := range s.ListAssets() {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	s.RemoveAsset("c")
	assert.Len(t, s.ListAssets(), 2)
}

func TestStateAddAssetReplaces(t *testing.T) {
	s := NewState(filepath.Join(t.TempDir(), "state.json"))
	s.AddAsset(types.Asset{ID: "rig_bot", Kind: types.AssetRig, Path: "/a"})
	s.AddAsset(types.Asset{ID: "rig_bot", Kind: types.AssetRig, Path: "/b"})

	a, ok := s.GetAsset("rig_bot")
	require.True(t, ok)
	assert.Equal(t, "/b", a.Path)
	assert.Len(t, s.ListAssets(), 1)
	assert.Equal(t, 2, s.GetStatistics().RigsCompleted)
	assert.False(t, a.CreatedAt.IsZero())
}
