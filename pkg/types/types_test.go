package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     MergeRequest
		wantErr string
	}{
		{
			name: "full transforms",
			req: MergeRequest{Parts: []MergePart{
				{Path: "/parts/generated/a.glb", Position: []float64{0, 1, 0}, Rotation: []float64{0, 90, 0}},
			}},
		},
		{
			name: "transforms omitted",
			req:  MergeRequest{Parts: []MergePart{{Path: "a.glb"}, {Path: "b.glb"}}},
		},
		{
			name:    "no parts",
			req:     MergeRequest{},
			wantErr: "parts must not be empty",
		},
		{
			name:    "missing path",
			req:     MergeRequest{Parts: []MergePart{{Path: "a.glb"}, {}}},
			wantErr: "parts[1].path is required",
		},
		{
			name:    "short position",
			req:     MergeRequest{Parts: []MergePart{{Path: "a.glb", Position: []float64{1, 2}}}},
			wantErr: "parts[0].position must have 3 values, got 2",
		},
		{
			name:    "long rotation",
			req:     MergeRequest{Parts: []MergePart{{Path: "a.glb", Rotation: []float64{1, 2, 3, 4}}}},
			wantErr: "parts[0].rotation must have 3 values, got 4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestSearchImageRequestRemoveBG(t *testing.T) {
	var req SearchImageRequest
	require.NoError(t, json.Unmarshal([]byte(`{"query":"robot"}`), &req))
	assert.True(t, req.ShouldRemoveBG())

	require.NoError(t, json.Unmarshal([]byte(`{"query":"robot","remove_bg":false}`), &req))
	assert.False(t, req.ShouldRemoveBG())
}

func TestRigResponseNullSkin(t *testing.T) {
	data, err := json.Marshal(RigResponse{Status: "partial_no_skin_data", Message: "x"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"skin_json":null`)

	skin := "/parts/generated/rig_bot/skin.json"
	data, err = json.Marshal(RigResponse{Status: "complete", SkinJSON: &skin, BoneCount: 3})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"skin_json":"/parts/generated/rig_bot/skin.json"`)
	assert.NotContains(t, string(data), "message")
}

func TestNoImagesResponseShape(t *testing.T) {
	data, err := json.Marshal(NoImagesResponse{Images: []ImageResult{}, Message: "No images found"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"images":[],"message":"No images found"}`, string(data))
}

func TestDefaultGenerateParams(t *testing.T) {
	p := DefaultGenerateParams()
	assert.Equal(t, 50, p.Steps)
	assert.Equal(t, 7.0, p.GuidanceScale)
	assert.Equal(t, int64(42), p.Seed)
	assert.Equal(t, -1, p.Faces)
}
