package types

import (
	"fmt"
	"time"
)

// Asset kinds recorded in the catalog
const (
	AssetMesh           = "mesh"
	AssetReferenceImage = "reference_image"
	AssetRig            = "rig"
)

// Asset is one file the service wrote
type Asset struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type HealthResponse struct {
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
}

// GPUInfo is the accelerator status. Problems querying the device are
// reported through Available and Error.
type GPUInfo struct {
	Available   bool    `json:"available"`
	Name        string  `json:"name,omitempty"`
	Count       int     `json:"gpu_count"`
	TotalGB     float64 `json:"total_vram_gb"`
	AllocatedGB float64 `json:"allocated_gb"`
	ReservedGB  float64 `json:"reserved_gb"`
	FreeGB      float64 `json:"free_gb"`
	Error       string  `json:"error,omitempty"`
}

// DiskUsage is the space taken by generated files and service state, in bytes
type DiskUsage struct {
	Total  int64 `json:"total"`
	Output int64 `json:"output"`
	State  int64 `json:"state"`
}

type StatusResponse struct {
	GPU            GPUInfo   `json:"gpu"`
	ModelsLoaded   bool      `json:"models_loaded"`
	OutputDir      string    `json:"output_dir"`
	GeneratedParts int       `json:"generated_parts"`
	DiskUsage      DiskUsage `json:"disk_usage"`
}

// GenerateParams are the query parameters of /generate
type GenerateParams struct {
	Steps         int     `form:"num_inference_steps" json:"num_inference_steps"`
	GuidanceScale float64 `form:"guidance_scale" json:"guidance_scale"`
	Seed          int64   `form:"seed" json:"seed"`
	Faces         int     `form:"faces" json:"faces"`
}

// DefaultGenerateParams returns the parameters used when a request omits them
func DefaultGenerateParams() GenerateParams {
	return GenerateParams{
		Steps:         50,
		GuidanceScale: 7.0,
		Seed:          42,
		Faces:         -1,
	}
}

type GenerateResponse struct {
	PartID   string  `json:"part_id"`
	GLBPath  string  `json:"glb_path"`
	Vertices int     `json:"vertices"`
	Faces    int     `json:"faces"`
	ElapsedS float64 `json:"elapsed_s"`
}

type SearchImageRequest struct {
	Query    string `json:"query" binding:"required"`
	RemoveBG *bool  `json:"remove_bg,omitempty"`
}

// ShouldRemoveBG defaults to true when the field is absent
func (r SearchImageRequest) ShouldRemoveBG() bool {
	return r.RemoveBG == nil || *r.RemoveBG
}

type ImageResult struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type SearchImageResponse struct {
	ImageID    string        `json:"image_id"`
	ImagePath  string        `json:"image_path"`
	SourceURL  string        `json:"source_url"`
	Size       [2]int        `json:"size"`
	AllResults []ImageResult `json:"all_results"`
}

// NoImagesResponse is returned when a search finds nothing
type NoImagesResponse struct {
	Images  []ImageResult `json:"images"`
	Message string        `json:"message"`
}

type MergePart struct {
	Path     string    `json:"path"`
	Position []float64 `json:"position,omitempty"`
	Rotation []float64 `json:"rotation,omitempty"`
}

type MergeRequest struct {
	Parts      []MergePart `json:"parts"`
	OutputName string      `json:"output_name,omitempty"`
}

// Validate checks the request shape. Position and rotation are optional
// but must hold three values when given.
func (r MergeRequest) Validate() error {
	if len(r.Parts) == 0 {
		return fmt.Errorf("parts must not be empty")
	}
	for i, p := range r.Parts {
		if p.Path == "" {
			return fmt.Errorf("parts[%d].path is required", i)
		}
		if n := len(p.Position); n != 0 && n != 3 {
			return fmt.Errorf("parts[%d].position must have 3 values, got %d", i, n)
		}
		if n := len(p.Rotation); n != 0 && n != 3 {
			return fmt.Errorf("parts[%d].rotation must have 3 values, got %d", i, n)
		}
	}
	return nil
}

type MergeResponse struct {
	MergedPath string `json:"merged_path"`
	PartsCount int    `json:"parts_count"`
	FileSize   int64  `json:"file_size"`
}

type RigRequest struct {
	GLBPath    string `json:"glb_path" binding:"required"`
	OutputName string `json:"output_name,omitempty"`
}

type RigResponse struct {
	Status      string  `json:"status"`
	OutputDir   string  `json:"output_dir"`
	GLBInput    string  `json:"glb_input"`
	SkinJSON    *string `json:"skin_json"`
	BoneCount   int     `json:"bone_count"`
	VertexCount int     `json:"vertex_count"`
	Message     string  `json:"message,omitempty"`
}

type AssetsResponse struct {
	Assets []Asset `json:"assets"`
	Count  int     `json:"count"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Default output names
const (
	DefaultMergeName = "merged_bot"
	DefaultRigName   = "rigged_bot"
)
