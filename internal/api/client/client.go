package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/botforge/forge3d/pkg/types"
)

// DefaultTimeout covers a full generation or rigging run
const DefaultTimeout = 10 * time.Minute

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// APIError is a non-2xx answer from the server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// Health checks if the server is healthy
func (c *Client) Health() (*types.HealthResponse, error) {
	var out types.HealthResponse
	if err := c.getJSON("/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStatus returns accelerator and model residency information
func (c *Client) GetStatus() (*types.StatusResponse, error) {
	var out types.StatusResponse
	if err := c.getJSON("/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListParts returns the asset catalog
func (c *Client) ListParts() (*types.AssetsResponse, error) {
	var out types.AssetsResponse
	if err := c.getJSON("/parts", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Generate uploads an image file and returns the generated part
func (c *Client) Generate(imagePath string, params types.GenerateParams) (*types.GenerateResponse, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", imagePath, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(imagePath))
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("num_inference_steps", strconv.Itoa(params.Steps))
	q.Set("guidance_scale", strconv.FormatFloat(params.GuidanceScale, 'f', -1, 64))
	q.Set("seed", strconv.FormatInt(params.Seed, 10))
	q.Set("faces", strconv.Itoa(params.Faces))

	req, err := http.NewRequest("POST", c.baseURL+"/generate?"+q.Encode(), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out types.GenerateResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchImage looks up and stores a reference image. A nil response means
// nothing was found.
func (c *Client) SearchImage(query string, removeBG bool) (*types.SearchImageResponse, error) {
	payload := types.SearchImageRequest{Query: query, RemoveBG: &removeBG}

	var raw json.RawMessage
	if err := c.postJSON("/search-image", payload, &raw); err != nil {
		return nil, err
	}

	var empty types.NoImagesResponse
	if err := json.Unmarshal(raw, &empty); err == nil && empty.Images != nil {
		return nil, nil
	}

	var out types.SearchImageResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Merge combines parts into one mesh file
func (c *Client) Merge(req types.MergeRequest) (*types.MergeResponse, error) {
	var out types.MergeResponse
	if err := c.postJSON("/merge", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Rig runs the rigging toolchain on a generated mesh
func (c *Client) Rig(req types.RigRequest) (*types.RigResponse, error) {
	var out types.RigResponse
	if err := c.postJSON("/rig", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HTTP helper methods

func (c *Client) getJSON(path string, out any) error {
	req, err := http.NewRequest("GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var body types.ErrorResponse
		if data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil {
			if json.Unmarshal(data, &body) == nil {
				apiErr.Message = body.Error
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
