package handlers

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/botforge/forge3d/internal/storage"
	"github.com/botforge/forge3d/pkg/types"
)

// SearchImage finds and stores a reference image for a text query
func (h *Handlers) SearchImage(c *gin.Context) {
	var req types.SearchImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	resp, err := h.daemon.SearchImage(c.Request.Context(), req)
	if err != nil {
		fail(c, "Image search", err)
		return
	}
	if resp == nil {
		c.JSON(http.StatusOK, types.NoImagesResponse{
			Images:  []types.ImageResult{},
			Message: "No images found",
		})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Merge combines parts into one mesh file
func (h *Handlers) Merge(c *gin.Context) {
	var req types.MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Errorf("invalid request: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.daemon.Merge(c.Request.Context(), req)
	if err != nil {
		fail(c, "Merge", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Rig runs the rigging toolchain on a mesh
func (h *Handlers) Rig(c *gin.Context) {
	var req types.RigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	resp, err := h.daemon.Rig(c.Request.Context(), req)
	if err != nil {
		fail(c, "Rigging", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ServeGenerated streams a file from the output directory
func (h *Handlers) ServeGenerated(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("filepath"), "/")
	notFound := func() {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "File not found: " + name})
	}

	full, err := storage.SafeJoin(h.daemon.Paths().OutputDir(), name)
	if err != nil {
		notFound()
		return
	}
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		notFound()
		return
	}
	c.File(full)
}
