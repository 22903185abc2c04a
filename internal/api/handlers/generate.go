package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/botforge/forge3d/pkg/types"
)

// Generate reconstructs a mesh from the uploaded "file" form field
func (h *Handlers) Generate(c *gin.Context) {
	params := types.DefaultGenerateParams()
	if err := c.ShouldBindQuery(&params); err != nil {
		badRequest(c, fmt.Errorf("invalid query parameters: %w", err))
		return
	}
	if params.Steps < 1 {
		badRequest(c, fmt.Errorf("num_inference_steps must be positive, got %d", params.Steps))
		return
	}

	if limit := h.daemon.Config().Server.MaxUploadMB; limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit<<20)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, types.ErrorResponse{
				Error: fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		badRequest(c, fmt.Errorf("multipart field \"file\" is required: %w", err))
		return
	}

	f, err := header.Open()
	if err != nil {
		fail(c, "Generation", err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		fail(c, "Generation", err)
		return
	}

	resp, err := h.daemon.Generate(c.Request.Context(), data, params)
	if err != nil {
		fail(c, "Generation", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
