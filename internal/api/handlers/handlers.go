package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/botforge/forge3d/internal/apperr"
	"github.com/botforge/forge3d/internal/daemon"
	"github.com/botforge/forge3d/internal/rigging"
	"github.com/botforge/forge3d/pkg/types"
)

type Handlers struct {
	daemon *daemon.Daemon
}

func NewHandlers(d *daemon.Daemon) *Handlers {
	return &Handlers{
		daemon: d,
	}
}

// Health endpoint for health checks
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.daemon.Health())
}

// Status returns accelerator, model residency and output directory information
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.daemon.GetStatus(c.Request.Context()))
}

// ListParts returns the asset catalog
func (h *Handlers) ListParts(c *gin.Context) {
	c.JSON(http.StatusOK, h.daemon.ListAssets())
}

// fail writes err as a JSON error body with the status its kind maps to.
// Rigging step failures already name the step and carry the tool output.
func fail(c *gin.Context, operation string, err error) {
	_ = c.Error(err)

	var stepErr *rigging.StepError
	if errors.As(err, &stepErr) {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: stepErr.Error()})
		return
	}
	c.JSON(apperr.Status(err), types.ErrorResponse{Error: apperr.Message(operation, err)})
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
}
