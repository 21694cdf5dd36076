package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "convertax/internal/errors"
)

// Dispatcher flushes pending outbox events.
type Dispatcher interface {
	DispatchPending(ctx context.Context) (int, error)
}

// OpsHandler exposes operator actions guarded by an API key.
type OpsHandler struct {
	dispatcher Dispatcher
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(dispatcher Dispatcher) *OpsHandler {
	return &OpsHandler{dispatcher: dispatcher}
}

// DispatchOutbox relays one batch of pending events immediately.
// @Summary     Flush outbox
// @Tags        ops
// @Produce     json
// @Param       X-API-Key header string true "Operator API key"
// @Success     200 {object} map[string]interface{} "Number of events dispatched"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     500 {object} ErrorResponse "Broker or store failure"
// @Router      /ops/outbox/dispatch [post]
func (h *OpsHandler) DispatchOutbox(c *gin.Context) {
	n, err := h.dispatcher.DispatchPending(c.Request.Context())
	if err != nil {
		respondWithError(c, apperrors.Wrap(apperrors.ErrInternalServer, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispatched": n})
}
