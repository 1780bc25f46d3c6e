package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/latticehq/lattice/internal/broker"
	"github.com/latticehq/lattice/internal/store"
	"go.uber.org/zap"
)

// respondError maps broker failure kinds onto HTTP statuses. Each kind
// keeps a distinct "kind" field so clients can branch without parsing
// messages.
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, broker.ErrUserNotFound),
		errors.Is(err, broker.ErrOutputNotFound),
		errors.Is(err, broker.ErrOutputNotImplemented),
		errors.Is(err, broker.ErrMethodNotFound),
		errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, broker.ErrAppNotInstalled),
		errors.Is(err, broker.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, broker.ErrNotImplemented):
		status = http.StatusNotImplemented
	case errors.Is(err, broker.ErrModuleUnavailable):
		status = http.StatusServiceUnavailable
	default:
		if _, ok := broker.AsCallee(err); ok {
			status = http.StatusBadGateway
		} else {
			h.logger.Error("request failed", zap.Error(err))
		}
	}

	kind := broker.ErrorKind(err)
	if kind == "internal" && errors.Is(err, store.ErrNotFound) {
		kind = "not_found"
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"kind":  kind,
	})
}
