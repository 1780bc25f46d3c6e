// Package http exposes the broker's call contracts over HTTP. Failure
// kinds map one-to-one onto status codes; the transport never collapses
// distinct broker errors into one shape.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/latticehq/lattice/internal/broker"
	"github.com/latticehq/lattice/internal/infrastructure/logging"
	"github.com/latticehq/lattice/internal/shared/types"
	"github.com/latticehq/lattice/internal/store"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	store   store.Store
	factory *broker.Factory
	logger  *logging.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(st store.Store, factory *broker.Factory, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{store: st, factory: factory, logger: logger}
}

// Root handles the banner route
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "lattice",
		"version": "0.3.0",
	})
}

// Health handles health checks
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// ListInstalled lists installation+descriptor pairs for a user
func (h *Handlers) ListInstalled(c *gin.Context) {
	userID := c.Param("user_id")
	status := types.InstallStatus(c.Query("status"))

	sess := store.NewSession(h.store)
	apps, err := h.factory.ListInstalled(c.Request.Context(), sess, userID, status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"apps": apps, "count": len(apps)})
}

// IsInstalled reports whether an app is installed for a user
func (h *Handlers) IsInstalled(c *gin.Context) {
	userID := c.Param("user_id")
	appID := c.Param("app_id")

	sess := store.NewSession(h.store)
	installed, err := h.factory.IsInstalled(c.Request.Context(), sess, userID, appID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":   userID,
		"app_id":    appID,
		"installed": installed,
	})
}

// InvokeRequest is the body for direct and proxied method calls
type InvokeRequest struct {
	Method string                 `json:"method" binding:"required"`
	Params map[string]interface{} `json:"params"`
}

// Invoke runs one of an app's own declared methods for a user
func (h *Handlers) Invoke(c *gin.Context) {
	userID := c.Param("user_id")
	appID := c.Param("app_id")

	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := store.NewSession(h.store)
	bundle, err := h.factory.Create(c.Request.Context(), sess, userID, appID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	// Self-invocation goes through the same proxy path as inter-app
	// calls so dispatch rules stay in one place.
	result, err := bundle.Apps().Get(appID).Query(c.Request.Context(), req.Method, req.Params)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// ProxyOutput requests another app's output on behalf of the requesting app
func (h *Handlers) ProxyOutput(c *gin.Context) {
	userID := c.Param("user_id")
	appID := c.Param("app_id")
	targetAppID := c.Param("target_app_id")
	outputID := c.Param("output_id")

	sess := store.NewSession(h.store)
	bundle, err := h.factory.Create(c.Request.Context(), sess, userID, appID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	result, err := bundle.Apps().Get(targetAppID).GetOutput(c.Request.Context(), outputID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// ProxyQuery invokes another app's declared method on behalf of the
// requesting app
func (h *Handlers) ProxyQuery(c *gin.Context) {
	userID := c.Param("user_id")
	appID := c.Param("app_id")
	targetAppID := c.Param("target_app_id")

	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := store.NewSession(h.store)
	bundle, err := h.factory.Create(c.Request.Context(), sess, userID, appID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	result, err := bundle.Apps().Get(targetAppID).Query(c.Request.Context(), req.Method, req.Params)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// Dependencies returns an app's manifest dependencies
func (h *Handlers) Dependencies(c *gin.Context) {
	appID := c.Param("app_id")

	app, err := h.store.GetApp(c.Request.Context(), appID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"app_id":       appID,
		"dependencies": app.Manifest.Dependencies.Flatten(),
	})
}

// DependencyStatus returns installed-or-not per dependency of an app,
// checked against a user's ledger
func (h *Handlers) DependencyStatus(c *gin.Context) {
	userID := c.Param("user_id")
	appID := c.Param("app_id")

	sess := store.NewSession(h.store)
	bundle, err := h.factory.Create(c.Request.Context(), sess, userID, appID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status, err := bundle.Apps().CheckDependencies(c.Request.Context(), appID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"app_id": appID, "dependencies": status})
}
