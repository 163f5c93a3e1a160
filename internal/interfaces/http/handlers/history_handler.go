package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/MolForge/internal/application/history"
	"github.com/turtacn/MolForge/pkg/errors"
	gentypes "github.com/turtacn/MolForge/pkg/types/generation"
)

// HistoryHandler serves the /api/v1/history routes for the signed-in user.
type HistoryHandler struct {
	svc history.Service
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(svc history.Service) *HistoryHandler {
	return &HistoryHandler{svc: svc}
}

// RegisterRoutes mounts the history routes on g.
func (h *HistoryHandler) RegisterRoutes(g gin.IRoutes) {
	g.POST("/history", h.Create)
	g.GET("/history", h.List)
	g.GET("/history/:id", h.Get)
	g.GET("/history/:id/export", h.Export)
}

// Create handles POST /api/v1/history.
func (h *HistoryHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req gentypes.CreateHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppError(c, errors.Wrap(err, errors.ErrCodeHistoryInvalid, "invalid history record body"))
		return
	}
	rec, err := h.svc.Create(c.Request.Context(), userID, req)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// List handles GET /api/v1/history.
func (h *HistoryHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	items, err := h.svc.ListByUser(c.Request.Context(), userID)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gentypes.HistoryList{Items: items, Total: len(items)})
}

// Get handles GET /api/v1/history/:id.
func (h *HistoryHandler) Get(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	rec, err := h.svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Export handles GET /api/v1/history/:id/export.
func (h *HistoryHandler) Export(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	resp, err := h.svc.Export(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
