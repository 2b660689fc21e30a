package watchlist

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/scamshield/scamshield/internal/validation"
)

// Handler provides HTTP endpoints for watchlist administration.
type Handler struct {
	store Store
}

// NewHandler creates a new watchlist handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up watchlist routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/watchlist", h.List)
	r.POST("/watchlist/add", h.Add)
	r.POST("/watchlist/remove", h.Remove)
}

type accountRequest struct {
	Account string `json:"account" binding:"required"`
}

// List handles GET /v1/watchlist
func (h *Handler) List(c *gin.Context) {
	accounts, err := h.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list watchlist",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

// Add handles POST /v1/watchlist/add
func (h *Handler) Add(c *gin.Context) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if !validation.IsValidAccount(req.Account) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "account must be a valid IBAN-style identifier",
		})
		return
	}
	if err := h.store.Add(c.Request.Context(), req.Account); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to add account",
		})
		return
	}
	accounts, _ := h.store.List(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"ok": true, "accounts": accounts})
}

// Remove handles POST /v1/watchlist/remove
func (h *Handler) Remove(c *gin.Context) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if err := h.store.Remove(c.Request.Context(), req.Account); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to remove account",
		})
		return
	}
	accounts, _ := h.store.List(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"ok": true, "accounts": accounts})
}
