package payment

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mkalala/sokosettle/internal/wallet"
)

// Handlers provides HTTP endpoints for payment transactions.
type Handlers struct {
	manager *Manager
}

// NewHandlers creates payment HTTP handlers.
func NewHandlers(manager *Manager) *Handlers {
	return &Handlers{manager: manager}
}

// RegisterRoutes registers payment endpoints.
func (h *Handlers) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/payments/:id", h.get)
	r.POST("/payments/:id/complete", h.complete)
	r.POST("/payments/:id/fail", h.fail)
}

func (h *Handlers) get(c *gin.Context) {
	tx, err := h.manager.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "payment_not_found",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "get_failed",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *Handlers) complete(c *gin.Context) {
	tx, err := h.manager.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrPaymentNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "payment_not_found",
				"message": err.Error(),
			})
		case errors.Is(err, ErrAlreadyCompleted):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "already_completed",
				"message": err.Error(),
				"payment": tx,
			})
		case errors.Is(err, ErrInvalidStatus):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "invalid_status",
				"message": err.Error(),
			})
		case errors.Is(err, wallet.ErrInsufficientBalance):
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error":   "insufficient_balance",
				"message": err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "complete_failed",
				"message": err.Error(),
			})
		}
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *Handlers) fail(c *gin.Context) {
	tx, err := h.manager.Fail(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrPaymentNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "payment_not_found",
				"message": err.Error(),
			})
		case errors.Is(err, ErrInvalidStatus):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "invalid_status",
				"message": err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "fail_failed",
				"message": err.Error(),
			})
		}
		return
	}
	c.JSON(http.StatusOK, tx)
}
