package freelance

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mkalala/sokosettle/internal/account"
	"github.com/mkalala/sokosettle/internal/payment"
	"github.com/mkalala/sokosettle/internal/wallet"
)

// Handlers provides HTTP endpoints for freelance orders.
type Handlers struct {
	manager *Manager
}

// NewHandlers creates freelance HTTP handlers.
func NewHandlers(manager *Manager) *Handlers {
	return &Handlers{manager: manager}
}

// RegisterRoutes registers freelance endpoints.
func (h *Handlers) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/freelance/services", h.createService)
	r.GET("/freelance/services/:id", h.getService)
	r.POST("/freelance/orders", h.createOrder)
	r.GET("/freelance/orders/:id", h.getOrder)
	r.PUT("/freelance/orders/:id/commission", h.setCommission)
	r.POST("/freelance/orders/:id/complete", h.complete)
	r.POST("/freelance/orders/:id/release", h.release)
	r.POST("/freelance/orders/:id/refund", h.refund)
	r.GET("/clients/:clientId/freelance-orders", h.listByClient)
}

type createServiceRequest struct {
	BusinessID string `json:"businessId" binding:"required"`
	Name       string `json:"name" binding:"required"`
	Price      string `json:"price" binding:"required"`
}

func (h *Handlers) createService(c *gin.Context) {
	var req createServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	svc := &Service{BusinessID: req.BusinessID, Name: req.Name, Price: req.Price}
	if err := h.manager.CreateService(c.Request.Context(), svc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, svc)
}

func (h *Handlers) getService(c *gin.Context) {
	svc, err := h.manager.GetService(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, svc)
}

type createOrderRequest struct {
	ClientID  string `json:"clientId" binding:"required"`
	ServiceID string `json:"serviceId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
	Method    string `json:"method" binding:"required"`
}

func (h *Handlers) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	o, err := h.manager.Create(c.Request.Context(), req.ClientID, req.ServiceID, req.Quantity, req.Method)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (h *Handlers) getOrder(c *gin.Context) {
	o, err := h.manager.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type commissionRequest struct {
	Percent int64 `json:"percent"`
}

func (h *Handlers) setCommission(c *gin.Context) {
	var req commissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	o, err := h.manager.SetCommission(c.Request.Context(), c.Param("id"), req.Percent)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type actorRequest struct {
	ActorID   string `json:"actorId" binding:"required"`
	ActorRole string `json:"actorRole" binding:"required"`
}

func (h *Handlers) complete(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	o, err := h.manager.Complete(c.Request.Context(), c.Param("id"), req.ActorID, req.ActorRole)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handlers) release(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	o, err := h.manager.Release(c.Request.Context(), c.Param("id"), req.ActorID, req.ActorRole)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handlers) refund(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	o, err := h.manager.Refund(c.Request.Context(), c.Param("id"), req.ActorID, req.ActorRole)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handlers) listByClient(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	orders, err := h.manager.ListByClient(c.Request.Context(), c.Param("clientId"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrServiceNotFound), errors.Is(err, ErrOrderNotFound),
		errors.Is(err, account.ErrClientNotFound), errors.Is(err, payment.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "unauthorized", "message": err.Error()})
	case errors.Is(err, wallet.ErrInsufficientBalance):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient_balance", "message": err.Error()})
	case errors.Is(err, ErrNotCompleted), errors.Is(err, ErrAlreadySettled),
		errors.Is(err, ErrEscrowNotHeld), errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrPaymentNotSettled):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_status", "message": err.Error()})
	case errors.Is(err, ErrInvalidCommission), errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, wallet.ErrInvalidAmount), errors.Is(err, payment.ErrUnsupportedMethod):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "freelance_failed", "message": err.Error()})
	}
}
