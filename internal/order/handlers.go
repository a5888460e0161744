package order

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mkalala/sokosettle/internal/account"
	"github.com/mkalala/sokosettle/internal/catalog"
	"github.com/mkalala/sokosettle/internal/payment"
	"github.com/mkalala/sokosettle/internal/wallet"
)

// Handlers provides HTTP endpoints for orders.
type Handlers struct {
	service *Service
}

// NewHandlers creates order HTTP handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers order endpoints.
func (h *Handlers) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/orders", h.create)
	r.GET("/orders/:id", h.get)
	r.POST("/orders/:id/complete", h.complete)
	r.POST("/orders/:id/cancel", h.cancel)
	r.GET("/clients/:clientId/orders", h.listByClient)
}

type createOrderRequest struct {
	ClientID        string `json:"clientId" binding:"required"`
	DeliveryFee     string `json:"deliveryFee"`
	DeliveryAddress string `json:"deliveryAddress"`
	Method          string `json:"method" binding:"required"`
	Items           []struct {
		ProductID string `json:"productId" binding:"required"`
		Quantity  int    `json:"quantity" binding:"required"`
	} `json:"items" binding:"required"`
}

func (h *Handlers) create(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	items := make([]ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	o, err := h.service.Create(c.Request.Context(), CreateRequest{
		ClientID:        req.ClientID,
		Items:           items,
		DeliveryFee:     req.DeliveryFee,
		DeliveryAddress: req.DeliveryAddress,
		Method:          req.Method,
	})
	if err != nil {
		h.writeCreateError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (h *Handlers) writeCreateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, account.ErrClientNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "client_not_found", "message": err.Error()})
	case errors.Is(err, catalog.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "product_not_found", "message": err.Error()})
	case errors.Is(err, catalog.ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": "insufficient_stock", "message": err.Error()})
	case errors.Is(err, catalog.ErrInvalidQuantity), errors.Is(err, ErrEmptyOrder),
		errors.Is(err, wallet.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	case errors.Is(err, ErrInsufficientBalance):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient_balance", "message": err.Error()})
	case errors.Is(err, payment.ErrUnsupportedMethod):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_method", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed", "message": err.Error()})
	}
}

func (h *Handlers) get(c *gin.Context) {
	o, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found", "message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handlers) complete(c *gin.Context) {
	o, err := h.service.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found", "message": err.Error()})
		case errors.Is(err, ErrInvalidStatus):
			c.JSON(http.StatusConflict, gin.H{"error": "invalid_status", "message": err.Error()})
		case errors.Is(err, wallet.ErrInsufficientBalance):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient_balance", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "complete_failed", "message": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handlers) cancel(c *gin.Context) {
	o, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found", "message": err.Error()})
		case errors.Is(err, ErrInvalidStatus):
			c.JSON(http.StatusConflict, gin.H{"error": "invalid_status", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cancel_failed", "message": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handlers) listByClient(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	orders, err := h.service.ListByClient(c.Request.Context(), c.Param("clientId"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}
