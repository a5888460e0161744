package sale

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

// Handlers provides HTTP endpoints for point-of-sale transactions.
type Handlers struct {
	service *Service
}

// NewHandlers creates sale HTTP handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers sale endpoints.
func (h *Handlers) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sales", h.create)
	r.GET("/sales/:id", h.get)
	r.PUT("/sales/:id/items", h.update)
	r.POST("/sales/:id/close", h.close)
	r.POST("/sales/:id/return", h.returnSale)
	r.GET("/stores/:storeId/sales", h.listByStore)
}

type itemPayload struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

type createSaleRequest struct {
	StoreID  string        `json:"storeId" binding:"required"`
	WorkerID string        `json:"workerId" binding:"required"`
	ClientID string        `json:"clientId"`
	Discount string        `json:"discount"`
	Method   string        `json:"method" binding:"required"`
	Items    []itemPayload `json:"items" binding:"required"`
}

func (h *Handlers) create(c *gin.Context) {
	var req createSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	items := make([]ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	s, err := h.service.Create(c.Request.Context(), CreateRequest{
		StoreID:  req.StoreID,
		WorkerID: req.WorkerID,
		ClientID: req.ClientID,
		Items:    items,
		Discount: req.Discount,
		Method:   req.Method,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *Handlers) get(c *gin.Context) {
	s, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

type updateSaleRequest struct {
	Items []itemPayload `json:"items" binding:"required"`
}

func (h *Handlers) update(c *gin.Context) {
	var req updateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	items := make([]ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	s, err := h.service.Update(c.Request.Context(), c.Param("id"), items)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handlers) close(c *gin.Context) {
	s, err := h.service.Close(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

type returnRequest struct {
	Reason string `json:"reason"`
}

func (h *Handlers) returnSale(c *gin.Context) {
	var req returnRequest
	_ = c.ShouldBindJSON(&req)

	ret, err := h.service.ReturnSale(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ret)
}

func (h *Handlers) listByStore(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	sales, err := h.service.ListByStore(c.Request.Context(), c.Param("storeId"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales, "count": len(sales)})
}

func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrSaleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "sale_not_found", "message": err.Error()})
	case errors.Is(err, account.ErrWorkerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "worker_not_found", "message": err.Error()})
	case errors.Is(err, account.ErrStoreAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "store_access_denied", "message": err.Error()})
	case errors.Is(err, catalog.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "product_not_found", "message": err.Error()})
	case errors.Is(err, catalog.ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": "insufficient_stock", "message": err.Error()})
	case errors.Is(err, wallet.ErrInsufficientBalance):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient_balance", "message": err.Error()})
	case errors.Is(err, ErrSaleNotOpen), errors.Is(err, ErrAlreadyRefunded),
		errors.Is(err, ErrInvalidStatus):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_status", "message": err.Error()})
	case errors.Is(err, ErrEmptySale), errors.Is(err, ErrProductNotInStore),
		errors.Is(err, ErrInvalidDiscount), errors.Is(err, ErrClientRequired),
		errors.Is(err, catalog.ErrInvalidQuantity), errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, payment.ErrUnsupportedMethod):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sale_failed", "message": err.Error()})
	}
}
