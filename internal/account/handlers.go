package account

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mkalala/sokosettle/internal/idgen"
)

// Handlers provides HTTP endpoints for account registration and reads.
type Handlers struct {
	service *Service
}

// NewHandlers creates account HTTP handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers account endpoints.
func (h *Handlers) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/clients", h.createClient)
	r.GET("/clients/:clientId", h.getClient)
	r.POST("/businesses", h.createBusiness)
	r.GET("/businesses/:businessId", h.getBusiness)
	r.POST("/workers", h.createWorker)
	r.GET("/workers/:id", h.getWorker)
}

type createClientRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handlers) createClient(c *gin.Context) {
	var req createClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	client := &Client{ID: idgen.WithPrefix("cl_"), Name: req.Name}
	if err := h.service.PutClient(c.Request.Context(), client); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, client)
}

func (h *Handlers) getClient(c *gin.Context) {
	client, err := h.service.GetClient(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

type createBusinessRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handlers) createBusiness(c *gin.Context) {
	var req createBusinessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	b := &Business{ID: idgen.WithPrefix("biz_"), Name: req.Name}
	if err := h.service.PutBusiness(c.Request.Context(), b); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *Handlers) getBusiness(c *gin.Context) {
	b, err := h.service.GetBusiness(c.Request.Context(), c.Param("businessId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type createWorkerRequest struct {
	BusinessID string `json:"businessId" binding:"required"`
	StoreID    string `json:"storeId" binding:"required"`
	Name       string `json:"name" binding:"required"`
}

func (h *Handlers) createWorker(c *gin.Context) {
	var req createWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	w := &Worker{ID: idgen.WithPrefix("wrk_"), BusinessID: req.BusinessID, StoreID: req.StoreID, Name: req.Name}
	if err := h.service.PutWorker(c.Request.Context(), w); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h *Handlers) getWorker(c *gin.Context) {
	w, err := h.service.GetWorker(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrClientNotFound), errors.Is(err, ErrBusinessNotFound),
		errors.Is(err, ErrWorkerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "account_error", "message": err.Error()})
	}
}
