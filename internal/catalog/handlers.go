package catalog

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mkalala/sokosettle/internal/idgen"
	"github.com/mkalala/sokosettle/internal/money"
)

// Handler provides HTTP endpoints for catalog reads and stock admin.
type Handler struct {
	catalog *Catalog
}

// NewHandler creates a new catalog handler.
func NewHandler(catalog *Catalog) *Handler {
	return &Handler{catalog: catalog}
}

// RegisterRoutes sets up catalog routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/products/:id", h.GetProduct)
	r.GET("/products/:id/provenance", h.GetProvenance)
	r.POST("/products", h.CreateProduct)
	r.POST("/products/:id/restock", h.Restock)
}

// GetProduct handles GET /products/:id
func (h *Handler) GetProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		if err == ErrProductNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "product_not_found",
				"message": "No product with that ID",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "catalog_error",
			"message": "Failed to load product",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"product": product})
}

// GetProvenance handles GET /products/:id/provenance
func (h *Handler) GetProvenance(c *gin.Context) {
	prov, err := h.catalog.Provenance(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "catalog_error",
			"message": "Failed to load provenance",
		})
		return
	}
	if prov == nil {
		c.JSON(http.StatusOK, gin.H{"provenance": gin.H{"kind": ProvenanceDirect}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"provenance": prov})
}

// CreateProductRequest for product creation.
type CreateProductRequest struct {
	StoreID    string `json:"storeId" binding:"required"`
	BusinessID string `json:"businessId" binding:"required"`
	Name       string `json:"name" binding:"required"`
	Price      string `json:"price" binding:"required"`
	Available  int    `json:"available"`
}

// CreateProduct handles POST /products
func (h *Handler) CreateProduct(c *gin.Context) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if _, ok := money.Parse(req.Price); !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_price",
			"message": "Price must be a non-negative decimal number",
		})
		return
	}
	if req.Available < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_quantity",
			"message": "Available quantity cannot be negative",
		})
		return
	}

	product := &Product{
		ID:         idgen.WithPrefix("prd_"),
		StoreID:    req.StoreID,
		BusinessID: req.BusinessID,
		Name:       req.Name,
		Price:      req.Price,
		Available:  req.Available,
	}
	if err := h.catalog.PutProduct(c.Request.Context(), product); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "catalog_error",
			"message": "Failed to create product",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"product": product})
}

// RestockRequest for stock adjustments.
type RestockRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

// Restock handles POST /products/:id/restock
func (h *Handler) Restock(c *gin.Context) {
	var req RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	err := h.catalog.IncrementStock(c.Request.Context(), c.Param("id"), req.Quantity)
	if err != nil {
		switch err {
		case ErrProductNotFound:
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "product_not_found",
				"message": "No product with that ID",
			})
		case ErrInvalidQuantity:
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_quantity",
				"message": "Quantity must be positive",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "catalog_error",
				"message": "Failed to restock product",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "restocked"})
}
