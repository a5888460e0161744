package revenue

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handlers provides HTTP endpoints for revenue distribution reads.
type Handlers struct {
	distributor *Distributor
}

// NewHandlers creates revenue HTTP handlers.
func NewHandlers(distributor *Distributor) *Handlers {
	return &Handlers{distributor: distributor}
}

// RegisterRoutes registers revenue endpoints.
func (h *Handlers) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/businesses/:businessId/earnings", h.earnings)
}

func (h *Handlers) earnings(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	txs, err := h.distributor.Earnings(c.Request.Context(), c.Param("businessId"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "earnings_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"earnings": txs, "count": len(txs)})
}
