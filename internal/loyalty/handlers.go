package loyalty

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers provides HTTP endpoints for loyalty programs and points.
type Handlers struct {
	service *Service
}

// NewHandlers creates loyalty HTTP handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers loyalty endpoints.
func (h *Handlers) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/loyalty/programs", h.createProgram)
	r.GET("/loyalty/programs/:id", h.getProgram)
	r.GET("/clients/:clientId/points", h.balance)
	r.GET("/clients/:clientId/tier", h.tier)
	r.POST("/loyalty/redeem", h.redeem)
}

type createProgramRequest struct {
	BusinessID        string `json:"businessId" binding:"required"`
	Name              string `json:"name" binding:"required"`
	PointsPerPurchase int64  `json:"pointsPerPurchase" binding:"required"`
	Tiers             []Tier `json:"tiers"`
}

func (h *Handlers) createProgram(c *gin.Context) {
	var req createProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	p := &Program{
		BusinessID:        req.BusinessID,
		Name:              req.Name,
		PointsPerPurchase: req.PointsPerPurchase,
		Tiers:             req.Tiers,
	}
	if err := h.service.CreateProgram(c.Request.Context(), p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handlers) getProgram(c *gin.Context) {
	p, err := h.service.GetProgram(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handlers) balance(c *gin.Context) {
	balance, err := h.service.Balance(c.Request.Context(), c.Param("clientId"), c.Query("programId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clientId": c.Param("clientId"), "points": balance})
}

func (h *Handlers) tier(c *gin.Context) {
	programID := c.Query("programId")
	if programID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "programId query parameter is required"})
		return
	}

	t, err := h.service.TierFor(c.Request.Context(), c.Param("clientId"), programID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if t == nil {
		c.JSON(http.StatusOK, gin.H{"tier": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tier": t})
}

type redeemRequest struct {
	ClientID  string `json:"clientId" binding:"required"`
	ProgramID string `json:"programId" binding:"required"`
	Points    int64  `json:"points" binding:"required"`
	Reference string `json:"reference"`
}

func (h *Handlers) redeem(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	err := h.service.Redeem(c.Request.Context(), req.ClientID, req.ProgramID, req.Points, req.Reference)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "redeemed", "points": req.Points})
}

func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrProgramNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "program_not_found", "message": err.Error()})
	case errors.Is(err, ErrInsufficientPoints):
		c.JSON(http.StatusConflict, gin.H{"error": "insufficient_points", "message": err.Error()})
	case errors.Is(err, ErrInvalidPoints):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_points", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "loyalty_error", "message": err.Error()})
	}
}
