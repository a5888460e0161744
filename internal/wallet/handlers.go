package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handlers provides HTTP endpoints for wallet operations.
type Handlers struct {
	ledger *Ledger
}

// NewHandlers creates wallet HTTP handlers.
func NewHandlers(ledger *Ledger) *Handlers {
	return &Handlers{ledger: ledger}
}

// RegisterRoutes registers wallet endpoints.
func (h *Handlers) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wallets/:accountId/balance", h.getBalance)
	r.GET("/wallets/:accountId/entries", h.getHistory)
	r.POST("/wallets/:accountId/credit", h.credit)
}

func (h *Handlers) getBalance(c *gin.Context) {
	accountID := c.Param("accountId")
	method := c.Query("method")

	balance, err := h.ledger.Balance(c.Request.Context(), accountID, method)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "balance_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accountId": accountID,
		"method":    method,
		"balance":   balance,
	})
}

func (h *Handlers) getHistory(c *gin.Context) {
	accountID := c.Param("accountId")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := h.ledger.History(c.Request.Context(), accountID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "history_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accountId": accountID,
		"entries":   entries,
		"count":     len(entries),
	})
}

type creditRequest struct {
	AccountKind AccountKind `json:"accountKind" binding:"required"`
	Method      string      `json:"method" binding:"required"`
	Amount      string      `json:"amount" binding:"required"`
	Reference   string      `json:"reference"`
	Description string      `json:"description"`
}

func (h *Handlers) credit(c *gin.Context) {
	accountID := c.Param("accountId")

	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	err := h.ledger.Credit(c.Request.Context(), accountID, req.AccountKind,
		req.Method, req.Amount, req.Reference, req.Description)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_amount",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "credit_failed",
			"message": err.Error(),
		})
		return
	}

	balance, _ := h.ledger.Balance(c.Request.Context(), accountID, req.Method)
	c.JSON(http.StatusOK, gin.H{
		"accountId": accountID,
		"method":    req.Method,
		"balance":   balance,
	})
}
