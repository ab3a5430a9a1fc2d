package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/marketplace-backend/internal/http/response"
	"github.com/yungbote/marketplace-backend/internal/services"
)

type OrderHandler struct {
	queries services.OrderQueryService
	labels  services.LabelOrchestrator
}

func NewOrderHandler(queries services.OrderQueryService, labels services.LabelOrchestrator) *OrderHandler {
	return &OrderHandler{queries: queries, labels: labels}
}

// GET /api/orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	o, err := h.queries.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"order": o})
}

// POST /api/orders/:id/label/retry
func (h *OrderHandler) RetryLabel(c *gin.Context) {
	o, err := h.labels.RetryLabel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"order": o})
}

// GET /api/vendors/:id/orders
func (h *OrderHandler) ListVendorOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	res, err := h.queries.ListVendorOrders(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	balances := gin.H{}
	for status, cents := range res.Balances {
		balances[string(status)] = gin.H{"amount": cents.String(), "amount_cents": int64(cents)}
	}
	response.RespondOK(c, gin.H{
		"vendor_id": res.VendorID,
		"orders":    res.Orders,
		"balances":  balances,
	})
}
