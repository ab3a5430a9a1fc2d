package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/marketplace-backend/internal/http/response"
	"github.com/yungbote/marketplace-backend/internal/services"
)

type PayoutHandler struct {
	payouts services.PayoutService
}

func NewPayoutHandler(payouts services.PayoutService) *PayoutHandler {
	return &PayoutHandler{payouts: payouts}
}

// POST /api/vendors/:id/withdrawals
func (h *PayoutHandler) Withdraw(c *gin.Context) {
	res, err := h.payouts.Withdraw(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{
		"transfer_id":  res.TransferID,
		"amount":       res.Amount.String(),
		"amount_cents": int64(res.Amount),
		"order_ids":    res.OrderIDs,
	})
}
