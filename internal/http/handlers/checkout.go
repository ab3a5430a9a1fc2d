package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/http/response"
	"github.com/yungbote/marketplace-backend/internal/platform/ctxutil"
	"github.com/yungbote/marketplace-backend/internal/services"
)

type CheckoutHandler struct {
	checkout services.CheckoutService
}

func NewCheckoutHandler(checkout services.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout}
}

type checkoutItemRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type checkoutVendorRequest struct {
	VendorID    string                `json:"vendor_id"`
	ShippingFee decimal.Decimal       `json:"shipping_fee"`
	Items       []checkoutItemRequest `json:"items"`
}

type checkoutRequest struct {
	BuyerEmail string                  `json:"buyer_email"`
	ShipTo     types.Address           `json:"ship_to"`
	Vendors    []checkoutVendorRequest `json:"vendors"`
}

// POST /api/checkout
func (h *CheckoutHandler) StartCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondErrorStatus(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	p := ctxutil.GetPrincipal(c.Request.Context())
	if p == nil {
		response.RespondErrorStatus(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	in := services.CheckoutInput{
		BuyerID:    p.UserID,
		BuyerEmail: req.BuyerEmail,
		ShipTo:     req.ShipTo,
		Vendors:    make([]services.CheckoutVendorInput, 0, len(req.Vendors)),
	}
	for _, v := range req.Vendors {
		g := services.CheckoutVendorInput{
			VendorID:    v.VendorID,
			ShippingFee: types.CentsFromDecimal(v.ShippingFee),
			Items:       make([]services.CheckoutLineInput, 0, len(v.Items)),
		}
		for _, it := range v.Items {
			g.Items = append(g.Items, services.CheckoutLineInput{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: types.CentsFromDecimal(it.UnitPrice),
			})
		}
		in.Vendors = append(in.Vendors, g)
	}

	res, err := h.checkout.StartCheckout(c.Request.Context(), in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{
		"checkout_session_id": res.CheckoutSessionID,
		"payment_session_id":  res.PaymentSessionID,
		"redirect_url":        res.RedirectURL,
		"gross_total":         res.GrossTotal.String(),
		"gross_total_cents":   int64(res.GrossTotal),
		"currency":            types.Currency,
	})
}
