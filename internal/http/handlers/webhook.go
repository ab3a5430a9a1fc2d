package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/http/response"
	"github.com/yungbote/marketplace-backend/internal/platform/clock"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
	"github.com/yungbote/marketplace-backend/internal/platform/shippo"
	"github.com/yungbote/marketplace-backend/internal/platform/stripepay"
	"github.com/yungbote/marketplace-backend/internal/services"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	log          *logger.Logger
	stripe       *stripepay.WebhookVerifier
	shippo       *shippo.WebhookVerifier
	materializer services.OrderMaterializer
	tracking     services.TrackingService
	clock        clock.Clock
}

func NewWebhookHandler(
	log *logger.Logger,
	stripeVerifier *stripepay.WebhookVerifier,
	shippoVerifier *shippo.WebhookVerifier,
	materializer services.OrderMaterializer,
	tracking services.TrackingService,
	clk clock.Clock,
) *WebhookHandler {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &WebhookHandler{
		log:          log.With("handler", "WebhookHandler"),
		stripe:       stripeVerifier,
		shippo:       shippoVerifier,
		materializer: materializer,
		tracking:     tracking,
		clock:        clk,
	}
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		response.RespondErrorStatus(c, http.StatusRequestEntityTooLarge, "invalid_body", err)
		return nil, false
	}
	return body, true
}

// POST /webhooks/stripe
func (h *WebhookHandler) Stripe(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	ev, completed, err := h.stripe.ParsePaymentCompleted(body, c.GetHeader(stripepay.SignatureHeader))
	if err != nil {
		if errors.Is(err, types.ErrInvalidSignature) {
			h.log.Warn("rejected payment webhook", "error", err)
			response.RespondErrorStatus(c, http.StatusBadRequest, "invalid_signature", errors.New("signature verification failed"))
			return
		}
		response.RespondError(c, err)
		return
	}
	if !completed {
		response.RespondOK(c, gin.H{"status": "ignored"})
		return
	}

	res, err := h.materializer.HandlePaymentEvent(c.Request.Context(), ev)
	if err != nil {
		h.log.Error("payment event failed; awaiting redelivery", "event_id", ev.EventID, "error", err)
		response.RespondError(c, err)
		return
	}
	status := "processed"
	if res.Skipped {
		status = "duplicate"
	}
	response.RespondOK(c, gin.H{
		"status":              status,
		"checkout_session_id": res.CheckoutSessionID,
		"orders":              len(res.Orders),
	})
}

// POST /webhooks/shippo
func (h *WebhookHandler) Shippo(c *gin.Context) {
	token := c.GetHeader(shippo.TokenHeader)
	if token == "" {
		token = c.Query("token")
	}
	if !h.shippo.Verify(token) {
		response.RespondErrorStatus(c, http.StatusUnauthorized, "invalid_token", errors.New("webhook token rejected"))
		return
	}
	body, ok := readBody(c)
	if !ok {
		return
	}
	upd, tracked, err := shippo.ParseTrackingUpdate(body, h.clock.Now())
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if !tracked {
		response.RespondOK(c, gin.H{"status": "ignored"})
		return
	}

	res, err := h.tracking.HandleTrackingEvent(c.Request.Context(), upd)
	if err != nil {
		if errors.Is(err, types.ErrOrderNotFound) {
			response.RespondOK(c, gin.H{"status": "ignored"})
			return
		}
		response.RespondError(c, err)
		return
	}
	status := "processed"
	if res.Duplicate {
		status = "duplicate"
	}
	response.RespondOK(c, gin.H{
		"status":          status,
		"order_id":        res.OrderID,
		"shipping_status": res.Current,
		"applied":         res.Applied,
	})
}
