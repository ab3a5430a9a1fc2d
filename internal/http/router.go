package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/marketplace-backend/internal/http/handlers"
	httpMW "github.com/yungbote/marketplace-backend/internal/http/middleware"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler   *httpH.HealthHandler
	CheckoutHandler *httpH.CheckoutHandler
	WebhookHandler  *httpH.WebhookHandler
	OrderHandler    *httpH.OrderHandler
	PayoutHandler   *httpH.PayoutHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	// Webhooks authenticate by signature or shared token, not bearer tokens.
	if cfg.WebhookHandler != nil {
		hooks := r.Group("/webhooks")
		hooks.POST("/stripe", cfg.WebhookHandler.Stripe)
		hooks.POST("/shippo", cfg.WebhookHandler.Shippo)
	}

	protected := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}
	{
		// Checkout
		if cfg.CheckoutHandler != nil {
			protected.POST("/checkout", cfg.CheckoutHandler.StartCheckout)
		}

		// Orders
		if cfg.OrderHandler != nil {
			protected.GET("/orders/:id", cfg.OrderHandler.GetOrder)
			protected.POST("/orders/:id/label/retry", cfg.OrderHandler.RetryLabel)
			protected.GET("/vendors/:id/orders", cfg.OrderHandler.ListVendorOrders)
		}

		// Payouts
		if cfg.PayoutHandler != nil {
			protected.POST("/vendors/:id/withdrawals", cfg.PayoutHandler.Withdraw)
		}
	}

	return r
}
