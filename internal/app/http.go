package app

import (
	"gorm.io/gorm"

	httpserver "github.com/yungbote/marketplace-backend/internal/http"
	httpH "github.com/yungbote/marketplace-backend/internal/http/handlers"
	httpMW "github.com/yungbote/marketplace-backend/internal/http/middleware"
	"github.com/yungbote/marketplace-backend/internal/platform/clock"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

func wireRouterConfig(db *gorm.DB, log *logger.Logger, cfg Config, svc Services, c Clients, clk clock.Clock) (httpserver.RouterConfig, error) {
	log.Info("Wiring handlers and middleware...")
	auth, err := httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey)
	if err != nil {
		return httpserver.RouterConfig{}, err
	}
	return httpserver.RouterConfig{
		Log:             log,
		ServiceName:     cfg.ServiceName,
		CORSOrigins:     cfg.CORSOrigins,
		AuthMiddleware:  auth,
		HealthHandler:   httpH.NewHealthHandler(db),
		CheckoutHandler: httpH.NewCheckoutHandler(svc.Checkout),
		WebhookHandler:  httpH.NewWebhookHandler(log, c.StripeWebhooks, c.ShippoWebhooks, svc.Materializer, svc.Tracking, clk),
		OrderHandler:    httpH.NewOrderHandler(svc.Queries, svc.Labels),
		PayoutHandler:   httpH.NewPayoutHandler(svc.Payouts),
	}, nil
}
