package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/marketplace-backend/internal/data/repos"
	"github.com/yungbote/marketplace-backend/internal/platform/clock"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
	"github.com/yungbote/marketplace-backend/internal/services"
	"github.com/yungbote/marketplace-backend/internal/temporalx/payoutrelease"
	"github.com/yungbote/marketplace-backend/internal/temporalx/temporalworker"
)

type Services struct {
	Checkout     services.CheckoutService
	Labels       services.LabelOrchestrator
	Materializer services.OrderMaterializer
	Tracking     services.TrackingService
	Payouts      services.PayoutService
	Queries      services.OrderQueryService

	// TemporalWorker is nil when Temporal is disabled.
	TemporalWorker *temporalworker.Runner
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r repos.Repos, c Clients, clk clock.Clock) (Services, error) {
	log.Info("Wiring services...")

	notifier := services.NewEmailNotifier(log, c.Mail)

	var scheduler services.PayoutReleaseScheduler
	var worker *temporalworker.Runner
	if c.Temporal != nil {
		scheduler = payoutrelease.NewScheduler(c.Temporal, cfg.Temporal.TaskQueue, log)
		w, err := temporalworker.NewRunner(log, cfg.Temporal, c.Temporal, r.Orders, clk)
		if err != nil {
			return Services{}, err
		}
		worker = w
	}

	labels := services.NewLabelOrchestrator(
		db,
		log,
		r.Orders,
		r.Vendors,
		c.Shippo,
		c.Locker,
		c.LabelStore,
		notifier,
		cfg.Labels,
	)

	return Services{
		Checkout: services.NewCheckoutService(
			db,
			log,
			r.Vendors,
			r.Products,
			r.CheckoutSessions,
			c.Stripe,
			c.Shippo,
			clk,
			cfg.Checkout,
		),
		Labels: labels,
		Materializer: services.NewOrderMaterializer(
			db,
			log,
			r.CheckoutSessions,
			r.Orders,
			r.Vendors,
			r.CartItems,
			r.ProcessedEvents,
			labels,
			c.Locker,
			notifier,
			clk,
		),
		Tracking: services.NewTrackingService(
			db,
			log,
			r.Orders,
			r.ProcessedEvents,
			c.Locker,
			scheduler,
			clk,
			cfg.PayoutWindow,
		),
		Payouts: services.NewPayoutService(
			db,
			log,
			r.Vendors,
			r.Orders,
			r.PayoutTransfers,
			c.Stripe,
			c.Locker,
			clk,
		),
		Queries:        services.NewOrderQueryService(db, log, r.Orders, r.Vendors),
		TemporalWorker: worker,
	}, nil
}
