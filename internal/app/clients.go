package app

import (
	"context"
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/marketplace-backend/internal/platform/gcp"
	"github.com/yungbote/marketplace-backend/internal/platform/lock"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
	"github.com/yungbote/marketplace-backend/internal/platform/sendgrid"
	"github.com/yungbote/marketplace-backend/internal/platform/shippo"
	"github.com/yungbote/marketplace-backend/internal/platform/stripepay"
	"github.com/yungbote/marketplace-backend/internal/temporalx"
)

type Clients struct {
	Locker lock.Locker
	redis  *lock.Redis

	Stripe         *stripepay.Client
	StripeWebhooks *stripepay.WebhookVerifier
	Shippo         *shippo.Client
	ShippoWebhooks *shippo.WebhookVerifier

	// Optional; nil when not configured.
	Mail       sendgrid.Client
	LabelStore gcp.LabelStore
	Temporal   temporalsdkclient.Client
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	// Locks
	if cfg.RedisAddr != "" {
		r, err := lock.NewRedis(log, lock.RedisConfig{Addr: cfg.RedisAddr, TTL: cfg.LockTTL})
		if err != nil {
			return Clients{}, fmt.Errorf("init redis locker: %w", err)
		}
		c.redis = r
		c.Locker = r
	} else {
		log.Warn("REDIS_ADDR not set; using in-process locks (single replica only)")
		c.Locker = lock.NewLocal()
	}

	// Payments
	stripeClient, err := stripepay.New(log, cfg.Stripe)
	if err != nil {
		c.Close()
		return Clients{}, fmt.Errorf("init stripe client: %w", err)
	}
	c.Stripe = stripeClient
	if c.StripeWebhooks, err = stripepay.NewWebhookVerifier(cfg.Stripe.WebhookSecret); err != nil {
		c.Close()
		return Clients{}, err
	}

	// Shipping
	shippoClient, err := shippo.New(log, cfg.Shippo)
	if err != nil {
		c.Close()
		return Clients{}, fmt.Errorf("init shippo client: %w", err)
	}
	c.Shippo = shippoClient
	if c.ShippoWebhooks, err = shippo.NewWebhookVerifier(cfg.Shippo.WebhookToken); err != nil {
		c.Close()
		return Clients{}, err
	}

	// Email
	if cfg.SendGrid.APIKey != "" {
		mail, err := sendgrid.New(log, cfg.SendGrid)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init sendgrid client: %w", err)
		}
		c.Mail = mail
	} else {
		log.Info("SENDGRID_API_KEY not set; vendor emails disabled")
	}

	// Label archive
	if cfg.LabelStore.Enabled() {
		store, err := gcp.NewLabelStore(ctx, log, cfg.LabelStore)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init label store: %w", err)
		}
		c.LabelStore = store
	}

	// Temporal
	if cfg.Temporal.Enabled() {
		tc, err := temporalx.NewClient(log, cfg.Temporal)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init temporal client: %w", err)
		}
		c.Temporal = tc
	} else {
		log.Info("TEMPORAL_ADDRESS not set; payouts are released on withdrawal")
	}

	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
}
