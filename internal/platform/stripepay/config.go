package stripepay

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/yungbote/marketplace-backend/internal/platform/envutil"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	// APIURL overrides the processor endpoint (tests, mocks).
	APIURL     string
	Timeout    time.Duration
	MaxRetries int64
}

func ConfigFromEnv() Config {
	return Config{
		SecretKey:     envutil.String("STRIPE_SECRET_KEY", ""),
		WebhookSecret: envutil.String("STRIPE_WEBHOOK_SECRET", ""),
		SuccessURL:    envutil.String("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:     envutil.String("CHECKOUT_CANCEL_URL", "http://localhost:3000/cart"),
		APIURL:        envutil.String("STRIPE_API_URL", ""),
		Timeout:       envutil.Seconds("STRIPE_TIMEOUT_SECONDS", 15*time.Second),
		MaxRetries:    int64(envutil.Int("STRIPE_MAX_RETRIES", 2)),
	}
}

func (c Config) validate() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return fmt.Errorf("missing STRIPE_SECRET_KEY")
	}
	if strings.TrimSpace(c.SuccessURL) == "" || strings.TrimSpace(c.CancelURL) == "" {
		return fmt.Errorf("missing CHECKOUT_SUCCESS_URL or CHECKOUT_CANCEL_URL")
	}
	return nil
}

func (c Config) backend() stripe.Backend {
	bc := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: c.Timeout},
		MaxNetworkRetries: stripe.Int64(c.MaxRetries),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelWarn},
	}
	if u := strings.TrimRight(strings.TrimSpace(c.APIURL), "/"); u != "" {
		bc.URL = stripe.String(u)
	}
	return stripe.GetBackendWithConfig(stripe.APIBackend, bc)
}
