package shippo

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/marketplace-backend/internal/platform/envutil"
)

type Config struct {
	APIKey       string
	BaseURL      string
	WebhookToken string
	Timeout      time.Duration
	MaxRetries   int
	// RequestsPerSecond bounds outbound calls; Burst allows short spikes.
	RequestsPerSecond float64
	Burst             int
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:            envutil.String("SHIPPO_API_KEY", ""),
		BaseURL:           envutil.String("SHIPPO_BASE_URL", ""),
		WebhookToken:      envutil.String("SHIPPO_WEBHOOK_TOKEN", ""),
		Timeout:           envutil.Seconds("SHIPPO_TIMEOUT_SECONDS", 20*time.Second),
		MaxRetries:        envutil.Int("SHIPPO_MAX_RETRIES", 2),
		RequestsPerSecond: float64(envutil.Int("SHIPPO_RPS", 10)),
		Burst:             envutil.Int("SHIPPO_BURST", 5),
	}
}

func (c *Config) normalize() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("missing SHIPPO_API_KEY")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = "https://api.goshippo.com"
	}
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 10
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return nil
}
