package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/envutil"
	"github.com/yungbote/marketplace-backend/internal/platform/gcp"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
	"github.com/yungbote/marketplace-backend/internal/platform/sendgrid"
	"github.com/yungbote/marketplace-backend/internal/platform/shippo"
	"github.com/yungbote/marketplace-backend/internal/platform/stripepay"
	"github.com/yungbote/marketplace-backend/internal/services"
	"github.com/yungbote/marketplace-backend/internal/temporalx"
)

type Config struct {
	Env         string
	ServiceName string
	Version     string
	Port        string

	DBDriver   string
	SQLitePath string

	JWTSecretKey string
	CORSOrigins  []string

	RedisAddr string
	LockTTL   time.Duration

	Stripe     stripepay.Config
	Shippo     shippo.Config
	SendGrid   sendgrid.Config
	LabelStore gcp.LabelStoreConfig
	Temporal   temporalx.Config

	Checkout        services.CheckoutOptions
	Labels          services.LabelOptions
	PayoutWindow    time.Duration
	ShutdownTimeout time.Duration
}

// fileConfig is the CONFIG_FILE overlay. Only non-secret tunables live here; every
// field is optional and overrides the environment value when present.
type fileConfig struct {
	Parcel *struct {
		Length        string `yaml:"length"`
		Width         string `yaml:"width"`
		Height        string `yaml:"height"`
		WeightPerItem string `yaml:"weight_per_item"`
		MinWeight     string `yaml:"min_weight"`
	} `yaml:"parcel"`
	PayoutWindowDays *int `yaml:"payout_window_days"`
	Checkout         *struct {
		MaxParallel int    `yaml:"max_parallel"`
		SessionTTL  string `yaml:"session_ttl"`
	} `yaml:"checkout"`
	Timeouts *struct {
		Shipping string `yaml:"shipping"`
		Payment  string `yaml:"payment"`
		Email    string `yaml:"email"`
		Shutdown string `yaml:"shutdown"`
	} `yaml:"timeouts"`
	CORSOrigins []string `yaml:"cors_origins"`
}

func LoadConfig(log *logger.Logger) (Config, error) {
	labelStore, err := gcp.LabelStoreConfigFromEnv()
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Env:         envutil.String("APP_ENV", "development"),
		ServiceName: envutil.String("SERVICE_NAME", "marketplace-backend"),
		Version:     envutil.String("APP_VERSION", "dev"),
		Port:        envutil.String("PORT", "8080"),

		DBDriver:   strings.ToLower(envutil.String("DB_DRIVER", "postgres")),
		SQLitePath: envutil.String("SQLITE_PATH", "marketplace.db"),

		JWTSecretKey: envutil.String("JWT_SECRET_KEY", ""),
		CORSOrigins:  splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),

		RedisAddr: envutil.String("REDIS_ADDR", ""),
		LockTTL:   envutil.Seconds("LOCK_TTL_SECONDS", 60*time.Second),

		Stripe:     stripepay.ConfigFromEnv(),
		Shippo:     shippo.ConfigFromEnv(),
		SendGrid:   sendgrid.ConfigFromEnv(),
		LabelStore: labelStore,
		Temporal:   temporalx.LoadConfig(),

		Checkout: services.CheckoutOptions{
			MaxParallel: envutil.Int("CHECKOUT_MAX_PARALLEL", 4),
			SessionTTL:  envutil.Duration("CHECKOUT_SESSION_TTL", types.CheckoutSessionTTL),
		},
		Labels: services.LabelOptions{
			Parcel:          services.DefaultParcelOptions(),
			ProviderTimeout: envutil.Seconds("LABEL_TIMEOUT_SECONDS", 30*time.Second),
		},
		PayoutWindow:    envutil.Duration("PAYOUT_WINDOW", types.PayoutWindow),
		ShutdownTimeout: envutil.Seconds("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read CONFIG_FILE: %w", err)
		}
		if err := cfg.applyFile(raw); err != nil {
			return Config{}, fmt.Errorf("CONFIG_FILE %s: %w", path, err)
		}
		if log != nil {
			log.Info("Applied config overlay", "path", path)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(raw []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	if p := fc.Parcel; p != nil {
		fields := []struct {
			name string
			raw  string
			dst  *decimal.Decimal
		}{
			{"parcel.length", p.Length, &c.Labels.Parcel.Length},
			{"parcel.width", p.Width, &c.Labels.Parcel.Width},
			{"parcel.height", p.Height, &c.Labels.Parcel.Height},
			{"parcel.weight_per_item", p.WeightPerItem, &c.Labels.Parcel.WeightPerItem},
			{"parcel.min_weight", p.MinWeight, &c.Labels.Parcel.MinWeight},
		}
		for _, f := range fields {
			if strings.TrimSpace(f.raw) == "" {
				continue
			}
			d, err := decimal.NewFromString(strings.TrimSpace(f.raw))
			if err != nil || !d.IsPositive() {
				return fmt.Errorf("%s must be a positive number, got %q", f.name, f.raw)
			}
			*f.dst = d
		}
	}

	if fc.PayoutWindowDays != nil {
		if *fc.PayoutWindowDays < 0 {
			return fmt.Errorf("payout_window_days must not be negative")
		}
		c.PayoutWindow = time.Duration(*fc.PayoutWindowDays) * 24 * time.Hour
	}

	if ch := fc.Checkout; ch != nil {
		if ch.MaxParallel > 0 {
			c.Checkout.MaxParallel = ch.MaxParallel
		}
		if err := overlayDuration("checkout.session_ttl", ch.SessionTTL, &c.Checkout.SessionTTL); err != nil {
			return err
		}
	}

	if t := fc.Timeouts; t != nil {
		for _, f := range []struct {
			name string
			raw  string
			dst  *time.Duration
		}{
			{"timeouts.shipping", t.Shipping, &c.Shippo.Timeout},
			{"timeouts.payment", t.Payment, &c.Stripe.Timeout},
			{"timeouts.email", t.Email, &c.SendGrid.Timeout},
			{"timeouts.shutdown", t.Shutdown, &c.ShutdownTimeout},
		} {
			if err := overlayDuration(f.name, f.raw, f.dst); err != nil {
				return err
			}
		}
		if t.Shipping != "" {
			c.Labels.ProviderTimeout = c.Shippo.Timeout
		}
	}

	if len(fc.CORSOrigins) > 0 {
		c.CORSOrigins = fc.CORSOrigins
	}
	return nil
}

func overlayDuration(name, raw string, dst *time.Duration) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fmt.Errorf("%s must be a positive duration, got %q", name, raw)
	}
	*dst = d
	return nil
}

func (c Config) validate() error {
	var missing []string
	if strings.TrimSpace(c.JWTSecretKey) == "" {
		missing = append(missing, "JWT_SECRET_KEY")
	}
	if strings.TrimSpace(c.Stripe.WebhookSecret) == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if strings.TrimSpace(c.Shippo.WebhookToken) == "" {
		missing = append(missing, "SHIPPO_WEBHOOK_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required secrets: %s", strings.Join(missing, ", "))
	}
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("invalid DB_DRIVER=%q (allowed: postgres, sqlite)", c.DBDriver)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
