package temporalx

import (
	"time"

	"github.com/yungbote/marketplace-backend/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	AutoRegisterNamespace bool
	RetentionDays         int

	DialTimeout time.Duration
	DialMaxWait time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration

	WorkerConcurrency int
}

func LoadConfig() Config {
	return Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "marketplace"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "marketplace"),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),

		AutoRegisterNamespace: envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		RetentionDays:         envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7),

		DialTimeout: envutil.Seconds("TEMPORAL_DIAL_TIMEOUT_SECONDS", 5*time.Second),
		DialMaxWait: envutil.Seconds("TEMPORAL_DIAL_MAX_WAIT_SECONDS", 60*time.Second),
		BackoffBase: envutil.Duration("TEMPORAL_BACKOFF_BASE", 250*time.Millisecond),
		BackoffMax:  envutil.Duration("TEMPORAL_BACKOFF_MAX", 5*time.Second),

		WorkerConcurrency: envutil.Int("TEMPORAL_WORKER_CONCURRENCY", 4),
	}
}

func (c Config) Enabled() bool { return c.Address != "" }

func (c Config) tlsEnabled() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}
