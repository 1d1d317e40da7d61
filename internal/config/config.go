package config

import (
	"fmt"
	"strings"

	"github.com/Netflix/go-env"
)

// Store backends selectable via STORE_BACKEND.
const (
	StoreBackendRedis    = "redis"
	StoreBackendPostgres = "postgres"
)

type Config struct {
	LocalUserID string `env:"LOCAL_USER_ID,required=true"`
	Platform    string `env:"PLATFORM,default=android"`

	BackendBaseURL string `env:"BACKEND_BASE_URL,required=true"`
	PushGatewayURL string `env:"PUSH_GATEWAY_URL,required=true"`
	RabbitMQURL    string `env:"RABBITMQ_URL,required=true"`

	StoreBackend string `env:"STORE_BACKEND,default=redis"`
	RedisURL     string `env:"REDIS_URL,default=redis://localhost:6379/0"`
	DatabaseDSN  string `env:"DATABASE_DSN"`

	ConnectivityProbeURL string `env:"CONNECTIVITY_PROBE_URL"`

	QuietHours         string `env:"QUIET_HOURS"`
	PushEnabled        bool   `env:"PUSH_ENABLED,default=true"`
	DisabledCategories string `env:"DISABLED_CATEGORIES"`

	RateLimitPerSec int    `env:"RATE_LIMIT_PER_SEC,default=50"`
	SweepIntervalMS int    `env:"SWEEP_INTERVAL_MS,default=30000"`
	APIPort         int    `env:"API_PORT,default=8080"`
	LogLevel        string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.StoreBackend)) {
	case StoreBackendRedis:
		c.StoreBackend = StoreBackendRedis
	case StoreBackendPostgres:
		c.StoreBackend = StoreBackendPostgres
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("DATABASE_DSN is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q", c.StoreBackend)
	}
	return nil
}

// DisabledCategoryList splits the comma-separated category names.
func (c *Config) DisabledCategoryList() []string {
	raw := strings.Split(c.DisabledCategories, ",")
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
