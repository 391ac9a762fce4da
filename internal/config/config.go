package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds runtime configuration for the wallet auth service.
type Config struct {
	Addr          string        `env:"ADDR,default=:9000"`
	AppName       string        `env:"APP_NAME,default=walletauth"`
	RedisURL      string        `env:"REDIS_URL"`
	PostgresDSN   string        `env:"POSTGRES_DSN"`
	SessionTTL    time.Duration `env:"SESSION_TTL,default=24h"`
	MaxMessageAge time.Duration `env:"MAX_MESSAGE_AGE,default=5m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL,default=5m"`
}

// Load returns a Config populated from environment variables.
func Load(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
