package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort uint16 `env:"REDIS_PORT" envDefault:"6379"   validate:"min=1000,max=65535"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"bidspot_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"bidspot_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"bidspot_db"`

	// PaymentWindowHours is how long a winner has to pay before the sweep
	// demotes them and promotes the next bidder.
	PaymentWindowHours int `env:"PAYMENT_WINDOW_HOURS" envDefault:"24" validate:"min=1"`

	// BidRetryMax bounds how often a bid retries its conditional price
	// update before giving up with a transient busy error.
	BidRetryMax int `env:"BID_RETRY_MAX" envDefault:"5" validate:"min=1,max=50"`

	// Cron specs use six fields (with seconds).
	ResolveCronSpec string `env:"RESOLVE_CRON_SPEC" envDefault:"0 * * * * *"`
	SweepCronSpec   string `env:"SWEEP_CRON_SPEC"   envDefault:"30 */2 * * * *"`

	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
