package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

type Config struct {
	Env string `env:"APP_ENV" envDefault:"production"`

	Log struct {
		Level string `env:"LEVEL" envDefault:"info"`
	} `envPrefix:"LOG_"`

	HTTP struct {
		Addr            string        `env:"ADDR" envDefault:":8080"`
		ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
		WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	} `envPrefix:"HTTP_"`

	Database struct {
		Host            string        `env:"HOST,required"`
		Port            int           `env:"PORT" envDefault:"5432"`
		User            string        `env:"USER,required"`
		Password        string        `env:"PASSWORD,required"`
		Name            string        `env:"NAME,required"`
		SSLMode         string        `env:"SSLMODE" envDefault:"disable"`
		MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
		MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
		ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
		ConnMaxIdleTime time.Duration `env:"CONN_MAX_IDLE_TIME" envDefault:"2m"`
		ConnectTimeout  time.Duration `env:"CONNECT_TIMEOUT" envDefault:"2m"`
	} `envPrefix:"DB_"`

	Redis struct {
		Addr     string `env:"ADDR,required"`
		Password string `env:"PASSWORD"`
		DB       int    `env:"DB" envDefault:"0"`
	} `envPrefix:"REDIS_"`

	Telegram struct {
		Token  string `env:"TOKEN"`
		ChatID int64  `env:"CHAT_ID"`
	} `envPrefix:"TELEGRAM_"`

	Pricing struct {
		Strict bool `env:"STRICT" envDefault:"false"`
	} `envPrefix:"PRICING_"`

	Cache struct {
		ContractTTL time.Duration `env:"CONTRACT_TTL" envDefault:"10m"`
	} `envPrefix:"CACHE_"`

	RateLimit struct {
		Quotes int64         `env:"QUOTES" envDefault:"60"`
		Window time.Duration `env:"WINDOW" envDefault:"1m"`
	} `envPrefix:"RATE_LIMIT_"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_TOKEN is set")
	}
	if cfg.RateLimit.Quotes < 0 {
		return nil, fmt.Errorf("RATE_LIMIT_QUOTES must not be negative")
	}

	return &cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
