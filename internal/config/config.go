// Package config содержит логику чтения конфигурации сервиса комиссий.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress    = "localhost:8080"
	defaultEnrichTimeout = 30 * time.Second
	defaultWebhookPerMin = 120
)

// Config содержит параметры конфигурации сервиса комиссий.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	NotifyURL   string `env:"NOTIFY_URL"`

	WebhookSecret string `env:"WEBHOOK_SECRET"`
	JWTSecret     string `env:"JWT_SECRET"`

	// AdminSalesEnrich задаёт, запускать ли начисления каскада, бейджей и челленджей
	// для продаж, созданных администратором без явного флага enrich.
	AdminSalesEnrich     bool          `env:"ADMIN_SALES_ENRICH" envDefault:"true"`
	EnrichTimeout        time.Duration `env:"ENRICH_TIMEOUT" envDefault:"30s"`
	WebhookRatePerMinute int           `env:"WEBHOOK_RATE_PER_MINUTE" envDefault:"120"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envNotifyURL := cfg.NotifyURL

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.NotifyURL, "n", "", "notification gateway address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envNotifyURL != "" {
		cfg.NotifyURL = envNotifyURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.EnrichTimeout <= 0 {
		cfg.EnrichTimeout = defaultEnrichTimeout
	}
	if cfg.WebhookRatePerMinute <= 0 {
		cfg.WebhookRatePerMinute = defaultWebhookPerMin
	}

	return cfg, nil
}
