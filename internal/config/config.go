// Package config loads coordinator configuration from the environment,
// following the envdecode + godotenv idiom used across the dependency stack.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the coordinator's full runtime configuration.
type Config struct {
	Environment string `env:"ENVIRONMENT,default=development"`

	HTTP struct {
		Addr string `env:"HTTP_ADDR,default=:8080"`
	}

	Database struct {
		DSN             string        `env:"DATABASE_URL,required"`
		MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=20"`
		MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=10"`
		ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`
		MigrateOnStart  bool          `env:"DB_MIGRATE_ON_START,default=true"`
		MigrationsDir   string        `env:"DB_MIGRATIONS_DIR,default=internal/platform/migrations/sql"`
	}

	Redis struct {
		Addr string `env:"REDIS_ADDR"`
	}

	Logging struct {
		Level  string `env:"LOG_LEVEL,default=info"`
		Format string `env:"LOG_FORMAT,default=text"`
	}

	Auth struct {
		ClockSkew    time.Duration `env:"AUTH_CLOCK_SKEW,default=5m"`
		ReplayWindow time.Duration `env:"AUTH_REPLAY_WINDOW,default=15m"`
	}

	Lock struct {
		TTL time.Duration `env:"PROVISIONING_LOCK_TTL,default=5m"`
	}

	Email struct {
		RetryWindow  time.Duration `env:"EMAIL_RETRY_WINDOW,default=168h"`
		BatchSize    int           `env:"EMAIL_BATCH_SIZE,default=50"`
		DispatchCron string        `env:"EMAIL_DISPATCH_CRON,default=@every 15s"`
		SweepCron    string        `env:"EMAIL_SWEEP_CRON,default=@every 10m"`
		FromAddr     string        `env:"SMTP_FROM_ADDR"`
	}

	Notify struct {
		TelegramDailyQuota int           `env:"NOTIFY_TELEGRAM_DAILY_QUOTA,default=50"`
		SMSDailyQuota      int           `env:"NOTIFY_SMS_DAILY_QUOTA,default=10"`
		SLAWindow          time.Duration `env:"NOTIFY_SLA_WINDOW,default=24h"`
		SLASweepCron       string        `env:"NOTIFY_SLA_SWEEP_CRON,default=@every 5m"`
		TelegramBotToken   string        `env:"NOTIFY_TELEGRAM_BOT_TOKEN"`
		SMSBaseURL         string        `env:"NOTIFY_SMS_BASE_URL"`
		OperatorRecipient  string        `env:"NOTIFY_OPERATOR_RECIPIENT"`
	}

	Payment struct {
		StripeBaseURL string `env:"STRIPE_BASE_URL,default=https://api.stripe.com/v1"`
		ICPayBaseURL  string `env:"ICPAY_BASE_URL"`
	}

	Contracts struct {
		CancellationRefundFraction float64       `env:"CANCELLATION_REFUND_FRACTION,default=0"`
		ProviderActiveWindow       time.Duration `env:"PROVIDER_ACTIVE_WINDOW,default=72h"`
	}

	Agents struct {
		OrphanGracePeriod time.Duration `env:"AGENT_ORPHAN_GRACE_PERIOD,default=24h"`
	}

	Frontend struct {
		URL         string `env:"FRONTEND_URL"`
		ChatwootURL string `env:"CHATWOOT_FRONTEND_URL"`
	}

	Invoice struct {
		SellerName    string `env:"INVOICE_SELLER_NAME"`
		SellerAddress string `env:"INVOICE_SELLER_ADDRESS"`
		SellerVATID   string `env:"INVOICE_SELLER_VAT_ID"`
		SellerIBAN    string `env:"INVOICE_SELLER_IBAN"`
	}

	CacheDir string `env:"XDG_CACHE_HOME"`
}

// Load reads a .env file if present (ignored when missing), decodes the
// process environment into Config, then applies an optional on-disk YAML
// override from COORDINATOR_CONFIG_FILE so operators can pin values that
// don't fit comfortably in the environment (e.g. multi-line invoice
// addresses) without touching the process env.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if path := os.Getenv("COORDINATOR_CONFIG_FILE"); path != "" {
		if err := applyYAMLOverride(&cfg, path); err != nil {
			return nil, fmt.Errorf("apply config override %s: %w", path, err)
		}
	}
	return &cfg, nil
}

func applyYAMLOverride(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, cfg)
}

// InvoiceSellerWarning returns a non-empty warning when invoices will be
// produced in a non-compliant shape because the seller address is unset.
func (c *Config) InvoiceSellerWarning() string {
	if c.Invoice.SellerAddress == "" {
		return "INVOICE_SELLER_ADDRESS is unset: invoices will be produced but are not tax-compliant"
	}
	return ""
}
