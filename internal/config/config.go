package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	// Billing policy. Rates and the late fee are operator business rules,
	// not constants.
	CommissionRate  string `env:"COMMISSION_RATE" envDefault:"0.10"`
	VATRate         string `env:"VAT_RATE" envDefault:"0.077"`
	LateFeeAmount   string `env:"LATE_FEE_AMOUNT" envDefault:"15.00"`
	GracePeriodDays int    `env:"GRACE_PERIOD_DAYS" envDefault:"30"`

	// The marketplace account sellers transfer invoice payments to.
	PlatformIBAN string `env:"PLATFORM_IBAN,required"`

	// Dunning escalation thresholds in days past the due date.
	ReminderLevel1Days int `env:"REMINDER_LEVEL1_DAYS" envDefault:"1"`
	ReminderLevel2Days int `env:"REMINDER_LEVEL2_DAYS" envDefault:"7"`
	ReminderLevel3Days int `env:"REMINDER_LEVEL3_DAYS" envDefault:"14"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"24h"`
	SweepBatch    int           `env:"SWEEP_BATCH" envDefault:"500"`

	// Empty broker list selects the slog-backed notifier.
	KafkaBrokers           []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaNotificationTopic string   `env:"KAFKA_NOTIFICATION_TOPIC" envDefault:"billing.notifications"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if _, err := cfg.CommissionRateDecimal(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if _, err := cfg.VATRateDecimal(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if _, err := cfg.LateFeeDecimal(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.ReminderLevel1Days >= cfg.ReminderLevel2Days || cfg.ReminderLevel2Days >= cfg.ReminderLevel3Days {
		return nil, fmt.Errorf("config.Load: reminder thresholds must be strictly increasing")
	}
	return &cfg, nil
}

func (c *Config) CommissionRateDecimal() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.CommissionRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("CommissionRateDecimal: %q: %w", c.CommissionRate, err)
	}
	return d, nil
}

func (c *Config) VATRateDecimal() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.VATRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("VATRateDecimal: %q: %w", c.VATRate, err)
	}
	return d, nil
}

func (c *Config) LateFeeDecimal() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.LateFeeAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("LateFeeDecimal: %q: %w", c.LateFeeAmount, err)
	}
	return d, nil
}

func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodDays) * 24 * time.Hour
}

// EscalationDays returns the reminder thresholds ordered by level; the last
// entry is the final tier that triggers the late fee and the account block.
func (c *Config) EscalationDays() []int {
	return []int{c.ReminderLevel1Days, c.ReminderLevel2Days, c.ReminderLevel3Days}
}
