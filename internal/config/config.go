package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/opsgrid/opsgrid/internal/types"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment    DeploymentConfig `validate:"required"`
	Server        ServerConfig     `validate:"required"`
	Postgres      PostgresConfig
	Logging       LoggingConfig `validate:"required"`
	Billing       BillingConfig `validate:"required"`
	Gateway       GatewayConfig `validate:"required"`
	Notifications NotificationConfig
	Cache         CacheConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN returns the lib/pq connection string
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

// BillingConfig holds the plan pricing and dunning policy knobs
type BillingConfig struct {
	Currency        string `validate:"required"`
	TrialPeriodDays int    `validate:"gt=0"`

	// Seat prices per tier per month
	TeamSeatPrice       float64
	EnterpriseSeatPrice float64

	// Addon surcharges as a fraction of the base amount
	PlanningSurcharge float64
	AISurcharge       float64

	// PausedRestrictsAccess controls whether paused tenants lose access
	PausedRestrictsAccess bool
}

type GatewayConfig struct {
	Provider types.GatewayProvider `validate:"required"`
	Stripe   StripeConfig
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type NotificationConfig struct {
	// WebhookURL receives billing lifecycle notifications; empty disables them
	WebhookURL     string
	TimeoutSeconds int
}

type CacheConfig struct {
	Enabled bool
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	// Load environment variables from .env if present
	_ = godotenv.Load()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/opsgrid")

	v.SetEnvPrefix("OPSGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine, we fall back to env vars and defaults
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", types.LogLevelInfo)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "opsgrid")
	v.SetDefault("postgres.dbname", "opsgrid")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("billing.currency", "eur")
	v.SetDefault("billing.trialperioddays", 15)
	v.SetDefault("billing.teamseatprice", 29)
	v.SetDefault("billing.enterpriseseatprice", 49)
	v.SetDefault("billing.planningsurcharge", 0.10)
	v.SetDefault("billing.aisurcharge", 0.15)
	v.SetDefault("billing.pausedrestrictsaccess", false)
	v.SetDefault("gateway.provider", types.GatewayProviderFake)
	v.SetDefault("notifications.timeoutseconds", 10)
	v.SetDefault("cache.enabled", true)
}

func (c *Configuration) Validate() error {
	return validator.New().Struct(c)
}
