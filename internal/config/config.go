package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/SashOkT/ElectricityPricingProject/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Source    SourceConfig    `mapstructure:"source"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	DotEnvFile  string `mapstructure:"dotenv_file"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the alert audit log.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Retention       time.Duration `mapstructure:"retention"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	CycleTimeout    time.Duration `mapstructure:"cycle_timeout"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// SourceConfig describes the hourly pricing page.
type SourceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timezone       string        `mapstructure:"timezone"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	HourHeader     string        `mapstructure:"hour_header"`
	PriceHeader    string        `mapstructure:"price_header"`
}

// AlertingConfig defines the threshold and delivery channels.
type AlertingConfig struct {
	Enabled                bool           `mapstructure:"enabled"`
	Mode                   string         `mapstructure:"mode"`
	ThresholdCents         float64        `mapstructure:"threshold_cents"`
	Channels               []string       `mapstructure:"channels"`
	PruneDaily             bool           `mapstructure:"prune_daily"`
	FetchFailureAlertAfter int            `mapstructure:"fetch_failure_alert_after"`
	SendTimeout            time.Duration  `mapstructure:"send_timeout"`
	Email                  EmailConfig    `mapstructure:"email"`
	Telegram               TelegramConfig `mapstructure:"telegram"`
}

// Evaluation modes for alerting.mode.
const (
	// ModePerHour keeps one armed flag per hour label.
	ModePerHour = "per_hour"
	// ModeSeries evaluates each hour once per day against a single armed flag.
	ModeSeries = "series"
)

// EmailConfig holds SMTP relay settings.
type EmailConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// TelegramConfig describes Telegram delivery.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	ChartWidth  int `mapstructure:"chart_width"`
	ChartHeight int `mapstructure:"chart_height"`
}

// Error reports an invalid or missing setting. The process must not start
// with one.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

func invalid(key, format string, args ...any) error {
	return &Error{Key: key, Reason: fmt.Sprintf(format, args...)}
}

// legacyEnv carries the flat variables used by earlier deployments.
type legacyEnv struct {
	PriceThreshold string   `envconfig:"PRICE_THRESHOLD"`
	EmailUser      string   `envconfig:"EMAIL_USER"`
	EmailPass      string   `envconfig:"EMAIL_PASS"`
	EmailTo        []string `envconfig:"EMAIL_TO"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := loadDotEnv(v.GetString("app.dotenv_file")); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.applyLegacyEnv(); err != nil {
		return nil, err
	}
	cfg.applyFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pricewatch")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.dotenv_file", ".env")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.align_to_interval", false)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.cycle_timeout", "10m")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x636f6d65))

	v.SetDefault("source.base_url", "https://hourlypricing.comed.com/pricing-table-today/")
	v.SetDefault("source.timezone", "America/Chicago")
	v.SetDefault("source.request_timeout", "30s")
	v.SetDefault("source.user_agent", "pricewatch/1.0")
	v.SetDefault("source.hour_header", "Price for the Hour Ending")
	v.SetDefault("source.price_header", "Hourly Price")

	v.SetDefault("alerting.enabled", true)
	// per_hour keeps one armed flag per hour label, so the 4.9/5.0/5.1 table
	// fires for 11:00 and 12:00. series shares one flag across the day's
	// hours and fires once, for 11:00.
	v.SetDefault("alerting.mode", ModePerHour)
	v.SetDefault("alerting.threshold_cents", 1.5)
	v.SetDefault("alerting.channels", []string{"email"})
	v.SetDefault("alerting.prune_daily", true)
	v.SetDefault("alerting.fetch_failure_alert_after", 0)
	v.SetDefault("alerting.send_timeout", "30s")
	v.SetDefault("alerting.email.host", "smtp.gmail.com")
	v.SetDefault("alerting.email.port", 587)
	v.SetDefault("alerting.email.username", "")
	v.SetDefault("alerting.email.password", "")
	v.SetDefault("alerting.email.from", "")
	v.SetDefault("alerting.email.to", []string{})
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.chart_width", 1280)
	v.SetDefault("export.chart_height", 720)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.retention", "0s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

func (c *Config) applyLegacyEnv() error {
	var legacy legacyEnv
	if err := envconfig.Process("", &legacy); err != nil {
		return fmt.Errorf("read legacy environment: %w", err)
	}

	if raw := strings.TrimSpace(legacy.PriceThreshold); raw != "" {
		threshold, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return invalid("PRICE_THRESHOLD", "not a number: %q", raw)
		}
		c.Alerting.ThresholdCents = threshold
	}
	if legacy.EmailUser != "" {
		c.Alerting.Email.Username = legacy.EmailUser
	}
	if legacy.EmailPass != "" {
		c.Alerting.Email.Password = legacy.EmailPass
	}
	if len(legacy.EmailTo) > 0 {
		c.Alerting.Email.To = legacy.EmailTo
	}
	return nil
}

// applyFallbacks sends to and from the relay account unless told otherwise.
func (c *Config) applyFallbacks() {
	email := &c.Alerting.Email
	if email.From == "" {
		email.From = email.Username
	}
	if len(email.To) == 0 && email.Username != "" {
		email.To = []string{email.Username}
	}
	channels := make([]string, 0, len(c.Alerting.Channels))
	for _, ch := range c.Alerting.Channels {
		if ch = strings.ToLower(strings.TrimSpace(ch)); ch != "" {
			channels = append(channels, ch)
		}
	}
	c.Alerting.Channels = channels
	c.Alerting.Mode = strings.ToLower(strings.TrimSpace(c.Alerting.Mode))
	if c.Alerting.Mode == "" {
		c.Alerting.Mode = ModePerHour
	}
}

// Validate performs sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return invalid("scheduler.interval", "must be greater than zero")
	}
	if c.Scheduler.CycleTimeout < 0 {
		return invalid("scheduler.cycle_timeout", "cannot be negative")
	}
	threshold := c.Alerting.ThresholdCents
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold < 0 {
		return invalid("alerting.threshold_cents", "must be a finite non-negative number, got %v", threshold)
	}
	if c.Alerting.Mode != ModePerHour && c.Alerting.Mode != ModeSeries {
		return invalid("alerting.mode", "must be %q or %q, got %q", ModePerHour, ModeSeries, c.Alerting.Mode)
	}
	if c.Database.Retention < 0 {
		return invalid("database.retention", "cannot be negative")
	}
	if c.Alerting.FetchFailureAlertAfter < 0 {
		return invalid("alerting.fetch_failure_alert_after", "cannot be negative")
	}
	if strings.TrimSpace(c.Source.BaseURL) == "" {
		return invalid("source.base_url", "must be set")
	}
	if _, err := time.LoadLocation(c.Source.Timezone); err != nil {
		return invalid("source.timezone", "unknown timezone %q", c.Source.Timezone)
	}

	if !c.Alerting.Enabled {
		return nil
	}
	if len(c.Alerting.Channels) == 0 {
		return invalid("alerting.channels", "at least one channel is required when alerting is enabled")
	}
	for _, ch := range c.Alerting.Channels {
		switch ch {
		case "email":
			if err := c.Alerting.Email.validate(); err != nil {
				return err
			}
		case "telegram":
			if c.Alerting.Telegram.BotToken == "" {
				return invalid("alerting.telegram.bot_token", "must be set")
			}
			if c.Alerting.Telegram.ChatID == "" {
				return invalid("alerting.telegram.chat_id", "must be set")
			}
		default:
			return invalid("alerting.channels", "unknown channel %q", ch)
		}
	}
	return nil
}

func (e EmailConfig) validate() error {
	if e.Host == "" {
		return invalid("alerting.email.host", "must be set")
	}
	if e.Port <= 0 {
		return invalid("alerting.email.port", "must be greater than zero")
	}
	if e.Username == "" {
		return invalid("alerting.email.username", "missing mail credentials (EMAIL_USER)")
	}
	if e.Password == "" {
		return invalid("alerting.email.password", "missing mail credentials (EMAIL_PASS)")
	}
	if len(e.To) == 0 {
		return invalid("alerting.email.to", "at least one recipient is required")
	}
	return nil
}

// Location returns the source timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Source.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HasChannel reports whether the channel is configured.
func (c *Config) HasChannel(name string) bool {
	for _, ch := range c.Alerting.Channels {
		if ch == name {
			return true
		}
	}
	return false
}
