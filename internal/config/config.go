// Package config loads the job configuration from the environment
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/abelzeko/river-alert/internal/detector"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	ChannelPush     = "push"
	ChannelTelegram = "telegram"

	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config is built once at startup and not modified afterwards
type Config struct {
	Policy detector.Policy

	NotifyChannel   string
	NotifyToken     string
	NotifyRecipient string
	NotifyEndpoint  string
	NotifyRetry     bool

	SourceConfigPath string
	SourceTimezone   string

	StateBackend string
	StateFile    string

	PushgatewayURL string
	MetricsAddr    string
	LogLevel       string
	Schedule       string

	TelegramBotToken string
	OpenAIAPIKey     string
}

// Load reads .env when present, then the process environment. Malformed
// optional values are logged and replaced by their defaults; inconsistent
// settings are returned as an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv without touching .env
func FromEnv(getenv func(string) string) (Config, error) {
	e := env{getenv: getenv}
	policy := detector.DefaultPolicy()

	policy.MagnitudeThresholdM = e.positiveFloat("MAGNITUDE_THRESHOLD_M", policy.MagnitudeThresholdM)
	policy.NearBankThresholdM = e.positiveFloat("NEAR_BANK_THRESHOLD_M", policy.NearBankThresholdM)
	// a zero cooldown turns suppression off
	cooldownHours := e.nonNegativeFloat("COOLDOWN_HOURS", policy.Cooldown.Hours())
	policy.Cooldown = time.Duration(cooldownHours * float64(time.Hour))
	policy.FirstRunAlerts = e.bool("FIRST_RUN_ALERTS", policy.FirstRunAlerts)
	policy.AlertOnTimeChange = e.bool("ALERT_ON_TIME_CHANGE", policy.AlertOnTimeChange)
	policy.PersistAlways = e.bool("PERSIST_ALWAYS", policy.PersistAlways)

	cfg := Config{
		Policy:           policy,
		NotifyChannel:    strings.ToLower(e.string("NOTIFY_CHANNEL", ChannelPush)),
		NotifyToken:      e.string("NOTIFY_TOKEN", ""),
		NotifyRecipient:  e.string("NOTIFY_RECIPIENT", ""),
		NotifyEndpoint:   e.string("NOTIFY_ENDPOINT", ""),
		NotifyRetry:      e.bool("NOTIFY_RETRY", false),
		SourceConfigPath: e.string("STATION_SOURCE_CONFIG", ""),
		SourceTimezone:   e.string("SOURCE_TIMEZONE", ""),
		StateBackend:     strings.ToLower(e.string("STATE_BACKEND", BackendFile)),
		StateFile:        e.string("STATE_FILE", ""),
		PushgatewayURL:   e.string("PUSHGATEWAY_URL", ""),
		MetricsAddr:      e.string("METRICS_ADDR", ""),
		LogLevel:         e.string("LOG_LEVEL", "info"),
		Schedule:         e.string("SCHEDULE", ""),
		TelegramBotToken: e.string("TELEGRAM_BOT_TOKEN", ""),
		OpenAIAPIKey:     e.string("OPENAI_API_KEY", ""),
	}

	// a Telegram channel can reuse the companion bot's token
	if cfg.NotifyChannel == ChannelTelegram && cfg.NotifyToken == "" {
		cfg.NotifyToken = cfg.TelegramBotToken
	}
	if cfg.StateFile == "" {
		cfg.StateFile = "inburi_bridge_data.json"
		if cfg.StateBackend == BackendSQLite {
			cfg.StateFile = "river_alert.db"
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.NotifyChannel {
	case ChannelPush, ChannelTelegram:
	default:
		return fmt.Errorf("config: unknown NOTIFY_CHANNEL %q", c.NotifyChannel)
	}
	switch c.StateBackend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("config: unknown STATE_BACKEND %q", c.StateBackend)
	}
	return nil
}

// NotifyConfigured reports whether enough credentials are present to send alerts
func (c Config) NotifyConfigured() bool {
	return c.NotifyToken != "" && c.NotifyRecipient != ""
}

type env struct {
	getenv func(string) string
}

func (e env) string(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e env) positiveFloat(key string, def float64) float64 {
	return e.float(key, def, func(v float64) bool { return v > 0 })
}

func (e env) nonNegativeFloat(key string, def float64) float64 {
	return e.float(key, def, func(v float64) bool { return v >= 0 })
}

func (e env) float(key string, def float64, valid func(float64) bool) float64 {
	raw := strings.TrimSpace(e.getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || !valid(v) {
		log.Warn().Str("key", key).Str("value", raw).Float64("default", def).Msg("Invalid numeric setting, using default")
		return def
	}
	return v
}

func (e env) bool(key string, def bool) bool {
	raw := strings.TrimSpace(e.getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	log.Warn().Str("key", key).Str("value", raw).Bool("default", def).Msg("Invalid boolean setting, using default")
	return def
}
