package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Sweep    SweepConfig
	Delay    DelayConfig
	Twilio   TwilioConfig
	OpenAI   OpenAIConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type SweepConfig struct {
	Interval  time.Duration
	BatchSize int
	GroupKey  string
}

// DelayConfig bounds the uniform-random reply delay. The window is a
// policy knob; the default mirrors the companion's original 35m-8h range.
type DelayConfig struct {
	Min time.Duration
	Max time.Duration
}

type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	SendTimeout time.Duration
}

type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	Persona         string
	GenerateTimeout time.Duration
}

// LoadAll loads every subsystem's settings for the long-running service.
func LoadAll() (*Config, error) {
	var errs []error

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: loadDatabaseConfig(&errs),
		Twilio:   loadTwilioConfig(&errs),
		OpenAI:   loadOpenAIConfig(&errs),
		Sweep:    loadSweepConfig(&errs),
		Delay:    loadDelayConfig(&errs),
	}

	redisCfg, redisErrs := loadRedisConfig()
	cfg.Redis = redisCfg
	errs = append(errs, redisErrs...)

	if len(errs) == 0 {
		errs = append(errs, validateDispatch(cfg)...)
		errs = append(errs, validateInline(cfg)...)
	}

	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSweep loads only what the one-shot sweep needs: database, Twilio
// send and sweep settings. The sweep never generates replies, so cron
// environments can run it without the OpenAI secrets.
func LoadSweep() (*Config, error) {
	var errs []error

	cfg := &Config{
		Database: loadDatabaseConfig(&errs),
		Twilio:   loadTwilioConfig(&errs),
		Sweep:    loadSweepConfig(&errs),
	}

	if len(errs) == 0 {
		errs = append(errs, validateDispatch(cfg)...)
	}

	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDatabaseConfig(errs *[]error) DatabaseConfig {
	return DatabaseConfig{
		PostgresURL: must("POSTGRES_URL", errs),
	}
}

func loadTwilioConfig(errs *[]error) TwilioConfig {
	return TwilioConfig{
		AccountSID:  must("TWILIO_ACCOUNT_SID", errs),
		AuthToken:   must("TWILIO_AUTH_TOKEN", errs),
		SendTimeout: secondsOr("SEND_TIMEOUT_SECONDS", 15, errs),
	}
}

func loadOpenAIConfig(errs *[]error) OpenAIConfig {
	return OpenAIConfig{
		APIKey:          must("OPENAI_API_KEY", errs),
		BaseURL:         os.Getenv("OPENAI_BASE_URL"),
		Model:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		Persona:         os.Getenv("PERSONA_PROMPT"),
		GenerateTimeout: secondsOr("GENERATE_TIMEOUT_SECONDS", 30, errs),
	}
}

func loadSweepConfig(errs *[]error) SweepConfig {
	return SweepConfig{
		Interval:  secondsOr("SWEEP_INTERVAL_SECONDS", 120, errs),
		BatchSize: intOr("SWEEP_BATCH_SIZE", 100, errs),
		GroupKey:  getEnv("GROUP_KEY", "recipient"),
	}
}

func loadDelayConfig(errs *[]error) DelayConfig {
	return DelayConfig{
		Min: secondsOr("REPLY_DELAY_MIN_SECONDS", 35*60, errs),
		Max: secondsOr("REPLY_DELAY_MAX_SECONDS", 8*60*60, errs),
	}
}

func loadRedisConfig() (RedisConfig, []error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	var errs []error
	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		errs = append(errs, err)
	}
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 86400)
	if err != nil {
		errs = append(errs, err)
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, errs
}

// validateDispatch covers the settings shared by every binary that
// delivers replies.
func validateDispatch(cfg *Config) []error {
	var errs []error
	if cfg.Sweep.BatchSize <= 0 {
		errs = append(errs, errors.New("SWEEP_BATCH_SIZE must be > 0"))
	}
	if cfg.Sweep.Interval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Sweep.GroupKey != "recipient" && cfg.Sweep.GroupKey != "recipient_sender" {
		errs = append(errs, fmt.Errorf("GROUP_KEY must be recipient or recipient_sender, got %q", cfg.Sweep.GroupKey))
	}
	if cfg.Twilio.SendTimeout <= 0 {
		errs = append(errs, errors.New("SEND_TIMEOUT_SECONDS must be > 0"))
	}
	return errs
}

// validateInline covers the reply-generation path only the service runs.
func validateInline(cfg *Config) []error {
	var errs []error
	if cfg.Delay.Min <= 0 {
		errs = append(errs, errors.New("REPLY_DELAY_MIN_SECONDS must be > 0"))
	}
	if cfg.Delay.Max < cfg.Delay.Min {
		errs = append(errs, errors.New("REPLY_DELAY_MAX_SECONDS must be >= REPLY_DELAY_MIN_SECONDS"))
	}
	if cfg.OpenAI.GenerateTimeout <= 0 {
		errs = append(errs, errors.New("GENERATE_TIMEOUT_SECONDS must be > 0"))
	}
	return errs
}

func must(key string, errs *[]error) string {
	v, err := requireEnv(key)
	if err != nil {
		*errs = append(*errs, err)
	}
	return v
}

func intOr(key string, def int, errs *[]error) int {
	v, err := getEnvInt(key, def)
	if err != nil {
		*errs = append(*errs, err)
	}
	return v
}

func secondsOr(key string, def int, errs *[]error) time.Duration {
	return time.Duration(intOr(key, def, errs)) * time.Second
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
