package config

import (
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

var envMu sync.Mutex

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")
	t.Setenv("TWILIO_ACCOUNT_SID", "ACxxxxxxxx")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("OPENAI_API_KEY", "sk-test")
}

func TestLoadAll_HappyPath_NoRedis(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)
	setRequiredEnv(t)

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Database.PostgresURL != "postgres://u:p@localhost:5432/db?sslmode=disable" {
		t.Fatalf("unexpected PostgresURL: %q", cfg.Database.PostgresURL)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected Server.Address default: %q", cfg.Server.Address)
	}
	if cfg.Sweep.Interval != 120*time.Second {
		t.Fatalf("unexpected Sweep.Interval default: %v", cfg.Sweep.Interval)
	}
	if cfg.Sweep.BatchSize != 100 {
		t.Fatalf("unexpected Sweep.BatchSize default: %d", cfg.Sweep.BatchSize)
	}
	if cfg.Sweep.GroupKey != "recipient" {
		t.Fatalf("unexpected GroupKey default: %q", cfg.Sweep.GroupKey)
	}
	if cfg.Delay.Min != 35*time.Minute {
		t.Fatalf("unexpected Delay.Min default: %v", cfg.Delay.Min)
	}
	if cfg.Delay.Max != 8*time.Hour {
		t.Fatalf("unexpected Delay.Max default: %v", cfg.Delay.Max)
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected OpenAI.Model default: %q", cfg.OpenAI.Model)
	}
	if cfg.Twilio.SendTimeout != 15*time.Second {
		t.Fatalf("unexpected SendTimeout default: %v", cfg.Twilio.SendTimeout)
	}

	if cfg.Redis.Enabled {
		t.Fatalf("expected Redis disabled when REDIS_ADDR not set")
	}
}

func TestLoadAll_HappyPath_WithRedis(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)
	setRequiredEnv(t)

	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_TTL_SECONDS", "42")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if !cfg.Redis.Enabled {
		t.Fatalf("expected Redis enabled")
	}
	if cfg.Redis.Address != "localhost:6379" {
		t.Fatalf("unexpected Redis.Address: %q", cfg.Redis.Address)
	}
	if cfg.Redis.Password != "secret" {
		t.Fatalf("unexpected Redis.Password: %q", cfg.Redis.Password)
	}
	if cfg.Redis.DB != 3 {
		t.Fatalf("unexpected Redis.DB: %d", cfg.Redis.DB)
	}
	if cfg.Redis.TTL != 42*time.Second {
		t.Fatalf("unexpected Redis.TTL: %v", cfg.Redis.TTL)
	}
}

func TestLoadAll_CustomDelayWindow(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)
	setRequiredEnv(t)

	t.Setenv("REPLY_DELAY_MIN_SECONDS", "300")
	t.Setenv("REPLY_DELAY_MAX_SECONDS", "2700")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Delay.Min != 5*time.Minute {
		t.Fatalf("expected Delay.Min 5m, got %v", cfg.Delay.Min)
	}
	if cfg.Delay.Max != 45*time.Minute {
		t.Fatalf("expected Delay.Max 45m, got %v", cfg.Delay.Max)
	}
}

func TestLoadAll_RequiredEnvMissing(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	required := []string{
		"POSTGRES_URL",
		"TWILIO_ACCOUNT_SID",
		"TWILIO_AUTH_TOKEN",
		"OPENAI_API_KEY",
	}

	for _, missing := range required {
		missing := missing
		t.Run("missing "+missing, func(t *testing.T) {
			clearTestEnv(t)
			setRequiredEnv(t)
			_ = os.Unsetenv(missing)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), missing) {
				t.Fatalf("expected error mentioning %s, got: %v", missing, err)
			}
		})
	}
}

func TestLoadAll_InvalidInts(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"invalid SWEEP_INTERVAL_SECONDS", "SWEEP_INTERVAL_SECONDS", "nope"},
		{"invalid SWEEP_BATCH_SIZE", "SWEEP_BATCH_SIZE", "x"},
		{"invalid REPLY_DELAY_MIN_SECONDS", "REPLY_DELAY_MIN_SECONDS", "soon"},
		{"invalid SEND_TIMEOUT_SECONDS", "SEND_TIMEOUT_SECONDS", "abc"},
		{"invalid REDIS_DB", "REDIS_DB", "bad"},
		{"invalid REDIS_TTL_SECONDS", "REDIS_TTL_SECONDS", "bad"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)
			setRequiredEnv(t)

			// Enable redis only for redis-related invalid ints.
			if strings.HasPrefix(tc.key, "REDIS_") {
				t.Setenv("REDIS_ADDR", "localhost:6379")
			}

			t.Setenv(tc.key, tc.val)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.key, err)
			}
		})
	}
}

func TestLoadAll_ValidationFailures(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"batch size <= 0", "SWEEP_BATCH_SIZE", "0", "SWEEP_BATCH_SIZE"},
		{"interval <= 0", "SWEEP_INTERVAL_SECONDS", "0", "SWEEP_INTERVAL_SECONDS"},
		{"unknown group key", "GROUP_KEY", "per_channel", "GROUP_KEY"},
		{"delay min <= 0", "REPLY_DELAY_MIN_SECONDS", "0", "REPLY_DELAY_MIN_SECONDS"},
		{"delay max < min", "REPLY_DELAY_MAX_SECONDS", "1", "REPLY_DELAY_MAX_SECONDS"},
		{"send timeout <= 0", "SEND_TIMEOUT_SECONDS", "0", "SEND_TIMEOUT_SECONDS"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)
			setRequiredEnv(t)
			t.Setenv(tc.key, tc.val)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.want, err)
			}
		})
	}
}

func TestLoadSweep_DoesNotRequireOpenAI(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)
	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")
	t.Setenv("TWILIO_ACCOUNT_SID", "ACxxxxxxxx")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")

	cfg, err := LoadSweep()
	if err != nil {
		t.Fatalf("LoadSweep() error: %v", err)
	}

	if cfg.Database.PostgresURL == "" {
		t.Fatalf("expected PostgresURL set")
	}
	if cfg.Twilio.SendTimeout != 15*time.Second {
		t.Fatalf("unexpected SendTimeout default: %v", cfg.Twilio.SendTimeout)
	}
	if cfg.Sweep.BatchSize != 100 {
		t.Fatalf("unexpected Sweep.BatchSize default: %d", cfg.Sweep.BatchSize)
	}
	if cfg.Sweep.GroupKey != "recipient" {
		t.Fatalf("unexpected GroupKey default: %q", cfg.Sweep.GroupKey)
	}
}

func TestLoadSweep_RequiredEnvMissing(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	required := []string{
		"POSTGRES_URL",
		"TWILIO_ACCOUNT_SID",
		"TWILIO_AUTH_TOKEN",
	}

	for _, missing := range required {
		missing := missing
		t.Run("missing "+missing, func(t *testing.T) {
			clearTestEnv(t)
			setRequiredEnv(t)
			_ = os.Unsetenv(missing)

			_, err := LoadSweep()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), missing) {
				t.Fatalf("expected error mentioning %s, got: %v", missing, err)
			}
		})
	}
}

func TestLoadSweep_ValidatesDispatchSettings(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)
	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")
	t.Setenv("TWILIO_ACCOUNT_SID", "ACxxxxxxxx")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("SWEEP_BATCH_SIZE", "0")

	_, err := LoadSweep()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "SWEEP_BATCH_SIZE") {
		t.Fatalf("expected error mentioning SWEEP_BATCH_SIZE, got: %v", err)
	}
}

func TestRequireEnv(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	_, err := requireEnv("MISSING_KEY")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	t.Setenv("FOO", "bar")
	v, err := requireEnv("FOO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "bar" {
		t.Fatalf("expected %q, got %q", "bar", v)
	}
}

func TestGetEnv(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	if got := getEnv("NOPE", "default"); got != "default" {
		t.Fatalf("expected default, got %q", got)
	}

	t.Setenv("A", "x")
	if got := getEnv("A", "default"); got != "x" {
		t.Fatalf("expected x, got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	got, err := getEnvInt("MISSING", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}

	t.Setenv("N", "123")
	got, err = getEnvInt("N", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 123 {
		t.Fatalf("expected 123, got %d", got)
	}

	t.Setenv("BAD", "abc")
	_, err = getEnvInt("BAD", 7)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "BAD") {
		t.Fatalf("expected error mentioning BAD, got: %v", err)
	}
}

func TestJoinErrors(t *testing.T) {
	if err := joinErrors(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	e1 := errors.New("one")
	e2 := errors.New("two")
	err := joinErrors([]error{e1, e2})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	if !errors.Is(err, e1) {
		t.Fatalf("expected errors.Is(err, e1) to be true")
	}
	if !errors.Is(err, e2) {
		t.Fatalf("expected errors.Is(err, e2) to be true")
	}
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"POSTGRES_URL",
		"TWILIO_ACCOUNT_SID",
		"TWILIO_AUTH_TOKEN",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"OPENAI_MODEL",
		"PERSONA_PROMPT",
		"GENERATE_TIMEOUT_SECONDS",
		"SEND_TIMEOUT_SECONDS",
		"SWEEP_INTERVAL_SECONDS",
		"SWEEP_BATCH_SIZE",
		"GROUP_KEY",
		"REPLY_DELAY_MIN_SECONDS",
		"REPLY_DELAY_MAX_SECONDS",
		"SERVER_ADDRESS",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"REDIS_TTL_SECONDS",
		"FOO",
		"A",
		"N",
		"BAD",
	}
	for _, k := range keys {
		_ = os.Unsetenv(k)
	}
}
