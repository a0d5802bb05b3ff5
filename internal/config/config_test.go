package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LeventeLantos/pacedsend/internal/model"
	"github.com/LeventeLantos/pacedsend/internal/queue"
)

var envMu sync.Mutex

func TestLoadAll_Defaults(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Server.Address != ":3000" {
		t.Fatalf("unexpected Server.Address default: %q", cfg.Server.Address)
	}
	if cfg.Recipients.File != "numeros.txt" || cfg.Recipients.Normalize != queue.Digits {
		t.Fatalf("unexpected recipients defaults: %+v", cfg.Recipients)
	}
	if cfg.Progress.Backend != ProgressFile || cfg.Progress.File != "progresso.json" {
		t.Fatalf("unexpected progress defaults: %+v", cfg.Progress)
	}
	if cfg.Audit.File != "log_envios.txt" || cfg.Audit.PostgresURL != "" {
		t.Fatalf("unexpected audit defaults: %+v", cfg.Audit)
	}
	if cfg.Messenger.Kind != MessengerWhatsApp {
		t.Fatalf("unexpected messenger default: %q", cfg.Messenger.Kind)
	}

	p := cfg.Pacing
	if p.DelayMin != 45*time.Second || p.DelayMax != 180*time.Second {
		t.Fatalf("unexpected delay band: %v - %v", p.DelayMin, p.DelayMax)
	}
	if p.TypingDelayMin != 3*time.Second || p.TypingDelayMax != 8*time.Second {
		t.Fatalf("unexpected typing band: %v - %v", p.TypingDelayMin, p.TypingDelayMax)
	}
	if p.MaxPerSession != 40 || p.LongPauseEvery != 10 {
		t.Fatalf("unexpected session limits: %d / %d", p.MaxPerSession, p.LongPauseEvery)
	}
	if p.LongPauseMin != 5*time.Minute || p.LongPauseMax != 10*time.Minute {
		t.Fatalf("unexpected long pause band: %v - %v", p.LongPauseMin, p.LongPauseMax)
	}
	if p.HourStart != 8 || p.HourEnd != 20 {
		t.Fatalf("unexpected operating hours: %d-%d", p.HourStart, p.HourEnd)
	}
	if p.Location != time.Local {
		t.Fatalf("expected local time zone, got %v", p.Location)
	}

	if cfg.Redis.Enabled {
		t.Fatalf("expected Redis disabled when REDIS_ADDR not set")
	}
}

func TestLoadAll_WithRedis(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("PROGRESS_BACKEND", "redis")
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

func TestLoadAll_Overrides(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("RECIPIENTS_NORMALIZE", "raw")
	t.Setenv("PACE_CHAR_TYPING", "true")
	t.Setenv("PACE_TYPING_MIN_MS", "500")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("AUTOSTART_CRON", " 0 8 * * 1-5 ")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}
	if cfg.Recipients.Normalize != queue.Raw {
		t.Fatalf("expected raw normalization, got %q", cfg.Recipients.Normalize)
	}
	if !cfg.Pacing.CharacterTyping || cfg.Pacing.TypingDelayMin != 500*time.Millisecond {
		t.Fatalf("unexpected typing settings: %+v", cfg.Pacing)
	}
	if cfg.Pacing.Location != time.UTC {
		t.Fatalf("expected UTC, got %v", cfg.Pacing.Location)
	}
	if cfg.Schedule.AutostartCron != "0 8 * * 1-5" {
		t.Fatalf("unexpected cron spec %q", cfg.Schedule.AutostartCron)
	}
}

func TestLoadAll_RequiredEnvMissing(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	t.Run("webhook messenger without WEBHOOK_URL", func(t *testing.T) {
		clearTestEnv(t)
		t.Setenv("MESSENGER", "webhook")

		_, err := LoadAll()
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "WEBHOOK_URL") {
			t.Fatalf("expected error mentioning WEBHOOK_URL, got: %v", err)
		}
	})

	t.Run("redis backend without REDIS_ADDR", func(t *testing.T) {
		clearTestEnv(t)
		t.Setenv("PROGRESS_BACKEND", "redis")

		_, err := LoadAll()
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "REDIS_ADDR") {
			t.Fatalf("expected error mentioning REDIS_ADDR, got: %v", err)
		}
	})
}

func TestLoadAll_InvalidValues(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"invalid PACE_DELAY_MIN_SECONDS", "PACE_DELAY_MIN_SECONDS", "abc"},
		{"invalid PACE_MAX_PER_SESSION", "PACE_MAX_PER_SESSION", "nope"},
		{"invalid PACE_CHAR_TYPING", "PACE_CHAR_TYPING", "maybe"},
		{"invalid REDIS_DB", "REDIS_DB", "bad"},
		{"invalid REDIS_TTL_SECONDS", "REDIS_TTL_SECONDS", "bad"},
		{"invalid RECIPIENTS_NORMALIZE", "RECIPIENTS_NORMALIZE", "e164"},
		{"invalid TIMEZONE", "TIMEZONE", "Mars/Olympus"},
		{"invalid PROGRESS_BACKEND", "PROGRESS_BACKEND", "sqlite"},
		{"invalid MESSENGER", "MESSENGER", "telegram"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)

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
		set  func()
		want string
	}{
		{
			name: "delay max below min",
			set: func() {
				t.Setenv("PACE_DELAY_MIN_SECONDS", "60")
				t.Setenv("PACE_DELAY_MAX_SECONDS", "30")
			},
			want: "delay max",
		},
		{
			name: "max per session <= 0",
			set: func() {
				t.Setenv("PACE_MAX_PER_SESSION", "0")
			},
			want: "max per session",
		},
		{
			name: "hours inverted",
			set: func() {
				t.Setenv("PACE_HOUR_START", "20")
				t.Setenv("PACE_HOUR_END", "8")
			},
			want: "operating hours",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)
			tc.set()

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

func TestMessages_SaveThenLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mensagens.yaml")

	empty, err := LoadMessages(path)
	if err != nil {
		t.Fatalf("LoadMessages() on missing file error: %v", err)
	}
	if !errors.Is(empty.Validate(), model.ErrNoMessage) {
		t.Fatalf("missing file should yield an empty set, got %+v", empty)
	}

	want := model.MessageSet{Primary: "Olá! Tudo bem?", Variants: []string{"Oi, tudo certo?", "Bom dia!"}}
	if err := SaveMessages(path, want); err != nil {
		t.Fatalf("SaveMessages() error: %v", err)
	}

	got, err := LoadMessages(path)
	if err != nil {
		t.Fatalf("LoadMessages() error: %v", err)
	}
	if got.Primary != want.Primary || strings.Join(got.Variants, "|") != strings.Join(want.Variants, "|") {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestMessages_InvalidYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mensagens.yaml")
	if err := os.WriteFile(path, []byte("primary: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMessages(path); err == nil {
		t.Fatalf("expected parse error")
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
		"SERVER_ADDRESS",
		"RECIPIENTS_FILE",
		"RECIPIENTS_NORMALIZE",
		"MESSAGES_FILE",
		"AUDIT_LOG_FILE",
		"POSTGRES_URL",
		"PROGRESS_BACKEND",
		"PROGRESS_FILE",
		"PROGRESS_BOLT_PATH",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"REDIS_TTL_SECONDS",
		"MESSENGER",
		"WHATSAPP_STORE",
		"WEBHOOK_URL",
		"PACE_DELAY_MIN_SECONDS",
		"PACE_DELAY_MAX_SECONDS",
		"PACE_TYPING_MIN_MS",
		"PACE_TYPING_MAX_MS",
		"PACE_CHAR_TYPING",
		"PACE_MAX_PER_SESSION",
		"PACE_LONG_PAUSE_EVERY",
		"PACE_LONG_PAUSE_MIN_SECONDS",
		"PACE_LONG_PAUSE_MAX_SECONDS",
		"PACE_HOUR_START",
		"PACE_HOUR_END",
		"PACE_ERROR_BACKOFF_MIN_SECONDS",
		"PACE_ERROR_BACKOFF_MAX_SECONDS",
		"PACE_HOURS_POLL_SECONDS",
		"TIMEZONE",
		"AUTOSTART_CRON",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"FOO",
		"A",
		"N",
		"BAD",
	}
	for _, k := range keys {
		_ = os.Unsetenv(k)
	}
}
