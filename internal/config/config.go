package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LeventeLantos/pacedsend/internal/logging"
	"github.com/LeventeLantos/pacedsend/internal/pacing"
	"github.com/LeventeLantos/pacedsend/internal/queue"
)

const (
	ProgressFile  = "file"
	ProgressBolt  = "bolt"
	ProgressRedis = "redis"

	MessengerWhatsApp = "whatsapp"
	MessengerWebhook  = "webhook"
)

type Config struct {
	Server     ServerConfig
	Recipients RecipientsConfig
	Messages   MessagesConfig
	Audit      AuditConfig
	Progress   ProgressConfig
	Redis      RedisConfig
	Messenger  MessengerConfig
	Pacing     pacing.Settings
	Schedule   ScheduleConfig
	Log        logging.Config
}

type ServerConfig struct {
	Address string
}

type RecipientsConfig struct {
	File      string
	Normalize queue.Normalization
}

type MessagesConfig struct {
	File string
}

type AuditConfig struct {
	File        string
	PostgresURL string // optional mirror
}

type ProgressConfig struct {
	Backend  string
	File     string
	BoltPath string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type MessengerConfig struct {
	Kind          string
	WhatsAppStore string
	WebhookURL    string
}

type ScheduleConfig struct {
	AutostartCron string
}

func LoadAll() (*Config, error) {
	var errs []error
	intVar := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	seconds := func(key string, def int) time.Duration {
		return time.Duration(intVar(key, def)) * time.Second
	}

	loc, err := loadLocation(getEnv("TIMEZONE", "Local"))
	if err != nil {
		errs = append(errs, err)
	}

	norm, err := queue.ParseNormalization(getEnv("RECIPIENTS_NORMALIZE", string(queue.Digits)))
	if err != nil {
		errs = append(errs, fmt.Errorf("RECIPIENTS_NORMALIZE: %w", err))
	}

	charTyping, err := getEnvBool("PACE_CHAR_TYPING", false)
	if err != nil {
		errs = append(errs, err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":3000"),
		},
		Recipients: RecipientsConfig{
			File:      getEnv("RECIPIENTS_FILE", "numeros.txt"),
			Normalize: norm,
		},
		Messages: MessagesConfig{
			File: getEnv("MESSAGES_FILE", "mensagens.yaml"),
		},
		Audit: AuditConfig{
			File:        getEnv("AUDIT_LOG_FILE", "log_envios.txt"),
			PostgresURL: os.Getenv("POSTGRES_URL"),
		},
		Progress: ProgressConfig{
			Backend:  strings.ToLower(getEnv("PROGRESS_BACKEND", ProgressFile)),
			File:     getEnv("PROGRESS_FILE", "progresso.json"),
			BoltPath: getEnv("PROGRESS_BOLT_PATH", "progresso.db"),
		},
		Redis: loadRedisConfig(intVar),
		Messenger: MessengerConfig{
			Kind:          strings.ToLower(getEnv("MESSENGER", MessengerWhatsApp)),
			WhatsAppStore: getEnv("WHATSAPP_STORE", "file:whatsmeow.db?_foreign_keys=on"),
			WebhookURL:    os.Getenv("WEBHOOK_URL"),
		},
		Pacing: pacing.Settings{
			DelayMin:          seconds("PACE_DELAY_MIN_SECONDS", 45),
			DelayMax:          seconds("PACE_DELAY_MAX_SECONDS", 180),
			TypingDelayMin:    time.Duration(intVar("PACE_TYPING_MIN_MS", 3000)) * time.Millisecond,
			TypingDelayMax:    time.Duration(intVar("PACE_TYPING_MAX_MS", 8000)) * time.Millisecond,
			CharacterTyping:   charTyping,
			MaxPerSession:     intVar("PACE_MAX_PER_SESSION", 40),
			LongPauseEvery:    intVar("PACE_LONG_PAUSE_EVERY", 10),
			LongPauseMin:      seconds("PACE_LONG_PAUSE_MIN_SECONDS", 300),
			LongPauseMax:      seconds("PACE_LONG_PAUSE_MAX_SECONDS", 600),
			HourStart:         intVar("PACE_HOUR_START", 8),
			HourEnd:           intVar("PACE_HOUR_END", 20),
			ErrorBackoffMin:   seconds("PACE_ERROR_BACKOFF_MIN_SECONDS", 30),
			ErrorBackoffMax:   seconds("PACE_ERROR_BACKOFF_MAX_SECONDS", 60),
			HoursPollInterval: seconds("PACE_HOURS_POLL_SECONDS", 60),
			Location:          loc,
		},
		Schedule: ScheduleConfig{
			AutostartCron: strings.TrimSpace(os.Getenv("AUTOSTART_CRON")),
		},
		Log: logging.Config{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}

	errs = append(errs, validate(cfg)...)
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig(intVar func(string, int) int) RedisConfig {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       intVar("REDIS_DB", 0),
		TTL:      time.Duration(intVar("REDIS_TTL_SECONDS", 0)) * time.Second,
	}
}

func validate(cfg *Config) []error {
	var errs []error

	if err := cfg.Pacing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("PACE_*: %w", err))
	}

	switch cfg.Progress.Backend {
	case ProgressFile, ProgressBolt:
	case ProgressRedis:
		if !cfg.Redis.Enabled {
			errs = append(errs, errors.New("PROGRESS_BACKEND=redis requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("PROGRESS_BACKEND must be file, bolt or redis, got %q", cfg.Progress.Backend))
	}

	switch cfg.Messenger.Kind {
	case MessengerWhatsApp:
	case MessengerWebhook:
		if _, err := requireEnv("WEBHOOK_URL"); err != nil {
			errs = append(errs, fmt.Errorf("MESSENGER=webhook: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("MESSENGER must be whatsapp or webhook, got %q", cfg.Messenger.Kind))
	}

	if cfg.Redis.Enabled && cfg.Redis.TTL < 0 {
		errs = append(errs, errors.New("REDIS_TTL_SECONDS must be >= 0"))
	}
	return errs
}

func loadLocation(name string) (*time.Location, error) {
	switch name {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", name, err)
	}
	return loc, nil
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
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("invalid bool for env %s: %q", key, v)
	}
	return b, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
