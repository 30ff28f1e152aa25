// Package config загружает настройки сервера из YAML файла и переменных окружения.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "SOUNDLINES_"

// Config настройки сервера
type Config struct {
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Index     IndexConfig     `yaml:"index"`
	Journal   JournalConfig   `yaml:"journal"`
	Aggregate AggregateConfig `yaml:"aggregate"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Session   SessionConfig   `yaml:"session"`
}

// ServerConfig параметры HTTP сервера
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gt=0"`
	RequestTimeout  time.Duration `yaml:"request_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// LogConfig параметры логирования
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// StorageConfig пути к базе данных и контрольным точкам
type StorageConfig struct {
	DBPath             string        `yaml:"db_path" validate:"required"`
	CheckpointDir      string        `yaml:"checkpoint_dir" validate:"required"`
	SeedPath           string        `yaml:"seed_path"` // SeedPath JSON мира для первого запуска, опционально
	CheckpointInterval time.Duration `yaml:"checkpoint_interval" validate:"gt=0"`
	CheckpointKeep     int           `yaml:"checkpoint_keep" validate:"gte=1"`
}

// IndexConfig параметры пространственного индекса
type IndexConfig struct {
	Metric        string        `yaml:"metric" validate:"oneof=haversine planar"`
	CellSize      float64       `yaml:"cell_size" validate:"gt=0,lte=90"`
	TTL           time.Duration `yaml:"ttl" validate:"gte=0"`
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"gt=0"`
}

// AggregateConfig параметры агрегатора
type AggregateConfig struct {
	K            int     `yaml:"k" validate:"gte=1,lte=100"`
	NoiseEpsilon float64 `yaml:"noise_epsilon" validate:"gte=0,lte=1"`
}

// JournalConfig параметры журнала изменений
type JournalConfig struct {
	Retention       time.Duration `yaml:"retention" validate:"gte=0"`
	MaxLen          int           `yaml:"max_len" validate:"gte=0"`
	CompactInterval time.Duration `yaml:"compact_interval" validate:"gt=0"`
}

// SessionConfig параметры трекера клиентов
type SessionConfig struct {
	ActiveWindow time.Duration `yaml:"active_window" validate:"gte=0"`
}

// AuthConfig параметры аутентификации устройств
type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret" validate:"required,min=16"`
	AdminToken string        `yaml:"admin_token"` // AdminToken пустой токен отключает админский API
	TokenTTL   time.Duration `yaml:"token_ttl" validate:"gt=0"`
}

// RateLimitConfig ограничение частоты запросов на клиента
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" validate:"gte=0"` // RPS 0 отключает ограничение
	Burst int     `yaml:"burst" validate:"gte=0"`
}

// Default возвращает конфигурацию со значениями по умолчанию
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			DBPath:             "soundlines.db",
			CheckpointDir:      "checkpoints",
			CheckpointInterval: 5 * time.Minute,
			CheckpointKeep:     3,
		},
		Index: IndexConfig{
			Metric:        "haversine",
			CellSize:      0.001,
			TTL:           5 * time.Minute,
			SweepInterval: 30 * time.Second,
		},
		Aggregate: AggregateConfig{
			K:            5,
			NoiseEpsilon: 0.01,
		},
		Journal: JournalConfig{
			Retention:       24 * time.Hour,
			MaxLen:          100000,
			CompactInterval: time.Minute,
		},
		Session: SessionConfig{
			ActiveWindow: 7 * 24 * time.Hour,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			RPS:   10,
			Burst: 20,
		},
	}
}

// Load читает конфигурацию: значения по умолчанию, затем YAML файл
// (если path не пустой), затем переменные окружения.
// Результат не валидируется, для этого есть Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config: %w", err)
		}
		defer f.Close()

		if err := Decode(f, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode накладывает YAML документ на cfg. Неизвестные поля считаются ошибкой.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// applyEnv накладывает переменные окружения SOUNDLINES_*
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ADDR":           &c.Server.Addr,
		"LOG_LEVEL":      &c.Log.Level,
		"LOG_FORMAT":     &c.Log.Format,
		"DB_PATH":        &c.Storage.DBPath,
		"CHECKPOINT_DIR": &c.Storage.CheckpointDir,
		"SEED_PATH":      &c.Storage.SeedPath,
		"JWT_SECRET":     &c.Auth.JWTSecret,
		"ADMIN_TOKEN":    &c.Auth.AdminToken,
		"INDEX_METRIC":   &c.Index.Metric,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"REPORT_TTL":        &c.Index.TTL,
		"JOURNAL_RETENTION": &c.Journal.Retention,
		"ACTIVE_WINDOW":     &c.Session.ActiveWindow,
	}
	for name, dst := range durations {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
	}

	if v, ok := lookup(EnvPrefix + "K"); ok {
		k, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sK: %w", EnvPrefix, err)
		}
		c.Aggregate.K = k
	}
	if v, ok := lookup(EnvPrefix + "CELL_SIZE"); ok {
		size, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sCELL_SIZE: %w", EnvPrefix, err)
		}
		c.Index.CellSize = size
	}
	return nil
}

// Validate проверяет значения по тегам validate
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// NewLogger создает логгер по настройкам
func NewLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
