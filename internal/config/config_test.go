package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Auth.JWTSecret = "0123456789abcdef0123"
	return cfg
}

func TestDefault_IsValidWithSecret(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	// Без секрета JWT конфигурация неполная
	err := Default().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWTSecret")
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	content := `
server:
  addr: ":9000"
index:
  cell_size: 0.01
  ttl: 2m
aggregate:
  k: 8
auth:
  jwt_secret: "file-secret-0123456789"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("SOUNDLINES_ADDR", ":9100")
	t.Setenv("SOUNDLINES_ACTIVE_WINDOW", "1h")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.InDelta(t, 0.01, cfg.Index.CellSize, 1e-12)
	assert.Equal(t, 2*time.Minute, cfg.Index.TTL)
	assert.Equal(t, 8, cfg.Aggregate.K)
	assert.Equal(t, "file-secret-0123456789", cfg.Auth.JWTSecret)
	assert.Equal(t, time.Hour, cfg.Session.ActiveWindow)
	// Не заданные в файле поля остаются по умолчанию
	assert.Equal(t, "haversine", cfg.Index.Metric)
	assert.Equal(t, 3, cfg.Storage.CheckpointKeep)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDecode_UnknownField(t *testing.T) {
	cfg := Default()
	err := Decode(strings.NewReader("server:\n  port: 80\n"), cfg)
	require.Error(t, err)
}

func TestDecode_Empty(t *testing.T) {
	cfg := Default()
	require.NoError(t, Decode(strings.NewReader(""), cfg))
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		env     map[string]string
		check   func(t *testing.T, cfg *Config)
		name    string
		wantErr bool
	}{
		{
			name: "numbers and durations",
			env: map[string]string{
				"SOUNDLINES_K":                 "3",
				"SOUNDLINES_CELL_SIZE":         "0.5",
				"SOUNDLINES_REPORT_TTL":        "90s",
				"SOUNDLINES_JOURNAL_RETENTION": "0s",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 3, cfg.Aggregate.K)
				assert.InDelta(t, 0.5, cfg.Index.CellSize, 1e-12)
				assert.Equal(t, 90*time.Second, cfg.Index.TTL)
				assert.Zero(t, cfg.Journal.Retention)
			},
		},
		{
			name: "strings",
			env: map[string]string{
				"SOUNDLINES_ADMIN_TOKEN":  "admin",
				"SOUNDLINES_INDEX_METRIC": "planar",
				"SOUNDLINES_LOG_FORMAT":   "json",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "admin", cfg.Auth.AdminToken)
				assert.Equal(t, "planar", cfg.Index.Metric)
				assert.Equal(t, "json", cfg.Log.Format)
			},
		},
		{
			name:    "bad duration",
			env:     map[string]string{"SOUNDLINES_REPORT_TTL": "soon"},
			wantErr: true,
		},
		{
			name:    "bad k",
			env:     map[string]string{"SOUNDLINES_K": "five"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			lookup := func(key string) (string, bool) {
				v, ok := tt.env[key]
				return v, ok
			}
			err := cfg.applyEnv(lookup)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		mutate func(cfg *Config)
		name   string
	}{
		{name: "k zero", mutate: func(cfg *Config) { cfg.Aggregate.K = 0 }},
		{name: "negative cell size", mutate: func(cfg *Config) { cfg.Index.CellSize = -1 }},
		{name: "unknown metric", mutate: func(cfg *Config) { cfg.Index.Metric = "manhattan" }},
		{name: "epsilon above one", mutate: func(cfg *Config) { cfg.Aggregate.NoiseEpsilon = 2 }},
		{name: "short secret", mutate: func(cfg *Config) { cfg.Auth.JWTSecret = "short" }},
		{name: "no addr", mutate: func(cfg *Config) { cfg.Server.Addr = "" }},
		{name: "bad log level", mutate: func(cfg *Config) { cfg.Log.Level = "trace" }},
		{name: "zero compact interval", mutate: func(cfg *Config) { cfg.Journal.CompactInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"key":"value"`)
}
