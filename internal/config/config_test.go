package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(Sources{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "thefall.yaml", `
port: 9000
storage: memory
shutdown-timeout: 5s
allowed-origins:
  - https://thefall.example
`)
	cfg, err := Load(Sources{File: path})
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"https://thefall.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(Sources{File: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "thefall.yaml", "port: 9000\nlog-level: warn\n")
	cfg, err := Load(Sources{
		File: path,
		Environ: []string{
			"THEFALL_PORT=9100",
			"THEFALL_DATABASE_DSN=postgres://db/thefall",
			"THEFALL_ALLOWED_ORIGINS=https://a.example, https://b.example",
			"UNRELATED=1",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "postgres://db/thefall", cfg.DatabaseDSN)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLegacyCredentialVariables(t *testing.T) {
	envFile := writeFile(t, ".env", "EMAIL=bot@example.com\nAPP_PASSWORD=from-file\n")

	cfg, err := Load(Sources{EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "bot@example.com", cfg.SMTPUsername)
	assert.Equal(t, "from-file", cfg.SMTPPassword)

	cfg, err = Load(Sources{EnvFile: envFile, Environ: []string{"THEFALL_SMTP_PASSWORD=from-env"}})
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.SMTPPassword)

	cfg, err = Load(Sources{EnvFile: envFile, Environ: []string{"APP_PASSWORD=process"}})
	require.NoError(t, err)
	assert.Equal(t, "process", cfg.SMTPPassword)
}

func TestMissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load(Sources{EnvFile: filepath.Join(t.TempDir(), ".env")})
	assert.NoError(t, err)
}

func TestFlagsOverrideEverything(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--port", "9200", "--storage", "redis"}))

	cfg, err := Load(Sources{
		Environ: []string{"THEFALL_PORT=9100", "THEFALL_LOG_LEVEL=debug"},
		Flags:   fs,
	})
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Port)
	assert.Equal(t, StorageRedis, cfg.Storage)
	// Unset flags do not mask the environment
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown storage", func(c *Config) { c.Storage = "mongo" }},
		{"port out of range", func(c *Config) { c.Port = 70000 }},
		{"sql without dsn", func(c *Config) { c.DatabaseDSN = "" }},
		{"redis without url", func(c *Config) { c.Storage = StorageRedis; c.RedisURL = "" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load(Sources{Environ: []string{"THEFALL_STORAGE=mongo"}})
	assert.ErrorContains(t, err, `unknown storage "mongo"`)
}
