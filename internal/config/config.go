// Package config loads the server configuration from defaults, a YAML file,
// the environment and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Storage backends
const (
	StorageMemory = "memory"
	StorageSQL    = "sql"
	StorageRedis  = "redis"
)

// EnvPrefix marks the environment variables read into the configuration
const EnvPrefix = "THEFALL_"

// Config is the server configuration
type Config struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	LogLevel        string        `koanf:"log-level"`
	Storage         string        `koanf:"storage"`
	DatabaseDSN     string        `koanf:"database-dsn"`
	RedisURL        string        `koanf:"redis-url"`
	SMTPHost        string        `koanf:"smtp-host"`
	SMTPPort        int           `koanf:"smtp-port"`
	SMTPUsername    string        `koanf:"smtp-username"`
	SMTPPassword    string        `koanf:"smtp-password"`
	SMTPFrom        string        `koanf:"smtp-from"`
	AllowedOrigins  []string      `koanf:"allowed-origins"`
	ShutdownTimeout time.Duration `koanf:"shutdown-timeout"`
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		Port:            8080,
		LogLevel:        "info",
		Storage:         StorageSQL,
		DatabaseDSN:     "thefall.db",
		RedisURL:        "redis://localhost:6379/0",
		SMTPHost:        "smtp.gmail.com",
		SMTPPort:        587,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Sources names where Load reads from. Empty fields are skipped.
type Sources struct {
	File    string         // YAML file
	EnvFile string         // dotenv file; a missing file is not an error
	Environ []string       // KEY=VALUE pairs, normally os.Environ()
	Flags   *pflag.FlagSet // only flags that were set override other sources
}

// RegisterFlags adds one flag per setting to fs
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("host", d.Host, "Interface to listen on")
	fs.Int("port", d.Port, "Port to listen on")
	fs.String("log-level", d.LogLevel, "Log level: debug, info, warn, error")
	fs.String("storage", d.Storage, "Storage backend: memory, sql, redis")
	fs.String("database-dsn", d.DatabaseDSN, "SQLite path or postgres:// URL")
	fs.String("redis-url", d.RedisURL, "Redis URL")
	fs.String("smtp-host", d.SMTPHost, "SMTP relay host")
	fs.Int("smtp-port", d.SMTPPort, "SMTP relay port")
	fs.String("smtp-username", d.SMTPUsername, "SMTP login")
	fs.String("smtp-password", d.SMTPPassword, "SMTP password")
	fs.String("smtp-from", d.SMTPFrom, "Sender address, defaults to the SMTP login")
	fs.StringSlice("allowed-origins", d.AllowedOrigins, "Websocket origins to accept, empty accepts all")
	fs.Duration("shutdown-timeout", d.ShutdownTimeout, "Time allowed for connections to drain on shutdown")
}

// Load layers the sources over Default and validates the result
func Load(src Sources) (Config, error) {
	k := koanf.New(".")

	if src.File != "" {
		if err := k.Load(file.Provider(src.File), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", src.File, err)
		}
	}

	env, err := environment(src.EnvFile, src.Environ)
	if err != nil {
		return Config{}, err
	}
	for key, value := range env {
		var v any = value
		if key == "allowed-origins" {
			v = splitList(value)
		}
		if err := k.Set(key, v); err != nil {
			return Config{}, fmt.Errorf("set %s: %w", key, err)
		}
	}

	if src.Flags != nil {
		if err := k.Load(posflag.Provider(src.Flags, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// environment merges the dotenv file with the process environment into config keys.
// Process variables win over the file.
func environment(envFile string, environ []string) (map[string]string, error) {
	vars := map[string]string{}
	if envFile != "" {
		fromFile, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
		for k, v := range fromFile {
			vars[k] = v
		}
	}
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	out := map[string]string{}
	// Legacy credential names, overridden by their THEFALL_ equivalents
	if v := vars["EMAIL"]; v != "" {
		out["smtp-username"] = v
	}
	if v := vars["APP_PASSWORD"]; v != "" {
		out["smtp-password"] = v
	}
	for k, v := range vars {
		name, ok := strings.CutPrefix(k, EnvPrefix)
		if !ok || name == "" {
			continue
		}
		out[strings.ReplaceAll(strings.ToLower(name), "_", "-")] = v
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects settings the server cannot start with
func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Storage {
	case StorageMemory:
	case StorageSQL:
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("database-dsn is required for sql storage"))
		}
	case StorageRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("redis-url is required for redis storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q", c.Storage))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown-timeout must be positive"))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name to its slog level
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid log-level %q", name)
	}
	return level, nil
}
