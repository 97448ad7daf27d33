package cli

import (
	"os"
	"time"
)

// Config holds CLI configuration
type Config struct {
	ServerURL string
	Username  string
	Password  string
	Output    string
	Timeout   time.Duration
	Verbose   bool
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL: getEnvOrDefault("THEFALL_SERVER", "ws://localhost:8080/ws"),
		Username:  os.Getenv("THEFALL_USERNAME"),
		Password:  os.Getenv("THEFALL_PASSWORD"),
		Output:    "text",
		Timeout:   10 * time.Second,
		Verbose:   false,
	}
}

// HasCredentials reports whether a login should be attempted
func (c *Config) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
