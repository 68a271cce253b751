package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// Auth
	JWTSecret string

	// AMQP event feed
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Ledger backend: "google", "memory", or "" (disabled)
	LedgerBackend string

	// Attachment store backend: "drive", "memory", or "" (uploads disabled)
	DocstoreBackend string

	// Ledger retry policy
	LedgerMaxAttempts int
	LedgerCreateDelay time.Duration
	LedgerUpdateDelay time.Duration

	// Dashboard cache
	DashboardCacheTTL time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/cantiere.db"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "cantiere"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "expense_events"),

		LedgerBackend: getEnv("LEDGER_BACKEND", ""),

		DocstoreBackend: getEnv("DOCSTORE_BACKEND", ""),

		LedgerMaxAttempts: getEnvInt("LEDGER_MAX_ATTEMPTS", 3),
		LedgerCreateDelay: getEnvDuration("LEDGER_CREATE_DELAY", 1500*time.Millisecond),
		LedgerUpdateDelay: getEnvDuration("LEDGER_UPDATE_DELAY", time.Second),

		DashboardCacheTTL: getEnvDuration("DASHBOARD_CACHE_TTL", 30*time.Second),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.JWTSecret == "" {
		errors = append(errors, "JWT_SECRET must be set")
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	switch c.LedgerBackend {
	case "", "google", "memory":
	default:
		errors = append(errors, fmt.Sprintf("invalid ledger backend '%s': must be 'google', 'memory', or empty", c.LedgerBackend))
	}

	switch c.DocstoreBackend {
	case "", "drive", "memory":
	default:
		errors = append(errors, fmt.Sprintf("invalid docstore backend '%s': must be 'drive', 'memory', or empty", c.DocstoreBackend))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.LedgerMaxAttempts < 1 {
		errors = append(errors, fmt.Sprintf("invalid ledger max attempts %d: must be at least 1", c.LedgerMaxAttempts))
	} else if c.LedgerMaxAttempts > 10 {
		errors = append(errors, fmt.Sprintf("invalid ledger max attempts %d: must be at most 10", c.LedgerMaxAttempts))
	}

	if c.LedgerCreateDelay < 0 || c.LedgerUpdateDelay < 0 {
		errors = append(errors, "ledger retry delays cannot be negative")
	}

	if c.DashboardCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid dashboard cache TTL %v: cannot be negative", c.DashboardCacheTTL))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
