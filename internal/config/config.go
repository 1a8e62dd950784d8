package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// AMQP (ingest event bus)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Ingestion
	LayoutFile     string
	UploadMaxBytes int64

	// Google Sheets grid source (optional)
	GoogleSpreadsheetID string
	GoogleSheetRange    string

	// Export snapshots
	ExportDir           string
	SnapshotConcurrency int
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "5000"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/reservemap.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "reservemap"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ingest_events"),

		LayoutFile:     getEnv("LAYOUT_FILE", "./layout.json"),
		UploadMaxBytes: getEnvInt64("UPLOAD_MAX_BYTES", 20<<20),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetRange:    getEnv("GOOGLE_SHEET_RANGE", ""),

		ExportDir:           getEnv("EXPORT_DIR", "./data/exports"),
		SnapshotConcurrency: getEnvInt("SNAPSHOT_CONCURRENCY", 4),
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

	// AMQP is optional; when configured the names must be usable
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

	if c.UploadMaxBytes < 1<<10 {
		errors = append(errors, fmt.Sprintf("invalid upload limit %d: must be at least 1KiB", c.UploadMaxBytes))
	}

	// Google Sheets source needs both the spreadsheet and the range
	if c.GoogleSpreadsheetID != "" && c.GoogleSheetRange == "" {
		errors = append(errors, "GOOGLE_SHEET_RANGE is required when GOOGLE_SPREADSHEET_ID is set")
	}

	if c.SnapshotConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid snapshot concurrency %d: must be at least 1", c.SnapshotConcurrency))
	} else if c.SnapshotConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid snapshot concurrency %d: must be at most 64", c.SnapshotConcurrency))
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
