package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/mamadbah2/foodcost/internal/calc"
)

const (
	// BackendMongoDB stores data in MongoDB.
	BackendMongoDB = "mongodb"
	// BackendMemory keeps data in process memory.
	BackendMemory = "memory"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Storage   StorageConfig
	MongoDB   MongoDBConfig
	Calc      CalcConfig
	Sheets    SheetsConfig
	Reporting ReportingConfig
	Notify    NotifyConfig
	Metrics   MetricsConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// LoggingConfig holds the minimum log level.
type LoggingConfig struct {
	Level string
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// CalcConfig selects the calculation profile.
type CalcConfig struct {
	Profile calc.Profile
}

// SheetsConfig contains configuration required to publish days to Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	Range           string
}

// Enabled reports whether Sheets publishing is configured.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// ReportingConfig holds scheduler-related settings.
type ReportingConfig struct {
	CronSchedule string
	Timezone     string
}

// Location resolves Timezone, falling back to UTC.
func (c ReportingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NotifyConfig holds the daily digest webhook.
type NotifyConfig struct {
	WebhookURL string
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	metricsEnabled, err := getenvBool("METRICS_ENABLED", true)
	if err != nil {
		return nil, err
	}

	profile, err := calc.ParseProfile(os.Getenv("CALC_PROFILE"))
	if err != nil {
		return nil, fmt.Errorf("CALC_PROFILE: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Logging: LoggingConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(getenvWithDefault("DATA_BACKEND", BackendMongoDB)),
		},
		MongoDB: MongoDBConfig{
			URI:    getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "foodcost"),
		},
		Calc: CalcConfig{
			Profile: profile,
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
			Range:           getenvWithDefault("GOOGLE_SHEET_RANGE", "Worksheet!A:O"),
		},
		Reporting: ReportingConfig{
			CronSchedule: getenvWithDefault("REPORT_CRON_SCHEDULE", "0 23 * * *"),
			Timezone:     getenvWithDefault("TIMEZONE", "Asia/Amman"),
		},
		Notify: NotifyConfig{
			WebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
		},
		Metrics: MetricsConfig{
			Enabled: metricsEnabled,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendMongoDB:
		if c.MongoDB.URI == "" {
			return errors.New("MONGODB_URI must be provided")
		}
		if c.MongoDB.DBName == "" {
			return errors.New("MONGODB_DB_NAME must be provided")
		}
	default:
		return fmt.Errorf("DATA_BACKEND must be %q or %q, got %q", BackendMongoDB, BackendMemory, c.Storage.Backend)
	}

	if c.Calc.Profile != calc.ProfilePOS && c.Calc.Profile != calc.ProfileImplied {
		return fmt.Errorf("CALC_PROFILE %q is not supported", c.Calc.Profile)
	}

	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_DATABASE_ID must be provided together")
	}
	if c.Sheets.Enabled() && c.Sheets.Range == "" {
		return errors.New("GOOGLE_SHEET_RANGE must not be empty")
	}

	if c.Reporting.CronSchedule == "" {
		return errors.New("REPORT_CRON_SCHEDULE must be provided")
	}
	if _, err := cron.ParseStandard(c.Reporting.CronSchedule); err != nil {
		return fmt.Errorf("REPORT_CRON_SCHEDULE is invalid: %w", err)
	}

	if c.Reporting.Timezone == "" {
		return errors.New("TIMEZONE must be provided")
	}
	if _, err := time.LoadLocation(c.Reporting.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}

	if c.Notify.WebhookURL != "" {
		u, err := url.Parse(c.Notify.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("NOTIFY_WEBHOOK_URL %q must be an absolute http(s) URL", c.Notify.WebhookURL)
		}
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return parsed, nil
}
