package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultTemplateRelPath is the template location relative to the executable
const DefaultTemplateRelPath = "../templates/confluence_template.html"

// Config holds the runtime settings of the alert action. Page coordinates and
// credentials come from the alert payload, not from here.
//
//nolint:govet // Field alignment optimization would reduce readability
type Config struct {
	App           AppConfig
	Render        RenderConfig
	Confluence    ConfluenceConfig
	Logging       LoggingConfig
	Metrics       MetricsConfig
	Observability ObservabilityConfig
	Archive       ArchiveConfig
}

type AppConfig struct {
	Env string
}

type RenderConfig struct {
	TemplatePath string
	EscapeValues bool
}

type ConfluenceConfig struct {
	HTTPTimeoutSeconds int
	ConflictRetries    int
}

type LoggingConfig struct {
	Level string
	Dir   string
}

type MetricsConfig struct {
	PushgatewayURL string
	JobName        string
}

type ObservabilityConfig struct {
	ExporterEndpoint string
	ServiceName      string
	ServiceNamespace string
	ServiceVersion   string
}

type ArchiveConfig struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("APP_ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DIR", "")
	v.SetDefault("TEMPLATE_PATH", "")
	v.SetDefault("HTML_ESCAPE_VALUES", true)
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 30)
	v.SetDefault("CONFLICT_RETRIES", 0) // fail fast on a rejected version
	v.SetDefault("METRICS_PUSHGATEWAY_URL", "")
	v.SetDefault("METRICS_JOB_NAME", "confluence_alert_action")
	v.SetDefault("O11Y_EXPORTER_ENDPOINT", "")
	v.SetDefault("O11Y_SERVICE_NAME", "confluence-alert-action")
	v.SetDefault("O11Y_SERVICE_NAMESPACE", "splunk")
	v.SetDefault("O11Y_SERVICE_VERSION", "1.0.0")
	v.SetDefault("ARCHIVE_REGION", "us-east-1")

	// Automatically read environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	_ = v.ReadInConfig() //nolint:errcheck // Ignore error if .env file doesn't exist

	templatePath := v.GetString("TEMPLATE_PATH")
	if templatePath == "" {
		templatePath = DefaultTemplatePath()
	}

	cfg := &Config{
		App: AppConfig{
			Env: v.GetString("APP_ENV"),
		},
		Render: RenderConfig{
			TemplatePath: templatePath,
			EscapeValues: v.GetBool("HTML_ESCAPE_VALUES"),
		},
		Confluence: ConfluenceConfig{
			HTTPTimeoutSeconds: v.GetInt("HTTP_TIMEOUT_SECONDS"),
			ConflictRetries:    v.GetInt("CONFLICT_RETRIES"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
			Dir:   v.GetString("LOG_DIR"),
		},
		Metrics: MetricsConfig{
			PushgatewayURL: v.GetString("METRICS_PUSHGATEWAY_URL"),
			JobName:        v.GetString("METRICS_JOB_NAME"),
		},
		Observability: ObservabilityConfig{
			ExporterEndpoint: v.GetString("O11Y_EXPORTER_ENDPOINT"),
			ServiceName:      v.GetString("O11Y_SERVICE_NAME"),
			ServiceNamespace: v.GetString("O11Y_SERVICE_NAMESPACE"),
			ServiceVersion:   v.GetString("O11Y_SERVICE_VERSION"),
		},
		Archive: ArchiveConfig{
			Bucket:          v.GetString("ARCHIVE_BUCKET"),
			Endpoint:        v.GetString("ARCHIVE_ENDPOINT"),
			Region:          v.GetString("ARCHIVE_REGION"),
			AccessKeyID:     v.GetString("ARCHIVE_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("ARCHIVE_SECRET_ACCESS_KEY"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configured values are usable
func (c *Config) Validate() error {
	if c.Confluence.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be positive")
	}
	if c.Confluence.ConflictRetries < 0 {
		return fmt.Errorf("CONFLICT_RETRIES must not be negative")
	}
	if c.Render.TemplatePath == "" {
		return fmt.Errorf("TEMPLATE_PATH is required")
	}

	if c.Archive.Bucket != "" && (c.Archive.AccessKeyID == "" || c.Archive.SecretAccessKey == "") {
		return fmt.Errorf("ARCHIVE_ACCESS_KEY_ID and ARCHIVE_SECRET_ACCESS_KEY are required when ARCHIVE_BUCKET is set")
	}

	return nil
}

// HTTPTimeout returns the per-request timeout
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Confluence.HTTPTimeoutSeconds) * time.Second
}

// ArchiveEnabled returns true if rendered pages should be archived
func (c *Config) ArchiveEnabled() bool {
	return c.Archive.Bucket != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// DefaultTemplatePath resolves DefaultTemplateRelPath against the directory of
// the running executable, falling back to the working directory.
func DefaultTemplatePath() string {
	exe, err := os.Executable()
	if err != nil {
		return filepath.Clean(DefaultTemplateRelPath)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), DefaultTemplateRelPath)
}
