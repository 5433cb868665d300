package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // operator zones resolve without system zoneinfo

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// EnvPrefix is the prefix of every environment variable override
const EnvPrefix = "EBBWATCH_"

// Config represents the application configuration
type Config struct {
	Feed      FeedConfig      `toml:"feed"`
	Operator  OperatorConfig  `toml:"operator"`
	Detector  DetectorConfig  `toml:"detector"`
	Notifier  NotifierConfig  `toml:"notifier"`
	Retry     RetryConfig     `toml:"retry"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Logging   LoggingConfig   `toml:"logging"`
}

// FeedConfig describes the EBB page to poll
type FeedConfig struct {
	URL         string `toml:"url" validate:"required,url"`
	UserAgent   string `toml:"user_agent"`
	Timeout     string `toml:"timeout" validate:"duration"` // e.g. "30s"
	MaxBodySize int64  `toml:"max_body_size" validate:"gte=0"`
}

// OperatorConfig identifies the pipeline operator (TSP) behind the feed
type OperatorConfig struct {
	Name          string `toml:"name" validate:"required"`
	NoticeBaseURL string `toml:"notice_base_url" validate:"required"`
	TimeZone      string `toml:"time_zone" validate:"required,timezone"` // zone the EBB prints local times in
}

// DetectorConfig holds the trading-signal rules
type DetectorConfig struct {
	Keywords       []string `toml:"keywords" validate:"dive,required"`
	RegionKeywords []string `toml:"region_keywords" validate:"dive,required"`
	MaxAge         string   `toml:"max_age" validate:"duration"` // e.g. "72h"
	VolumeUnits    []string `toml:"volume_units" validate:"dive,required"`
}

// NotifierConfig configures Slack webhook delivery
type NotifierConfig struct {
	WebhookURL string  `toml:"webhook_url" validate:"required,url"`
	Username   string  `toml:"username"`
	IconEmoji  string  `toml:"icon_emoji"`
	Channel    string  `toml:"channel"`
	RateLimit  float64 `toml:"rate_limit" validate:"gte=0"` // messages per second, 0 = unlimited
	Burst      int     `toml:"burst" validate:"gte=1"`
	Timeout    string  `toml:"timeout" validate:"duration"`
}

// RetryConfig is shared by the feed fetch and webhook delivery
type RetryConfig struct {
	MaxAttempts       int     `toml:"max_attempts" validate:"gte=1"`
	InitialBackoff    string  `toml:"initial_backoff" validate:"duration"`
	MaxBackoff        string  `toml:"max_backoff" validate:"duration"`
	BackoffMultiplier float64 `toml:"backoff_multiplier" validate:"gte=1"`
	Jitter            float64 `toml:"jitter" validate:"gte=0,lte=1"`
}

// SchedulerConfig controls the poll cadence
type SchedulerConfig struct {
	Schedule   string `toml:"schedule" validate:"required,cronschedule"` // cron expression or descriptor, e.g. "@every 15m"
	RunOnStart bool   `toml:"run_on_start"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	ListenAddr string `toml:"listen_addr" validate:"omitempty,hostname_port"` // e.g. ":9464", empty disables
}

// LoggingConfig selects the log level and where log output goes
type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output []string `toml:"output" validate:"dive,oneof=stdout console file"`
	Dir    string   `toml:"dir"` // log file directory, default: <exe dir>/logs
}

// NewDefaultConfig creates a configuration with default values.
// The feed URL and webhook URL have no defaults and must be configured.
func NewDefaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			Timeout:     "30s",
			MaxBodySize: 10 * 1024 * 1024,
		},
		Operator: OperatorConfig{
			Name:          "ANR",
			NoticeBaseURL: "https://ebb.anrpl.com/Notices/NoticeView.asp?sPipelineCode=ANR&sSubCategory=Critical&sNoticeId=",
			TimeZone:      "America/Chicago",
		},
		Detector: DetectorConfig{
			Keywords: []string{"force majeure", "outage", "curtailment"},
			RegionKeywords: []string{
				"louisiana", "henry hub", "sabine", "cameron", "columbia gulf",
				"transco", "texas eastern", "gulf south", "enable", "gulfstream",
			},
			MaxAge:      "72h",
			VolumeUnits: []string{"mmbtu", "dth", "mmcf/d"},
		},
		Notifier: NotifierConfig{
			Username:  "ebbwatch",
			RateLimit: 1,
			Burst:     1,
			Timeout:   "10s",
		},
		Retry: RetryConfig{
			MaxAttempts:       4,
			InitialBackoff:    "2s",
			MaxBackoff:        "30s",
			BackoffMultiplier: 2.0,
			Jitter:            0.25,
		},
		Scheduler: SchedulerConfig{
			Schedule:   "@every 15m",
			RunOnStart: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Feed
	if v := getEnv("FEED_URL"); v != "" {
		config.Feed.URL = v
	}
	if v := getEnv("FEED_USER_AGENT"); v != "" {
		config.Feed.UserAgent = v
	}
	if v := getEnv("FEED_TIMEOUT"); v != "" {
		config.Feed.Timeout = v
	}

	// Operator
	if v := getEnv("OPERATOR_NAME"); v != "" {
		config.Operator.Name = v
	}
	if v := getEnv("OPERATOR_NOTICE_BASE_URL"); v != "" {
		config.Operator.NoticeBaseURL = v
	}
	if v := getEnv("OPERATOR_TIME_ZONE"); v != "" {
		config.Operator.TimeZone = v
	}

	// Detector
	if v := getEnv("DETECTOR_KEYWORDS"); v != "" {
		config.Detector.Keywords = splitList(v)
	}
	if v := getEnv("DETECTOR_REGION_KEYWORDS"); v != "" {
		config.Detector.RegionKeywords = splitList(v)
	}
	if v := getEnv("DETECTOR_MAX_AGE"); v != "" {
		config.Detector.MaxAge = v
	}

	// Notifier
	if v := getEnv("SLACK_WEBHOOK_URL"); v != "" {
		config.Notifier.WebhookURL = v
	}
	if v := getEnv("SLACK_CHANNEL"); v != "" {
		config.Notifier.Channel = v
	}

	// Retry
	if v := getEnv("RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Retry.MaxAttempts = n
		}
	}

	// Scheduler
	if v := getEnv("SCHEDULE"); v != "" {
		config.Scheduler.Schedule = v
	}
	if v := getEnv("RUN_ON_START"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Scheduler.RunOnStart = b
		}
	}

	// Metrics
	if v := getEnv("METRICS_LISTEN_ADDR"); v != "" {
		config.Metrics.ListenAddr = v
	}

	// Logging
	if v := getEnv("LOG_LEVEL"); v != "" {
		config.Logging.Level = strings.ToLower(v)
	}
	if v := getEnv("LOG_OUTPUT"); v != "" {
		config.Logging.Output = splitList(v)
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
// Command-line flags have highest priority.
func ApplyFlagOverrides(config *Config, feedURL, webhookURL, logLevel string) {
	if feedURL != "" {
		config.Feed.URL = feedURL
	}
	if webhookURL != "" {
		config.Notifier.WebhookURL = webhookURL
	}
	if logLevel != "" {
		config.Logging.Level = strings.ToLower(logLevel)
	}
}

// Validate checks the configuration is complete and well formed
func (c *Config) Validate() error {
	validate := validator.New()

	if err := validate.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validation: %w", err)
	}
	if err := validate.RegisterValidation("cronschedule", validateCron); err != nil {
		return fmt.Errorf("failed to register cronschedule validation: %w", err)
	}

	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fields := make([]string, 0, len(validationErrors))
			for _, fe := range validationErrors {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Retry.MaxBackoff != "" && c.Retry.InitialBackoff != "" &&
		ParseDuration(c.Retry.MaxBackoff, 0) < ParseDuration(c.Retry.InitialBackoff, 0) {
		return fmt.Errorf("invalid configuration: retry.max_backoff is shorter than retry.initial_backoff")
	}

	return nil
}

// Location loads the operator time zone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Operator.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseDuration parses s, returning fallback when s is empty or invalid
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// ValidateJobSchedule checks a cron expression or descriptor such as "@every 15m"
func ValidateJobSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

func validateDuration(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	d, err := time.ParseDuration(s)
	return err == nil && d > 0
}

func validateCron(fl validator.FieldLevel) bool {
	return ValidateJobSchedule(fl.Field().String()) == nil
}

func getEnv(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

// splitList splits a comma-separated value, dropping empty items
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
