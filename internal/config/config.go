package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv      = "INCIDENT_SCANNER_CONFIG"
	dbDriverEnv        = "DB_DRIVER"
	dbHostEnv          = "DB_HOST"
	dbPortEnv          = "DB_PORT"
	dbUserEnv          = "DB_USER"
	dbPassEnv          = "DB_PASS"
	dbNameEnv          = "DB_NAME"
	dbSSLModeEnv       = "DB_SSLMODE"
	databaseDSNEnv     = "DATABASE_DSN"
	feedURLsEnv        = "RSS_FEED_URLS"
	completionKeyEnv   = "API_KEY"
	completionModelEnv = "COMPLETION_MODEL"
	completionURLEnv   = "COMPLETION_ENDPOINT"
	emailKeyEnv        = "EMAIL_API_KEY"
	emailURLEnv        = "EMAIL_ENDPOINT"
	senderEmailEnv     = "SENDER_EMAIL"
	operatorEmailEnv   = "OPERATOR_EMAIL"
	logLevelEnv        = "LOG_LEVEL"
	logFormatEnv       = "LOG_FORMAT"
	httpAddrEnv        = "HTTP_ADDR"
	scheduleCronEnv    = "SCHEDULE_CRON"

	// DriverPostgres and DriverSQLite are the supported database drivers.
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Feeds      []FeedConfig     `yaml:"feeds"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Completion CompletionConfig `yaml:"completion"`
	Email      EmailConfig      `yaml:"email"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Retry      RetryConfig      `yaml:"retry"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig describes the relational store. DSN wins over the discrete fields.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslMode"`
}

// ConnString resolves the driver-specific connection string.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver == DriverSQLite {
		return d.Name
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   d.Host,
		Path:   "/" + d.Name,
	}
	if d.User != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	if d.Port != "" {
		u.Host = d.Host + ":" + d.Port
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// FeedConfig describes a single feed. The JSON tags match the RSS_FEED_URLS format.
type FeedConfig struct {
	Source  string `yaml:"source" json:"source"`
	URL     string `yaml:"url" json:"url"`
	Scanner string `yaml:"scanner" json:"scanner"`
	Ordered bool   `yaml:"ordered" json:"ordered"`
}

// FetchConfig controls article page retrieval.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"userAgent"`
}

// CompletionConfig defines how to contact the chat completion API.
type CompletionConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"apiKey"`
	MaxTokens      int           `yaml:"maxTokens"`
	DedupMaxTokens int           `yaml:"dedupMaxTokens"`
	Timeout        time.Duration `yaml:"timeout"`
}

// EmailConfig wires the transactional email API.
type EmailConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	APIKey        string        `yaml:"apiKey"`
	Sender        string        `yaml:"sender"`
	Operator      string        `yaml:"operator"`
	LogoURL       string        `yaml:"logoUrl"`
	RatePerSecond float64       `yaml:"ratePerSecond"`
	Timeout       time.Duration `yaml:"timeout"`
}

// PipelineConfig holds ingestion windows and limits.
type PipelineConfig struct {
	DefaultLookbackHours int `yaml:"defaultLookbackHours"`
	DedupWindowDays      int `yaml:"dedupWindowDays"`
	MaxArticleChars      int `yaml:"maxArticleChars"`
}

// RetryConfig bounds retries of outbound API calls.
type RetryConfig struct {
	MaxRetries     int           `yaml:"maxRetries"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
}

// SchedulerConfig defines when serve mode triggers a run. Empty disables the schedule.
type SchedulerConfig struct {
	CronExpression string `yaml:"cronExpression"`
	LookbackHours  int    `yaml:"lookbackHours"`
}

// HTTPConfig configures the serve-mode listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig selects level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			// decode over the defaults so keys absent from the file keep them
			fileCfg := cfg
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Validate reports settings a pipeline run cannot do without.
func (c Config) Validate() error {
	var errs []error
	if len(c.Feeds) == 0 {
		errs = append(errs, fmt.Errorf("no feeds configured (%s)", feedURLsEnv))
	}
	for i, f := range c.Feeds {
		if strings.TrimSpace(f.URL) == "" {
			errs = append(errs, fmt.Errorf("feed %d has no url", i))
		}
	}
	if c.Completion.APIKey == "" {
		errs = append(errs, fmt.Errorf("completion api key is required (%s)", completionKeyEnv))
	}
	if c.Email.Sender == "" {
		errs = append(errs, fmt.Errorf("sender mailbox is required (%s)", senderEmailEnv))
	}
	if c.Email.Operator == "" {
		errs = append(errs, fmt.Errorf("operator mailbox is required (%s)", operatorEmailEnv))
	}
	if c.Database.Driver != DriverPostgres && c.Database.Driver != DriverSQLite {
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() {
	setString(&c.Database.Driver, dbDriverEnv)
	setString(&c.Database.Host, dbHostEnv)
	setString(&c.Database.Port, dbPortEnv)
	setString(&c.Database.User, dbUserEnv)
	setString(&c.Database.Password, dbPassEnv)
	setString(&c.Database.Name, dbNameEnv)
	setString(&c.Database.SSLMode, dbSSLModeEnv)
	setString(&c.Database.DSN, databaseDSNEnv)

	if v := os.Getenv(feedURLsEnv); v != "" {
		feeds, err := ParseFeeds(v)
		if err != nil {
			log.Printf("config: ignoring %s: %v", feedURLsEnv, err)
		} else {
			c.Feeds = feeds
		}
	}

	setString(&c.Completion.APIKey, completionKeyEnv)
	setString(&c.Completion.Model, completionModelEnv)
	setString(&c.Completion.Endpoint, completionURLEnv)

	setString(&c.Email.APIKey, emailKeyEnv)
	setString(&c.Email.Endpoint, emailURLEnv)
	setString(&c.Email.Sender, senderEmailEnv)
	setString(&c.Email.Operator, operatorEmailEnv)

	setString(&c.Logging.Level, logLevelEnv)
	setString(&c.Logging.Format, logFormatEnv)
	setString(&c.HTTP.Addr, httpAddrEnv)
	setString(&c.Scheduler.CronExpression, scheduleCronEnv)
}

// ParseFeeds decodes the JSON array format `[{"source": "...", "url": "..."}]`.
func ParseFeeds(raw string) ([]FeedConfig, error) {
	var feeds []FeedConfig
	if err := json.Unmarshal([]byte(raw), &feeds); err != nil {
		return nil, fmt.Errorf("decode feeds: %w", err)
	}
	for i := range feeds {
		if feeds[i].Scanner == "" {
			feeds[i].Scanner = "rss"
		}
	}
	return feeds, nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Database.Driver != "" {
		base.Database.Driver = override.Database.Driver
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}
	if override.Database.Host != "" {
		base.Database.Host = override.Database.Host
		base.Database.Port = override.Database.Port
		base.Database.User = override.Database.User
		base.Database.Password = override.Database.Password
	}
	if override.Database.Name != "" {
		base.Database.Name = override.Database.Name
	}
	if override.Database.SSLMode != "" {
		base.Database.SSLMode = override.Database.SSLMode
	}

	if len(override.Feeds) > 0 {
		base.Feeds = override.Feeds
		for i := range base.Feeds {
			if base.Feeds[i].Scanner == "" {
				base.Feeds[i].Scanner = "rss"
			}
		}
	}

	if override.Fetch.Timeout > 0 {
		base.Fetch.Timeout = override.Fetch.Timeout
	}
	if override.Fetch.UserAgent != "" {
		base.Fetch.UserAgent = override.Fetch.UserAgent
	}

	if override.Completion.Endpoint != "" {
		base.Completion.Endpoint = override.Completion.Endpoint
	}
	if override.Completion.Model != "" {
		base.Completion.Model = override.Completion.Model
	}
	if override.Completion.APIKey != "" {
		base.Completion.APIKey = override.Completion.APIKey
	}
	if override.Completion.MaxTokens > 0 {
		base.Completion.MaxTokens = override.Completion.MaxTokens
	}
	if override.Completion.DedupMaxTokens > 0 {
		base.Completion.DedupMaxTokens = override.Completion.DedupMaxTokens
	}
	if override.Completion.Timeout > 0 {
		base.Completion.Timeout = override.Completion.Timeout
	}

	if override.Email.Endpoint != "" {
		base.Email.Endpoint = override.Email.Endpoint
	}
	if override.Email.APIKey != "" {
		base.Email.APIKey = override.Email.APIKey
	}
	if override.Email.Sender != "" {
		base.Email.Sender = override.Email.Sender
	}
	if override.Email.Operator != "" {
		base.Email.Operator = override.Email.Operator
	}
	if override.Email.LogoURL != "" {
		base.Email.LogoURL = override.Email.LogoURL
	}
	if override.Email.RatePerSecond > 0 {
		base.Email.RatePerSecond = override.Email.RatePerSecond
	}
	if override.Email.Timeout > 0 {
		base.Email.Timeout = override.Email.Timeout
	}

	if override.Pipeline.DefaultLookbackHours > 0 {
		base.Pipeline.DefaultLookbackHours = override.Pipeline.DefaultLookbackHours
	}
	if override.Pipeline.DedupWindowDays > 0 {
		base.Pipeline.DedupWindowDays = override.Pipeline.DedupWindowDays
	}
	if override.Pipeline.MaxArticleChars > 0 {
		base.Pipeline.MaxArticleChars = override.Pipeline.MaxArticleChars
	}

	// zero is valid and disables retries
	if override.Retry.MaxRetries >= 0 {
		base.Retry.MaxRetries = override.Retry.MaxRetries
	}
	if override.Retry.InitialBackoff > 0 {
		base.Retry.InitialBackoff = override.Retry.InitialBackoff
	}
	if override.Retry.MaxBackoff > 0 {
		base.Retry.MaxBackoff = override.Retry.MaxBackoff
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.LookbackHours > 0 {
		base.Scheduler.LookbackHours = override.Scheduler.LookbackHours
	}

	if override.HTTP.Addr != "" {
		base.HTTP.Addr = override.HTTP.Addr
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:  DriverPostgres,
			Host:    "localhost",
			Port:    "5432",
			Name:    "incidents",
			SSLMode: "require",
		},
		Fetch: FetchConfig{Timeout: 10 * time.Second, UserAgent: defaultUserAgent},
		Completion: CompletionConfig{
			Endpoint:       "https://api.openai.com/v1/chat/completions",
			Model:          "gpt-4o-mini",
			MaxTokens:      500,
			DedupMaxTokens: 300,
			Timeout:        20 * time.Second,
		},
		Email: EmailConfig{
			Endpoint:      "https://api.resend.com/emails",
			RatePerSecond: 10,
			Timeout:       10 * time.Second,
		},
		Pipeline: PipelineConfig{
			DefaultLookbackHours: 3,
			DedupWindowDays:      60,
			MaxArticleChars:      12000,
		},
		Retry: RetryConfig{
			MaxRetries:     2,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
		Scheduler: SchedulerConfig{LookbackHours: 3},
		HTTP:      HTTPConfig{Addr: ":8080"},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}
