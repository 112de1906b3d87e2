// Package config assembles the run configuration from defaults, an optional
// YAML file, an optional .env file and the process environment, in that
// order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-clinaudit/internal/distribute"
	"github.com/ahrav/go-clinaudit/internal/ledger"
	"github.com/ahrav/go-clinaudit/internal/llm/configuration"
	"github.com/ahrav/go-clinaudit/internal/source"
	"github.com/ahrav/go-clinaudit/internal/worker"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete configuration of a run.
type Config struct {
	Source   source.Config            `yaml:"source"`
	Scoring  configuration.Config     `yaml:"scoring"`
	Output   OutputConfig             `yaml:"output"`
	Logging  LoggingConfig            `yaml:"logging"`
	Storage  distribute.StorageConfig `yaml:"storage"`
	Email    distribute.EmailConfig   `yaml:"email"`
	Lock     LockConfig               `yaml:"lock"`
	Metrics  MetricsConfig            `yaml:"metrics"`
	Temporal worker.Config            `yaml:"temporal"`
}

// OutputConfig places the result files and the ledger. The ledger path is
// fixed across runs so a restarted run resumes.
type OutputConfig struct {
	Dir        string `yaml:"dir"`
	LedgerPath string `yaml:"ledger_path"`
}

// LoggingConfig selects level, encoding and the daily log file directory.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

// LockConfig enables the cross-process run lock when RedisURL is set.
type LockConfig struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// MetricsConfig enables the Pushgateway push when PushgatewayURL is set.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Source:  source.DefaultConfig(),
		Scoring: *configuration.DefaultConfig(),
		Output: OutputConfig{
			Dir:        "output",
			LedgerPath: ledger.DefaultPath,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Dir:    "logs",
		},
		Storage: distribute.StorageConfig{
			Endpoint: "localhost:9000",
			Bucket:   "auditoria-urgencias",
		},
		Email: distribute.EmailConfig{
			Server:  "smtp.gmail.com",
			Port:    465,
			UseSSL:  true,
			Timeout: 30 * time.Second,
		},
		Metrics:  MetricsConfig{Job: "clinaudit"},
		Temporal: worker.DefaultConfig(),
	}
}

// Load builds the configuration. path and envFile may be empty; a named file
// that does not exist is an error, while a missing default .env is not.
func Load(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFile merges a .env file into the process environment without
// overriding variables that are already set.
func loadEnvFile(envFile string) error {
	if envFile == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("load env file %s: %w", envFile, err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv overlays environment variables. Secrets only ever come from here.
func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("MYSQL_HOST", &c.Source.Host)
	e.int("MYSQL_PORT", &c.Source.Port)
	e.str("MYSQL_USER", &c.Source.User)
	e.str("MYSQL_PASSWORD", &c.Source.Password)
	e.str("MYSQL_DATABASE", &c.Source.Database)
	e.str("CLINAUDIT_SOURCE_DRIVER", &c.Source.Driver)
	e.str("CLINAUDIT_SOURCE_DSN", &c.Source.DSN)
	e.str("CLINAUDIT_QUERY_DIR", &c.Source.QueryDir)

	primary, hasPrimary := lookup("DEFAULT_MODEL")
	fallback, hasFallback := lookup("FALLBACK_MODEL")
	if hasPrimary || hasFallback {
		models := modelsOrDefault(c.Scoring.Models)
		if hasPrimary && primary != "" {
			models[0] = primary
		}
		if hasFallback && fallback != "" {
			if len(models) > 1 {
				models[1] = fallback
			} else {
				models = append(models, fallback)
			}
		}
		c.Scoring.Models = models
	}
	if c.Scoring.Providers == nil {
		c.Scoring.Providers = make(map[string]configuration.ProviderConfig)
	}
	e.providerKey("OPENROUTER_API_KEY", c.Scoring.Providers, configuration.ProviderOpenRouter)
	e.providerKey("GEMINI_API_KEY", c.Scoring.Providers, configuration.ProviderGemini)

	e.str("CLINAUDIT_OUTPUT_DIR", &c.Output.Dir)
	e.str("CLINAUDIT_LEDGER_PATH", &c.Output.LedgerPath)
	e.str("CLINAUDIT_LOG_LEVEL", &c.Logging.Level)
	e.str("CLINAUDIT_LOG_DIR", &c.Logging.Dir)

	e.str("MINIO_ENDPOINT", &c.Storage.Endpoint)
	e.str("MINIO_ACCESS_KEY", &c.Storage.AccessKey)
	e.str("MINIO_SECRET_KEY", &c.Storage.SecretKey)
	e.str("MINIO_BUCKET_NAME", &c.Storage.Bucket)
	e.bool("MINIO_USE_SSL", &c.Storage.UseSSL)

	e.str("SMTP_SERVER", &c.Email.Server)
	e.int("SMTP_PORT", &c.Email.Port)
	e.str("SMTP_USER", &c.Email.User)
	e.str("SMTP_PASSWORD", &c.Email.Password)
	e.str("SMTP_FROM_EMAIL", &c.Email.FromEmail)
	e.str("SMTP_FROM_NAME", &c.Email.FromName)
	if v, ok := lookup("EMAIL_DESTINATARIOS"); ok {
		c.Email.Recipients = distribute.ParseRecipients(v)
	}

	e.str("CLINAUDIT_REDIS_URL", &c.Lock.RedisURL)
	e.str("CLINAUDIT_PUSHGATEWAY_URL", &c.Metrics.PushgatewayURL)
	e.str("CLINAUDIT_TEMPORAL_HOSTPORT", &c.Temporal.HostPort)
	e.str("CLINAUDIT_TEMPORAL_NAMESPACE", &c.Temporal.Namespace)
	e.str("CLINAUDIT_CRON_SCHEDULE", &c.Temporal.CronSchedule)

	return e.err
}

func modelsOrDefault(models []string) []string {
	out := append([]string(nil), models...)
	if len(out) == 0 {
		out = append(out, configuration.DefaultPrimaryModel)
	}
	return out
}

// envReader records the first malformed value it sees.
type envReader struct {
	lookup lookupFunc
	err    error
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v)
		return
	}
	*dst = n
}

func (e *envReader) bool(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		e.fail(key, v)
		return
	}
	*dst = b
}

func (e *envReader) providerKey(key string, providers map[string]configuration.ProviderConfig, name string) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return
	}
	p := providers[name]
	p.APIKey = v
	if name == configuration.ProviderOpenRouter && p.Endpoint == "" {
		p.Endpoint = configuration.DefaultOpenRouterEndpoint
	}
	providers[name] = p
}

func (e *envReader) fail(key, v string) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
	}
}

// Validate checks every section. Optional integrations (storage, email, lock,
// metrics) are validated only for the fields they cannot run without.
func (c *Config) Validate() error {
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("%w: source: %w", ErrInvalidConfig, err)
	}
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("%w: scoring: %w", ErrInvalidConfig, err)
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("%w: output.dir is required", ErrInvalidConfig)
	}
	if c.Output.LedgerPath == "" {
		return fmt.Errorf("%w: output.ledger_path is required", ErrInvalidConfig)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return fmt.Errorf("%w: logging.level: %w", ErrInvalidConfig, err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: logging.format must be text or json, got %q", ErrInvalidConfig, c.Logging.Format)
	}
	if c.Storage.Enabled() && (c.Storage.Endpoint == "" || c.Storage.Bucket == "") {
		return fmt.Errorf("%w: storage.endpoint and storage.bucket are required", ErrInvalidConfig)
	}
	if c.Email.Enabled() && (c.Email.Server == "" || c.Email.Port <= 0) {
		return fmt.Errorf("%w: email.server and email.port are required", ErrInvalidConfig)
	}
	if c.Lock.TTL < 0 {
		return fmt.Errorf("%w: lock.ttl must be >= 0", ErrInvalidConfig)
	}
	if c.Metrics.PushgatewayURL != "" && c.Metrics.Job == "" {
		return fmt.Errorf("%w: metrics.job is required with pushgateway_url", ErrInvalidConfig)
	}
	return nil
}
