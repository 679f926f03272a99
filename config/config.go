// Package config loads service configuration for the API server, the
// worker fleet and the local runner.
//
// Configuration is loaded in the following order (later sources override
// earlier ones):
//  1. Default values
//  2. Configuration file (./config.yaml, ./configs/config.yaml,
//     /etc/relay/config.yaml)
//  3. .env file
//  4. Environment variables with the RELAY_ prefix
//
// Environment variables use underscores for nested keys, for example
// RELAY_WORKER_CONCURRENCY=4 or RELAY_AWS_S3_BUCKET=relay-inventory. The
// worker knobs are additionally read under their bare names, for example
// WORKER_CONCURRENCY=4.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// AWSConfig contains shared AWS client settings. Endpoint is optional and
// points every client at a LocalStack or MinIO style endpoint.
type AWSConfig struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`

	// S3Bucket holds vendor feeds and run artifacts
	S3Bucket string `mapstructure:"s3_bucket"`

	// QueueURL is the SQS run job queue
	QueueURL string `mapstructure:"queue_url"`

	// RunsTable and TenantsTable are the DynamoDB table names
	RunsTable    string `mapstructure:"runs_table"`
	TenantsTable string `mapstructure:"tenants_table"`

	// MetricsNamespace is the CloudWatch namespace for run metrics
	MetricsNamespace string `mapstructure:"metrics_namespace"`
}

// WorkerConfig tunes the worker loop.
type WorkerConfig struct {
	// Concurrency is the number of jobs processed in parallel
	Concurrency int `mapstructure:"concurrency"`

	// VisibilityTimeoutSeconds is the invisibility window claimed for an
	// in-flight job
	VisibilityTimeoutSeconds int `mapstructure:"visibility_timeout_seconds"`

	// VisibilityHeartbeatSeconds is the interval between visibility
	// extensions while a job runs
	VisibilityHeartbeatSeconds int `mapstructure:"visibility_heartbeat_seconds"`

	// TenantBackoffSeconds delays redelivery of a job whose tenant
	// already has a run in flight
	TenantBackoffSeconds int `mapstructure:"tenant_backoff_seconds"`

	// PoisonMaxReceives is the delivery count at which a job is declared
	// poison and its run failed
	PoisonMaxReceives int `mapstructure:"poison_max_receives"`
}

// ServerConfig contains the control API server settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// APIKeys are the accepted X-API-Key values
	APIKeys []string `mapstructure:"api_keys"`

	// PresignExpirySeconds bounds artifact download URLs
	PresignExpirySeconds int `mapstructure:"presign_expiry_seconds"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the root configuration shared by every command.
type Config struct {
	AWS     AWSConfig     `mapstructure:"aws"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Loader provides configuration loading functionality.
type Loader struct {
	v      *viper.Viper
	prefix string
}

// NewLoader creates a loader with the given environment prefix.
func NewLoader(envPrefix string) *Loader {
	return &Loader{
		v:      viper.New(),
		prefix: envPrefix,
	}
}

// SetConfigDefaults sets the service defaults.
func (l *Loader) SetConfigDefaults() {
	l.v.SetDefault("aws.region", "us-east-1")
	l.v.SetDefault("aws.endpoint", "")
	l.v.SetDefault("aws.s3_bucket", "relay-inventory")
	l.v.SetDefault("aws.runs_table", "relay-inventory-runs")
	l.v.SetDefault("aws.tenants_table", "relay-inventory-tenants")
	l.v.SetDefault("aws.metrics_namespace", "RelayInventory")

	l.v.SetDefault("worker.concurrency", 1)
	l.v.SetDefault("worker.visibility_timeout_seconds", 300)
	l.v.SetDefault("worker.visibility_heartbeat_seconds", 60)
	l.v.SetDefault("worker.tenant_backoff_seconds", 30)
	l.v.SetDefault("worker.poison_max_receives", 5)

	l.v.SetDefault("server.host", "0.0.0.0")
	l.v.SetDefault("server.port", 8080)
	l.v.SetDefault("server.presign_expiry_seconds", 900)

	l.v.SetDefault("logging.level", "info")
	l.v.SetDefault("logging.format", "json")
}

// Load reads configuration from file, .env, and environment variables.
func (l *Loader) Load(cfgFile string, target interface{}) error {
	if cfgFile != "" {
		l.v.SetConfigFile(cfgFile)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		l.v.AddConfigPath("./configs")
		l.v.AddConfigPath("/etc/relay")
	}

	if err := l.v.ReadInConfig(); err != nil {
		if cfgFile != "" && !isFileNotFoundError(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		if cfgFile == "" {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	l.v.SetConfigFile(".env")
	l.v.SetConfigType("env")
	_ = l.v.MergeInConfig() // Ignore if .env doesn't exist

	if l.prefix != "" {
		l.v.SetEnvPrefix(l.prefix)
	}
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	// The worker knobs are also honored under their bare variable names,
	// e.g. WORKER_CONCURRENCY alongside RELAY_WORKER_CONCURRENCY. The
	// prefixed form wins when both are set.
	for _, key := range []string{
		"worker.concurrency",
		"worker.visibility_timeout_seconds",
		"worker.visibility_heartbeat_seconds",
		"worker.tenant_backoff_seconds",
		"worker.poison_max_receives",
	} {
		bare := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		names := []string{bare}
		if l.prefix != "" {
			names = []string{l.prefix + "_" + bare, bare}
		}
		_ = l.v.BindEnv(append([]string{key}, names...)...)
	}

	if err := l.v.Unmarshal(target); err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}
	return nil
}

// LoadConfig loads and validates the service configuration. cfgFile may be
// empty to use the standard search paths.
func LoadConfig(cfgFile string) (*Config, error) {
	loader := NewLoader("RELAY")
	loader.SetConfigDefaults()

	cfg := &Config{}
	if err := loader.Load(cfgFile, cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ValidateConfig checks the loaded configuration.
func ValidateConfig(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Worker.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be >= 1")
	}
	if cfg.Worker.PoisonMaxReceives < 1 {
		return fmt.Errorf("worker poison_max_receives must be >= 1")
	}
	if cfg.Worker.VisibilityTimeoutSeconds <= cfg.Worker.VisibilityHeartbeatSeconds {
		return fmt.Errorf("visibility timeout must exceed the heartbeat interval")
	}
	return nil
}

// isFileNotFoundError checks if an error is a file not found error.
func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return false
}
