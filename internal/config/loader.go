package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/jittakal/kafetl/internal/config/dto"
	"github.com/jittakal/kafetl/internal/encoder"
	"github.com/jittakal/kafetl/pkg/record"
)

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Only values containing ${...} are expanded.
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "kafetl")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Buffer defaults
	l.v.SetDefault("buffer.data_region_size", 64*1024)
	l.v.SetDefault("buffer.max_record_size", 12*1024)
	l.v.SetDefault("buffer.spill_directory", "")

	// Kafka defaults
	l.v.SetDefault("kafka.security_protocol", "SASL_SSL")
	l.v.SetDefault("kafka.sasl_mechanism", "PLAIN")
	l.v.SetDefault("kafka.consumer.auto_offset_reset", "earliest")
	l.v.SetDefault("kafka.consumer.max_records", 0)
	l.v.SetDefault("kafka.consumer.max_poll_interval_ms", 300000)
	l.v.SetDefault("kafka.consumer.session_timeout_ms", 30000)
	l.v.SetDefault("kafka.consumer.heartbeat_interval_ms", 10000)
	l.v.SetDefault("kafka.reject.enabled", false)
	l.v.SetDefault("kafka.reject.topic_suffix", "-rejects")

	// Storage defaults
	l.v.SetDefault("storage.backend", "file")
	l.v.SetDefault("storage.format", "parquet")
	l.v.SetDefault("storage.s3.use_path_style", false)
	l.v.SetDefault("storage.s3.sse_enabled", true)

	// File rotation defaults
	l.v.SetDefault("file_rotation.max_file_size_mb", 128)
	l.v.SetDefault("file_rotation.max_records_per_file", 100000)
	l.v.SetDefault("file_rotation.max_duration_seconds", 300)
	l.v.SetDefault("file_rotation.strategy", "composite")

	// Sink defaults
	l.v.SetDefault("sink.max_retries", 3)
	l.v.SetDefault("sink.retry_backoff_ms", 1000)
	l.v.SetDefault("sink.upload_timeout_seconds", 300)
	l.v.SetDefault("sink.drain_timeout_seconds", 10)

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.metrics.path", "/metrics")
	l.v.SetDefault("observability.health.port", 8080)
	l.v.SetDefault("observability.health.liveness_path", "/health/live")
	l.v.SetDefault("observability.health.readiness_path", "/health/ready")

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 30)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	if err := config.Buffer.Validate(); err != nil {
		return err
	}

	// Schema validation
	if _, err := config.Schema.ToSchema(); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	for _, name := range config.Schema.NonEmptyFields {
		if !slices.ContainsFunc(config.Schema.Fields, func(f record.Field) bool { return f.Name == name }) {
			return fmt.Errorf("schema.non_empty_fields: unknown field %q", name)
		}
	}

	// Kafka validation
	if len(config.Kafka.BootstrapServers) == 0 {
		return errors.New("kafka.bootstrap_servers is required")
	}
	if len(config.Kafka.Consumer.Topics) == 0 {
		return errors.New("kafka.consumer.topics is required")
	}
	if config.Kafka.Consumer.GroupID == "" {
		return errors.New("kafka.consumer.group_id is required")
	}
	if config.Kafka.Consumer.MaxRecords < 0 {
		return fmt.Errorf("kafka.consumer.max_records must not be negative: %d", config.Kafka.Consumer.MaxRecords)
	}
	if config.Kafka.Reject.Enabled && config.Kafka.Reject.Topic == "" && config.Kafka.Reject.TopicSuffix == "" {
		return errors.New("kafka.reject.topic or kafka.reject.topic_suffix is required when rejects are enabled")
	}

	// Storage validation
	var err error
	switch config.Storage.Backend {
	case "s3":
		err = config.Storage.S3.Validate()
	case "azure":
		err = config.Storage.Azure.Validate()
	case "gcs":
		err = config.Storage.GCS.Validate()
	case "file":
		err = config.Storage.File.Validate()
	default:
		return fmt.Errorf("unsupported storage backend: %s", config.Storage.Backend)
	}
	if err != nil {
		return fmt.Errorf("storage.%s: %w", config.Storage.Backend, err)
	}

	// Format validation
	format := record.FileFormat(config.Storage.Format)
	if !slices.Contains(encoder.SupportedFormats(), format) {
		return fmt.Errorf("unsupported storage format: %s", config.Storage.Format)
	}
	if c := strings.ToLower(config.Storage.Compression); c != "" && !slices.Contains(encoder.SupportedCompressions(format), c) {
		return fmt.Errorf("unsupported %s compression: %s", format, config.Storage.Compression)
	}

	// File rotation validation
	switch config.FileRotation.Strategy {
	case "composite", "size", "count", "time":
	default:
		return fmt.Errorf("unsupported rotation strategy: %s", config.FileRotation.Strategy)
	}

	// Port validation
	if config.Observability.Metrics.Port < 1 || config.Observability.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", config.Observability.Metrics.Port)
	}
	if config.Observability.Health.Port < 1 || config.Observability.Health.Port > 65535 {
		return fmt.Errorf("invalid health port: %d", config.Observability.Health.Port)
	}

	return nil
}
