package dto

import (
	"fmt"

	"github.com/jittakal/kafetl/pkg/record"
)

// ApplicationConfig is the root configuration structure
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Buffer        BufferConfig        `mapstructure:"buffer"`
	Schema        SchemaConfig        `mapstructure:"schema"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Storage       StorageConfig       `mapstructure:"storage"`
	FileRotation  FileRotationConfig  `mapstructure:"file_rotation"`
	Sink          SinkConfig          `mapstructure:"sink"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// BufferConfig sizes the spill buffer behind every graph edge.
type BufferConfig struct {
	DataRegionSize int    `mapstructure:"data_region_size"`
	MaxRecordSize  int    `mapstructure:"max_record_size"`
	SpillDirectory string `mapstructure:"spill_directory"`
}

// SchemaConfig describes the records read from Kafka.
type SchemaConfig struct {
	Name   string         `mapstructure:"name"`
	Fields []record.Field `mapstructure:"fields"`

	// NonEmptyFields must hold a non-empty value when present.
	NonEmptyFields []string `mapstructure:"non_empty_fields"`
}

// ToSchema returns the record schema described by c.
func (c *SchemaConfig) ToSchema() (*record.Schema, error) {
	s := &record.Schema{
		Name:   c.Name,
		Fields: append([]record.Field(nil), c.Fields...),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// KafkaConfig contains Kafka-related configuration
type KafkaConfig struct {
	BootstrapServers      []string       `mapstructure:"bootstrap_servers"`
	SecurityProtocol      string         `mapstructure:"security_protocol"`
	SASLMechanism         string         `mapstructure:"sasl_mechanism"`
	SASLUsername          string         `mapstructure:"sasl_username"`
	SASLPassword          string         `mapstructure:"sasl_password"`
	AWSRegion             string         `mapstructure:"aws_region"`
	TLSInsecureSkipVerify bool           `mapstructure:"tls_insecure_skip_verify"`
	Consumer              ConsumerConfig `mapstructure:"consumer"`
	Reject                RejectConfig   `mapstructure:"reject"`
}

// ConsumerConfig contains Kafka consumer configuration
type ConsumerConfig struct {
	GroupID             string   `mapstructure:"group_id"`
	Topics              []string `mapstructure:"topics"`
	AutoOffsetReset     string   `mapstructure:"auto_offset_reset"`
	MaxRecords          int64    `mapstructure:"max_records"`
	MaxPollIntervalMS   int      `mapstructure:"max_poll_interval_ms"`
	SessionTimeoutMS    int      `mapstructure:"session_timeout_ms"`
	HeartbeatIntervalMS int      `mapstructure:"heartbeat_interval_ms"`
}

// RejectConfig routes messages that fail decoding or validation to a topic.
type RejectConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Topic       string `mapstructure:"topic"`
	TopicSuffix string `mapstructure:"topic_suffix"`
	KeyField    string `mapstructure:"key_field"`
}

// TopicFor returns the reject topic. An explicit topic wins over
// source topic plus suffix.
func (c *RejectConfig) TopicFor(source string) string {
	if c.Topic != "" {
		return c.Topic
	}
	return source + c.TopicSuffix
}

// StorageConfig contains storage backend configuration
type StorageConfig struct {
	Backend     string      `mapstructure:"backend"`
	Format      string      `mapstructure:"format"`
	Compression string      `mapstructure:"compression"`
	S3          S3Config    `mapstructure:"s3"`
	Azure       AzureConfig `mapstructure:"azure"`
	GCS         GCSConfig   `mapstructure:"gcs"`
	File        FileConfig  `mapstructure:"file"`
}

// S3Config contains AWS S3 configuration
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	BasePath     string `mapstructure:"base_path"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	SSEEnabled   bool   `mapstructure:"sse_enabled"`
	SSEKMSKeyID  string `mapstructure:"sse_kms_key_id"`
}

// AzureConfig contains Azure Blob Storage configuration
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	Container   string `mapstructure:"container"`
	BasePath    string `mapstructure:"base_path"`
	Endpoint    string `mapstructure:"endpoint"`
}

// GCSConfig contains Google Cloud Storage configuration
type GCSConfig struct {
	Bucket               string `mapstructure:"bucket"`
	ProjectID            string `mapstructure:"project_id"`
	BasePath             string `mapstructure:"base_path"`
	Endpoint             string `mapstructure:"endpoint"`
	CredentialsFile      string `mapstructure:"credentials_file"`
	CredentialsJSON      string `mapstructure:"credentials_json"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential"`
}

// FileConfig contains local filesystem configuration
type FileConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// FileRotationConfig contains file rotation settings
type FileRotationConfig struct {
	MaxFileSizeMB     int64 `mapstructure:"max_file_size_mb"`
	MaxRecordsPerFile int   `mapstructure:"max_records_per_file"`

	// MaxDurationSeconds limits the age of a batch the sink has already read.
	// Records still in the upstream edge's unflushed write region reach the
	// sink only when that region fills or at end of stream, so a slow source
	// can hold up to buffer.data_region_size bytes beyond this limit.
	MaxDurationSeconds int    `mapstructure:"max_duration_seconds"`
	Strategy           string `mapstructure:"strategy"`
}

// SinkConfig contains retry and drain settings of the storage sink.
type SinkConfig struct {
	MaxRetries           int `mapstructure:"max_retries"`
	RetryBackoffMS       int `mapstructure:"retry_backoff_ms"`
	UploadTimeoutSeconds int `mapstructure:"upload_timeout_seconds"`
	DrainTimeoutSeconds  int `mapstructure:"drain_timeout_seconds"`
}

// ObservabilityConfig contains observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// HealthConfig contains health check settings
type HealthConfig struct {
	Port          int    `mapstructure:"port"`
	LivenessPath  string `mapstructure:"liveness_path"`
	ReadinessPath string `mapstructure:"readiness_path"`
}

// ShutdownConfig contains shutdown settings
type ShutdownConfig struct {
	GracePeriodSeconds int `mapstructure:"grace_period_seconds"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Application.Name == "" {
		return fmt.Errorf("application name is required")
	}
	if len(c.Kafka.BootstrapServers) == 0 {
		return fmt.Errorf("kafka bootstrap servers are required")
	}
	if c.Kafka.Consumer.GroupID == "" {
		return fmt.Errorf("kafka consumer group ID is required")
	}
	if c.Storage.Backend == "" {
		return fmt.Errorf("storage backend is required")
	}
	return nil
}

// Validate validates buffer sizing.
func (c *BufferConfig) Validate() error {
	if c.DataRegionSize < 0 {
		return fmt.Errorf("buffer data region size must not be negative: %d", c.DataRegionSize)
	}
	if c.MaxRecordSize < 0 {
		return fmt.Errorf("buffer max record size must not be negative: %d", c.MaxRecordSize)
	}
	return nil
}

// Validate validates S3 configuration.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 region is required")
	}
	return nil
}

// Validate validates Azure configuration.
func (c *AzureConfig) Validate() error {
	if c.AccountName == "" {
		return fmt.Errorf("azure account name is required")
	}
	if c.Container == "" {
		return fmt.Errorf("azure container is required")
	}
	return nil
}

// Validate validates GCS configuration.
func (c *GCSConfig) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("gcs bucket is required")
	}
	return nil
}

// Validate validates file configuration.
func (c *FileConfig) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("file base path is required")
	}
	return nil
}
