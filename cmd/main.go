package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/kafetl/internal/buffer"
	"github.com/jittakal/kafetl/internal/config"
	"github.com/jittakal/kafetl/internal/config/dto"
	"github.com/jittakal/kafetl/internal/encoder"
	"github.com/jittakal/kafetl/internal/graph"
	"github.com/jittakal/kafetl/internal/kafka"
	"github.com/jittakal/kafetl/internal/observability"
	"github.com/jittakal/kafetl/internal/server"
	"github.com/jittakal/kafetl/internal/storage"
	"github.com/jittakal/kafetl/internal/validator"
	pkgbuffer "github.com/jittakal/kafetl/pkg/buffer"
	"github.com/jittakal/kafetl/pkg/record"
	pkgstorage "github.com/jittakal/kafetl/pkg/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	// Priority: CLI flag > CONFIG_PATH env var > default path
	var cfgPath string
	if *configPath != "" {
		cfgPath = *configPath
	} else if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		cfgPath = envPath
	} else {
		cfgPath = "config/application.yaml"
	}

	cfg, err := config.NewLoader().Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cfg.Observability.Logging.Output,
	})
	logger.Info("starting kafetl",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
	)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	health := server.NewPipelineHealth()
	httpServer := server.NewServer(server.Config{
		HealthPort:     cfg.Observability.Health.Port,
		LivenessPath:   cfg.Observability.Health.LivenessPath,
		ReadinessPath:  cfg.Observability.Health.ReadinessPath,
		MetricsPort:    cfg.Observability.Metrics.Port,
		MetricsPath:    cfg.Observability.Metrics.Path,
		MetricsEnabled: cfg.Observability.Metrics.Enabled,
	}, health, registry, logger)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(ctx)
	}()

	g, closers, err := buildGraph(cfg, logger, metrics)
	defer func() {
		for _, c := range closers {
			if err := c.fn(); err != nil {
				logger.Warn("cleanup failed", "component", c.name, "error", err)
			}
		}
	}()
	if err != nil {
		return err
	}

	for _, name := range []string{"events", "rejects"} {
		e, err := g.Edge(name)
		if err != nil {
			continue
		}
		health.AddCheck("edge:"+name, func() string {
			s := e.Stats()
			return fmt.Sprintf("buffered=%d spills=%d spill_file=%t", s.BufferedRecords, s.Spills, s.HasFile)
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go watchSignals(cancel, done, health, time.Duration(cfg.Shutdown.GracePeriodSeconds)*time.Second, logger)

	health.SetState(server.StateRunning, nil)
	logger.Info("application started successfully", "run_id", g.RunID())

	if err := g.Run(ctx); err != nil {
		health.SetState(server.StateFailed, err)
		if rerr := buffer.RemoveOrphans(); rerr != nil {
			logger.Warn("failed to remove spill files", "error", rerr)
		}
		return fmt.Errorf("graph failed: %w", err)
	}

	health.SetState(server.StateFinished, nil)
	logger.Info("application stopped successfully")
	return nil
}

// watchSignals cancels the graph on the first SIGINT/SIGTERM. A second
// signal, or a graph that outlives the grace period, removes every spill
// file and exits.
func watchSignals(cancel context.CancelFunc, done <-chan struct{}, health *server.PipelineHealth, grace time.Duration, logger *slog.Logger) {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-done:
		return
	case sig := <-sigChan:
		logger.Info("received termination signal, draining graph", "signal", sig.String(), "grace_period", grace)
		health.SetState(server.StateStopping, nil)
		cancel()
	}

	var timeout <-chan time.Time
	if grace > 0 {
		timeout = time.After(grace)
	}

	select {
	case <-done:
		return
	case <-sigChan:
		logger.Warn("second termination signal, forcing exit")
	case <-timeout:
		logger.Warn("grace period expired, forcing exit")
	}

	if err := buffer.RemoveOrphans(); err != nil {
		logger.Error("failed to remove spill files", "error", err)
	}
	os.Exit(1)
}

type closer struct {
	name string
	fn   func() error
}

// buildGraph assembles kafka reader -> events -> storage sink, plus
// rejects -> kafka writer when rejects are enabled. The returned closers
// must run after the graph finishes, even when err is not nil.
func buildGraph(cfg *dto.ApplicationConfig, logger *slog.Logger, metrics *observability.Metrics) (*graph.Graph, []closer, error) {
	var closers []closer

	schema, err := cfg.Schema.ToSchema()
	if err != nil {
		return nil, closers, fmt.Errorf("invalid schema: %w", err)
	}
	recordValidator, err := validator.NewRecordValidator(schema, cfg.Schema.NonEmptyFields...)
	if err != nil {
		return nil, closers, fmt.Errorf("failed to create validator: %w", err)
	}

	g := graph.New(cfg.Application.Name, logger)

	bufferConfig := buffer.Config{
		DataRegionSize: cfg.Buffer.DataRegionSize,
		MaxRecordSize:  cfg.Buffer.MaxRecordSize,
		SpillDirectory: cfg.Buffer.SpillDirectory,
	}

	events, err := graph.NewEdge("events", schema, bufferConfig, logger, metrics)
	if err != nil {
		return nil, closers, err
	}
	if err := g.AddEdge(events); err != nil {
		return nil, closers, err
	}

	clientConfig := kafka.ClientConfig{
		BootstrapServers:      cfg.Kafka.BootstrapServers,
		SecurityProtocol:      cfg.Kafka.SecurityProtocol,
		SASLMechanism:         cfg.Kafka.SASLMechanism,
		SASLUsername:          cfg.Kafka.SASLUsername,
		SASLPassword:          cfg.Kafka.SASLPassword,
		AWSRegion:             cfg.Kafka.AWSRegion,
		TLSInsecureSkipVerify: cfg.Kafka.TLSInsecureSkipVerify,
	}

	var rejectPort *graph.Edge
	if cfg.Kafka.Reject.Enabled {
		rejectPort, err = graph.NewEdge("rejects", kafka.RejectSchema, bufferConfig, logger, metrics)
		if err != nil {
			return nil, closers, err
		}
		if err := g.AddEdge(rejectPort); err != nil {
			return nil, closers, err
		}

		rejectWriter, err := kafka.NewWriter("reject-writer", kafka.WriterConfig{
			Client: clientConfig,
			Topic:  cfg.Kafka.Reject.TopicFor(cfg.Kafka.Consumer.Topics[0]),
		}, kafka.RejectSchema, rejectPort.Reader(), logger, metrics)
		if err != nil {
			return nil, closers, fmt.Errorf("failed to create reject writer: %w", err)
		}
		closers = append(closers, closer{"reject-writer", rejectWriter.Close})
		if err := g.AddNode(rejectWriter); err != nil {
			return nil, closers, err
		}
	}

	readerConfig := kafka.ReaderConfig{
		Client:              clientConfig,
		GroupID:             cfg.Kafka.Consumer.GroupID,
		Topics:              cfg.Kafka.Consumer.Topics,
		AutoOffsetReset:     cfg.Kafka.Consumer.AutoOffsetReset,
		MaxPollIntervalMS:   cfg.Kafka.Consumer.MaxPollIntervalMS,
		SessionTimeoutMS:    cfg.Kafka.Consumer.SessionTimeoutMS,
		HeartbeatIntervalMS: cfg.Kafka.Consumer.HeartbeatIntervalMS,
		MaxRecords:          cfg.Kafka.Consumer.MaxRecords,
	}
	var rejectOut pkgbuffer.RecordWriter
	if rejectPort != nil {
		rejectOut = rejectPort.Writer()
	}
	reader, err := kafka.NewReader("kafka-reader", readerConfig, schema, recordValidator,
		events.Writer(), rejectOut, logger, metrics)
	if err != nil {
		return nil, closers, fmt.Errorf("failed to create kafka reader: %w", err)
	}
	if err := g.AddNode(reader); err != nil {
		return nil, closers, err
	}

	format := record.FileFormat(cfg.Storage.Format)
	compression := cfg.Storage.Compression
	if compression == "" {
		compression = encoder.DefaultCompression(format)
	}

	writer, err := newStorageWriter(cfg, schema, format, compression, logger, metrics)
	if err != nil {
		return nil, closers, err
	}
	closers = append(closers, closer{"storage-writer", writer.Close})

	router := storage.NewRouter(
		getStorageProtocol(cfg.Storage.Backend),
		getStorageBucket(cfg),
		getStorageBasePath(cfg),
		g.RunID(),
	)
	policy := storage.NewPolicy(storage.PolicyConfig{
		MaxFileSizeMB:      cfg.FileRotation.MaxFileSizeMB,
		MaxRecordsPerFile:  cfg.FileRotation.MaxRecordsPerFile,
		MaxDurationSeconds: cfg.FileRotation.MaxDurationSeconds,
		Strategy:           cfg.FileRotation.Strategy,
	})

	sink := storage.NewSinkNode("storage-sink", storage.SinkConfig{
		MaxRetries:    cfg.Sink.MaxRetries,
		RetryBackoff:  time.Duration(cfg.Sink.RetryBackoffMS) * time.Millisecond,
		UploadTimeout: time.Duration(cfg.Sink.UploadTimeoutSeconds) * time.Second,
		DrainTimeout:  time.Duration(cfg.Sink.DrainTimeoutSeconds) * time.Second,
	}, schema, events.Reader(), writer, router, policy, logger, metrics)
	if err := g.AddNode(sink); err != nil {
		return nil, closers, err
	}

	logger.Info("graph assembled",
		"schema", schema.Name,
		"backend", cfg.Storage.Backend,
		"destination", storageURL(cfg),
		"format", format,
		"compression", compression,
		"rejects", rejectPort != nil,
	)
	return g, closers, nil
}

func newStorageWriter(
	cfg *dto.ApplicationConfig,
	schema *record.Schema,
	format record.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics *observability.Metrics,
) (pkgstorage.Writer, error) {
	switch cfg.Storage.Backend {
	case "file":
		w, err := storage.NewFileWriter(storage.FileConfig{
			BasePath: cfg.Storage.File.BasePath,
		}, schema, format, compression, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create filesystem writer: %w", err)
		}
		return w, nil
	case "s3":
		w, err := storage.NewS3Writer(storage.S3Config{
			Bucket:       cfg.Storage.S3.Bucket,
			Region:       cfg.Storage.S3.Region,
			Endpoint:     cfg.Storage.S3.Endpoint,
			UsePathStyle: cfg.Storage.S3.UsePathStyle,
			SSEEnabled:   cfg.Storage.S3.SSEEnabled,
			SSEKMSKeyID:  cfg.Storage.S3.SSEKMSKeyID,
		}, schema, format, compression, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 writer: %w", err)
		}
		return w, nil
	case "azure":
		accountKey := cfg.Storage.Azure.AccountKey
		if accountKey == "" {
			accountKey = os.Getenv("AZURE_STORAGE_ACCOUNT_KEY")
		}
		w, err := storage.NewAzureWriter(storage.AzureConfig{
			AccountName:   cfg.Storage.Azure.AccountName,
			AccountKey:    accountKey,
			ContainerName: cfg.Storage.Azure.Container,
			Endpoint:      cfg.Storage.Azure.Endpoint,
		}, schema, format, compression, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure Blob writer: %w", err)
		}
		return w, nil
	case "gcs":
		credentialsJSON := cfg.Storage.GCS.CredentialsJSON
		if credentialsJSON == "" {
			credentialsJSON = os.Getenv("GCP_CREDENTIALS_JSON")
		}
		w, err := storage.NewGCSWriter(storage.GCSConfig{
			Bucket:               cfg.Storage.GCS.Bucket,
			ProjectID:            cfg.Storage.GCS.ProjectID,
			CredentialsFile:      cfg.Storage.GCS.CredentialsFile,
			CredentialsJSON:      credentialsJSON,
			Endpoint:             cfg.Storage.GCS.Endpoint,
			UseDefaultCredential: cfg.Storage.GCS.UseDefaultCredential,
		}, schema, format, compression, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS writer: %w", err)
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s (supported: file, s3, azure, gcs)", cfg.Storage.Backend)
	}
}

func getStorageProtocol(backend string) string {
	switch backend {
	case "s3":
		return "s3"
	case "azure":
		return "wasbs"
	case "gcs":
		return "gs"
	default:
		return "file"
	}
}

func getStorageBucket(cfg *dto.ApplicationConfig) string {
	switch cfg.Storage.Backend {
	case "s3":
		return cfg.Storage.S3.Bucket
	case "azure":
		return cfg.Storage.Azure.Container
	case "gcs":
		return cfg.Storage.GCS.Bucket
	default:
		// The file writer joins routed paths onto its own base path.
		return ""
	}
}

func getStorageBasePath(cfg *dto.ApplicationConfig) string {
	switch cfg.Storage.Backend {
	case "s3":
		return cfg.Storage.S3.BasePath
	case "azure":
		return cfg.Storage.Azure.BasePath
	case "gcs":
		return cfg.Storage.GCS.BasePath
	default:
		return ""
	}
}

// storageURL describes where a backend writes, for startup logs.
func storageURL(cfg *dto.ApplicationConfig) string {
	parts := []string{getStorageBucket(cfg), getStorageBasePath(cfg)}
	if cfg.Storage.Backend == "file" {
		parts = []string{cfg.Storage.File.BasePath}
	}
	return getStorageProtocol(cfg.Storage.Backend) + "://" + strings.Trim(strings.Join(parts, "/"), "/")
}
