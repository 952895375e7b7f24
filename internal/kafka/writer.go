package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/jittakal/kafetl/internal/codec"
	"github.com/jittakal/kafetl/internal/errors"
	"github.com/jittakal/kafetl/internal/graph"
	"github.com/jittakal/kafetl/pkg/buffer"
	"github.com/jittakal/kafetl/pkg/record"
)

// Ensure implementation satisfies interface at compile time.
var _ graph.Node = (*Writer)(nil)

// WriterConfig contains Kafka producer configuration.
type WriterConfig struct {
	Client ClientConfig
	Topic  string

	// KeyField names the record field used as message key. Empty means no key.
	KeyField string
}

// Writer is a graph node that publishes every record of its input port to a
// topic as a JSON message.
type Writer struct {
	name     string
	config   WriterConfig
	producer sarama.SyncProducer
	schema   *record.Schema
	in       buffer.RecordReader
	logger   *slog.Logger
	metrics  MetricsCollector
	keyIndex int

	mu     sync.RWMutex
	closed bool
}

// NewWriter creates a Kafka writer node backed by a sarama sync producer.
func NewWriter(
	name string,
	config WriterConfig,
	schema *record.Schema,
	in buffer.RecordReader,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*Writer, error) {
	saramaConfig, err := newSaramaConfig(config.Client)
	if err != nil {
		return nil, err
	}
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(config.Client.BootstrapServers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}

	logger.Info("kafka writer created",
		"node", name,
		"topic", config.Topic,
		"bootstrap_servers", config.Client.BootstrapServers,
	)

	w, err := newWriter(name, config, producer, schema, in, logger, metrics)
	if err != nil {
		_ = producer.Close()
		return nil, err
	}
	return w, nil
}

func newWriter(
	name string,
	config WriterConfig,
	producer sarama.SyncProducer,
	schema *record.Schema,
	in buffer.RecordReader,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*Writer, error) {
	if config.Topic == "" {
		return nil, fmt.Errorf("kafka writer %s: topic is required", name)
	}

	keyIndex := -1
	if config.KeyField != "" {
		keyIndex = schema.FieldIndex(config.KeyField)
		if keyIndex < 0 {
			return nil, fmt.Errorf("kafka writer %s: key field %s not in schema %s", name, config.KeyField, schema.Name)
		}
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		name:     name,
		config:   config,
		producer: producer,
		schema:   schema,
		in:       in,
		logger:   logger.With("node", name),
		metrics:  metrics,
		keyIndex: keyIndex,
	}, nil
}

// Name returns the node name.
func (w *Writer) Name() string {
	return w.name
}

// Execute publishes records until the input port reaches end of stream.
func (w *Writer) Execute(ctx context.Context) error {
	rec := w.schema.NewRecord()
	published := 0

	for {
		ok, err := w.in.ReadRecord(ctx, rec)
		if err != nil {
			return err
		}
		if !ok {
			w.logger.Info("kafka writer finished", "topic", w.config.Topic, "published", published)
			return nil
		}

		if w.metrics != nil {
			w.metrics.IncNodeRecords(w.name, "in")
		}
		if err := w.publish(rec); err != nil {
			return err
		}
		published++
	}
}

func (w *Writer) publish(rec *record.Record) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return errors.ErrProducerClosed
	}

	data, err := codec.ToJSON(rec)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: w.config.Topic,
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("schema"), Value: []byte(w.schema.Name)},
			{Key: []byte("producer_node"), Value: []byte(w.name)},
		},
		Timestamp: time.Now(),
	}
	if w.keyIndex >= 0 {
		if key := rec.Values[w.keyIndex]; key != nil {
			msg.Key = sarama.StringEncoder(fmt.Sprint(key))
		}
	}

	partition, offset, err := w.producer.SendMessage(msg)
	if err != nil {
		if w.metrics != nil {
			w.metrics.IncMessagesProduced(w.config.Topic, "failure")
		}
		w.logger.Error("failed to publish record", "error", err, "topic", w.config.Topic)
		return fmt.Errorf("failed to send message to %s: %w", w.config.Topic, err)
	}

	if w.metrics != nil {
		w.metrics.IncMessagesProduced(w.config.Topic, "success")
	}
	w.logger.Debug("published record",
		"topic", w.config.Topic,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

// Close closes the producer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.producer.Close(); err != nil {
		w.logger.Error("error closing producer", "error", err)
		return err
	}
	w.logger.Info("kafka writer closed")
	return nil
}
