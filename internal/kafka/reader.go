package kafka

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/jittakal/kafetl/internal/codec"
	"github.com/jittakal/kafetl/internal/graph"
	"github.com/jittakal/kafetl/internal/validator"
	"github.com/jittakal/kafetl/pkg/buffer"
	"github.com/jittakal/kafetl/pkg/record"
)

// Ensure implementation satisfies interface at compile time.
var _ graph.Node = (*Reader)(nil)

// RejectSchema is the layout of records written to a reader's reject port.
var RejectSchema = &record.Schema{
	Name: "rejects",
	Fields: []record.Field{
		{Name: "topic", Type: record.TypeString},
		{Name: "partition", Type: record.TypeLong},
		{Name: "offset", Type: record.TypeLong},
		{Name: "key", Type: record.TypeBytes, Nullable: true},
		{Name: "payload", Type: record.TypeBytes},
		{Name: "reason", Type: record.TypeString},
		{Name: "rejected_at", Type: record.TypeTimestamp},
	},
}

// ReaderConfig contains Kafka consumer configuration.
type ReaderConfig struct {
	Client              ClientConfig
	GroupID             string
	Topics              []string
	AutoOffsetReset     string
	MaxPollIntervalMS   int
	SessionTimeoutMS    int
	HeartbeatIntervalMS int

	// MaxRecords stops the reader after that many messages. Zero means unbounded.
	MaxRecords int64
}

// consumerGroup is the part of sarama.ConsumerGroup used by Reader.
type consumerGroup interface {
	Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error
	Errors() <-chan error
	Close() error
}

// Reader is a graph node that consumes JSON messages from Kafka topics and
// writes them as records to its output port. Messages that fail to decode or
// validate go to the reject port when one is connected and are dropped with a
// warning otherwise. An offset is marked only after its record is on an edge.
type Reader struct {
	name      string
	config    ReaderConfig
	group     consumerGroup
	schema    *record.Schema
	validator *validator.RecordValidator
	out       buffer.RecordWriter
	reject    buffer.RecordWriter
	logger    *slog.Logger
	metrics   MetricsCollector

	// mu serializes partition goroutines: each port has a single writer.
	mu           sync.Mutex
	rec          *record.Record
	rejectRec    *record.Record
	consumed     int64
	rejected     int64
	limitReached bool
	failed       error
	stop         context.CancelFunc
}

// NewReader creates a Kafka reader node backed by a sarama consumer group.
// validator and reject may be nil.
func NewReader(
	name string,
	config ReaderConfig,
	schema *record.Schema,
	recordValidator *validator.RecordValidator,
	out buffer.RecordWriter,
	reject buffer.RecordWriter,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*Reader, error) {
	saramaConfig, err := newSaramaConfig(config.Client)
	if err != nil {
		return nil, err
	}

	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = offsetInitial(config.AutoOffsetReset)
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	if config.SessionTimeoutMS > 0 {
		saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMS) * time.Millisecond
	}
	if config.HeartbeatIntervalMS > 0 {
		saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatIntervalMS) * time.Millisecond
	}
	if config.MaxPollIntervalMS > 0 {
		saramaConfig.Consumer.MaxProcessingTime = time.Duration(config.MaxPollIntervalMS) * time.Millisecond
	} else {
		saramaConfig.Consumer.MaxProcessingTime = 5 * time.Minute
	}
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(config.Client.BootstrapServers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info("kafka reader created",
		"node", name,
		"group_id", config.GroupID,
		"topics", config.Topics,
		"bootstrap_servers", config.Client.BootstrapServers,
		"max_records", config.MaxRecords,
	)

	return newReader(name, config, group, schema, recordValidator, out, reject, logger, metrics), nil
}

func newReader(
	name string,
	config ReaderConfig,
	group consumerGroup,
	schema *record.Schema,
	recordValidator *validator.RecordValidator,
	out buffer.RecordWriter,
	reject buffer.RecordWriter,
	logger *slog.Logger,
	metrics MetricsCollector,
) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		name:      name,
		config:    config,
		group:     group,
		schema:    schema,
		validator: recordValidator,
		out:       out,
		reject:    reject,
		logger:    logger.With("node", name),
		metrics:   metrics,
		rec:       schema.NewRecord(),
		rejectRec: RejectSchema.NewRecord(),
	}
}

// Name returns the node name.
func (r *Reader) Name() string {
	return r.name
}

// Consumed returns the number of messages taken from Kafka so far.
func (r *Reader) Consumed() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consumed
}

// Execute consumes until ctx is done or MaxRecords is reached, then closes
// the consumer group and writes EOF to every connected port.
func (r *Reader) Execute(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	r.stop = cancel
	r.mu.Unlock()

	go func() {
		for err := range r.group.Errors() {
			r.logger.Warn("consumer group error", "error", err)
		}
	}()

	handler := &groupHandler{reader: r}
	var consumeErr error
	for {
		if err := r.group.Consume(ctx, r.config.Topics, handler); err != nil {
			if !stderrors.Is(err, sarama.ErrClosedConsumerGroup) {
				consumeErr = fmt.Errorf("consumer group error: %w", err)
			}
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	if err := r.group.Close(); err != nil {
		r.logger.Warn("error closing consumer group", "error", err)
	}

	r.mu.Lock()
	failed, consumed, rejected := r.failed, r.consumed, r.rejected
	r.mu.Unlock()

	if failed != nil {
		return failed
	}
	if consumeErr != nil {
		return consumeErr
	}

	r.logger.Info("kafka reader finished", "consumed", consumed, "rejected", rejected)

	if r.reject != nil {
		if err := r.reject.EOF(); err != nil {
			return fmt.Errorf("failed to close reject port: %w", err)
		}
	}
	return r.out.EOF()
}

// process moves one message onto an edge. It reports whether the message may
// be marked as consumed.
func (r *Reader) process(msg *sarama.ConsumerMessage) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failed != nil {
		return false, r.failed
	}
	if r.limitReached {
		return false, nil
	}

	if r.metrics != nil {
		r.metrics.IncMessagesConsumed(msg.Topic, msg.Partition)
	}

	err := codec.FromJSON(msg.Value, r.rec)
	if err == nil && r.validator != nil {
		err = r.validator.Validate(r.rec)
	}

	if err != nil {
		if werr := r.rejectLocked(msg, err); werr != nil {
			return false, r.failLocked(fmt.Errorf("failed to write rejected record: %w", werr))
		}
	} else {
		if werr := r.out.WriteRecord(r.rec); werr != nil {
			return false, r.failLocked(fmt.Errorf("failed to write record: %w", werr))
		}
		if r.metrics != nil {
			r.metrics.IncNodeRecords(r.name, "out")
		}
	}

	r.consumed++
	if r.config.MaxRecords > 0 && r.consumed >= r.config.MaxRecords {
		r.limitReached = true
		r.logger.Info("record limit reached", "max_records", r.config.MaxRecords)
		if r.stop != nil {
			r.stop()
		}
	}
	return true, nil
}

// failLocked records the first write failure and stops consumption.
func (r *Reader) failLocked(err error) error {
	r.failed = err
	if r.stop != nil {
		r.stop()
	}
	return err
}

func (r *Reader) rejectLocked(msg *sarama.ConsumerMessage, cause error) error {
	r.rejected++
	if r.reject == nil {
		r.logger.Warn("dropping invalid message",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", cause,
		)
		return nil
	}

	rec := r.rejectRec
	rec.Values[0] = msg.Topic
	rec.Values[1] = int64(msg.Partition)
	rec.Values[2] = msg.Offset
	rec.Values[3] = nil
	if msg.Key != nil {
		rec.Values[3] = msg.Key
	}
	rec.Values[4] = msg.Value
	if msg.Value == nil {
		rec.Values[4] = []byte{}
	}
	rec.Values[5] = cause.Error()
	rec.Values[6] = time.Now().UTC()

	if err := r.reject.WriteRecord(rec); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.IncNodeRecords(r.name, "reject")
	}
	r.logger.Debug("message rejected",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"reason", cause,
	)
	return nil
}

// groupHandler implements sarama.ConsumerGroupHandler.
type groupHandler struct {
	reader       *Reader
	sessionStart time.Time
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *groupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.sessionStart = time.Now()
	r := h.reader

	r.logger.Info("consumer group session setup",
		"member_id", session.MemberID(),
		"generation_id", session.GenerationID(),
		"claims", session.Claims(),
	)

	if r.metrics != nil {
		r.metrics.IncRebalances(r.config.GroupID)
		for topic, partitions := range session.Claims() {
			r.metrics.SetPartitionsAssigned(topic, float64(len(partitions)))
		}
	}
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (h *groupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	r := h.reader
	if r.metrics != nil && !h.sessionStart.IsZero() {
		r.metrics.ObserveRebalanceDuration(r.config.GroupID, time.Since(h.sessionStart).Seconds())
	}

	r.logger.Info("consumer group session cleanup", "member_id", session.MemberID())
	return nil
}

// ConsumeClaim processes messages from a partition.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	r := h.reader
	r.logger.Info("started consuming partition",
		"topic", claim.Topic(),
		"partition", claim.Partition(),
		"initial_offset", claim.InitialOffset(),
	)

	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			mark, err := r.process(msg)
			if err != nil {
				return err
			}
			if !mark {
				return nil
			}

			session.MarkMessage(msg, "")
			if r.metrics != nil {
				r.metrics.IncOffsetCommits(msg.Topic, msg.Partition, "marked")
			}

		case <-session.Context().Done():
			return nil
		}
	}
}
