package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Buffer metrics, labelled by edge
	BufferSpills        *prometheus.CounterVec
	BufferDirectSwaps   *prometheus.CounterVec
	BufferSlotReads     *prometheus.CounterVec
	BufferRecords       *prometheus.GaugeVec
	BufferSpillFileSize *prometheus.GaugeVec

	// Node metrics
	NodeRecords *prometheus.CounterVec

	// Kafka metrics
	MessagesConsumed   *prometheus.CounterVec
	MessagesProduced   *prometheus.CounterVec
	OffsetCommits      *prometheus.CounterVec
	Rebalances         *prometheus.CounterVec
	RebalanceDuration  *prometheus.HistogramVec
	PartitionsAssigned *prometheus.GaugeVec

	// Storage metrics
	FilesWritten         *prometheus.CounterVec
	FileWriteDuration    *prometheus.HistogramVec
	StorageWriteDuration *prometheus.HistogramVec
	FileSize             *prometheus.HistogramVec
	StorageErrors        *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		// Buffer metrics
		BufferSpills: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etl_buffer_spills_total",
				Help: "Total number of write regions spilled to disk",
			},
			[]string{"edge"},
		),
		BufferDirectSwaps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etl_buffer_direct_swaps_total",
				Help: "Total number of write regions handed directly to a waiting reader",
			},
			[]string{"edge"},
		),
		BufferSlotReads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etl_buffer_slot_reads_total",
				Help: "Total number of spill slots loaded back into memory",
			},
			[]string{"edge"},
		),
		BufferRecords: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "etl_buffer_records",
				Help: "Records written to an edge but not yet read",
			},
			[]string{"edge"},
		),
		BufferSpillFileSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "etl_buffer_spill_file_bytes",
				Help: "Current size of the edge spill file",
			},
			[]string{"edge"},
		),

		// Node metrics
		NodeRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etl_node_records_total",
				Help: "Total number of records passed through a node port",
			},
			[]string{"node", "port"},
		),

		// Kafka metrics
		MessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_consumed_total",
				Help: "Total number of messages consumed from Kafka",
			},
			[]string{"topic", "partition"},
		),
		MessagesProduced: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_produced_total",
				Help: "Total number of messages published to Kafka",
			},
			[]string{"topic", "status"},
		),
		OffsetCommits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_offset_commit_total",
				Help: "Total number of offsets marked for commit",
			},
			[]string{"topic", "partition", "status"},
		),
		Rebalances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_rebalance_total",
				Help: "Total number of consumer group rebalances",
			},
			[]string{"group"},
		),
		RebalanceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafka_rebalance_duration_seconds",
				Help:    "Duration of consumer group sessions",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"group"},
		),
		PartitionsAssigned: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kafka_partitions_assigned",
				Help: "Number of partitions currently assigned to this consumer",
			},
			[]string{"topic"},
		),

		// Storage metrics
		FilesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "files_written_total",
				Help: "Total number of files written to storage",
			},
			[]string{"schema", "format", "status"},
		),
		FileWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "file_write_duration_seconds",
				Help:    "Duration of file upload operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "format"},
		),
		StorageWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_write_duration_seconds",
				Help:    "Duration of complete storage write operations including encoding",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"schema"},
		),
		FileSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "file_size_bytes",
				Help:    "Size of files written to storage",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to 256MB
			},
			[]string{"schema", "format"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"backend", "error_type"},
		),
	}
}

// IncBufferSpills increments the spill counter of an edge.
func (m *Metrics) IncBufferSpills(edge string) {
	m.BufferSpills.WithLabelValues(edge).Inc()
}

// IncBufferDirectSwaps increments the direct swap counter of an edge.
func (m *Metrics) IncBufferDirectSwaps(edge string) {
	m.BufferDirectSwaps.WithLabelValues(edge).Inc()
}

// IncBufferSlotReads increments the slot read counter of an edge.
func (m *Metrics) IncBufferSlotReads(edge string) {
	m.BufferSlotReads.WithLabelValues(edge).Inc()
}

// SetBufferRecords sets the buffered records gauge of an edge.
func (m *Metrics) SetBufferRecords(edge string, count float64) {
	m.BufferRecords.WithLabelValues(edge).Set(count)
}

// SetBufferSpillFileBytes sets the spill file size gauge of an edge.
func (m *Metrics) SetBufferSpillFileBytes(edge string, size float64) {
	m.BufferSpillFileSize.WithLabelValues(edge).Set(size)
}

// IncNodeRecords increments the record counter of a node port.
func (m *Metrics) IncNodeRecords(node, port string) {
	m.NodeRecords.WithLabelValues(node, port).Inc()
}

// IncMessagesConsumed increments messages consumed counter.
func (m *Metrics) IncMessagesConsumed(topic string, partition int32) {
	m.MessagesConsumed.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Inc()
}

// IncMessagesProduced increments messages produced counter.
func (m *Metrics) IncMessagesProduced(topic string, status string) {
	m.MessagesProduced.WithLabelValues(topic, status).Inc()
}

// IncRebalances increments rebalances counter.
func (m *Metrics) IncRebalances(groupID string) {
	m.Rebalances.WithLabelValues(groupID).Inc()
}

// IncOffsetCommits increments offset commits counter.
func (m *Metrics) IncOffsetCommits(topic string, partition int32, status string) {
	m.OffsetCommits.WithLabelValues(topic, fmt.Sprintf("%d", partition), status).Inc()
}

// ObserveRebalanceDuration observes rebalance duration.
func (m *Metrics) ObserveRebalanceDuration(groupID string, duration float64) {
	m.RebalanceDuration.WithLabelValues(groupID).Observe(duration)
}

// SetPartitionsAssigned sets partitions assigned gauge.
func (m *Metrics) SetPartitionsAssigned(topic string, count float64) {
	m.PartitionsAssigned.WithLabelValues(topic).Set(count)
}

// IncFilesWritten increments files written counter.
func (m *Metrics) IncFilesWritten(schema string, format string, status string) {
	m.FilesWritten.WithLabelValues(schema, format, status).Inc()
}

// ObserveFileWriteDuration observes the upload duration of one file.
func (m *Metrics) ObserveFileWriteDuration(backend string, format string, duration float64) {
	m.FileWriteDuration.WithLabelValues(backend, format).Observe(duration)
}

// ObserveFileSize observes file size.
func (m *Metrics) ObserveFileSize(schema string, format string, size float64) {
	m.FileSize.WithLabelValues(schema, format).Observe(size)
}

// ObserveStorageWriteDuration observes storage write duration.
func (m *Metrics) ObserveStorageWriteDuration(schema string, duration float64) {
	m.StorageWriteDuration.WithLabelValues(schema).Observe(duration)
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, errorType string) {
	m.StorageErrors.WithLabelValues(backend, errorType).Inc()
}
