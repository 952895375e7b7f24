package graph

import (
	"fmt"
	"log/slog"

	"github.com/jittakal/kafetl/internal/buffer"
	"github.com/jittakal/kafetl/internal/codec"
	pkgbuffer "github.com/jittakal/kafetl/pkg/buffer"
	"github.com/jittakal/kafetl/pkg/record"
)

// Edge connects the output port of one node to the input port of another.
// Records cross it in order through a disk-spilling buffer.
type Edge struct {
	name   string
	schema *record.Schema
	buf    *buffer.RecordBuffer
}

// NewEdge creates an edge carrying records of schema. cfg.Name is replaced by name.
func NewEdge(
	name string,
	schema *record.Schema,
	cfg buffer.Config,
	logger *slog.Logger,
	metrics buffer.MetricsCollector,
) (*Edge, error) {
	c, err := codec.NewAvroCodec(schema)
	if err != nil {
		return nil, fmt.Errorf("edge %s: %w", name, err)
	}

	cfg.Name = name
	return &Edge{
		name:   name,
		schema: schema,
		buf:    buffer.NewRecordBuffer(cfg, c, logger, metrics),
	}, nil
}

// Name returns the edge name.
func (e *Edge) Name() string {
	return e.name
}

// Schema returns the schema of the records carried by the edge.
func (e *Edge) Schema() *record.Schema {
	return e.schema
}

// Init allocates the edge buffer.
func (e *Edge) Init() error {
	return e.buf.Init()
}

// Writer returns the view used by the producing node.
func (e *Edge) Writer() pkgbuffer.RecordWriter {
	return e.buf
}

// Reader returns the view used by the consuming node.
func (e *Edge) Reader() pkgbuffer.RecordReader {
	return e.buf
}

// Stats returns the buffer statistics of the edge.
func (e *Edge) Stats() buffer.Stats {
	return e.buf.Stats()
}

// Close releases the buffer and removes its spill file.
func (e *Edge) Close() error {
	return e.buf.Close()
}
