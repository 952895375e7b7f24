package storage

import (
	"strings"
	"time"

	"github.com/jittakal/kafetl/pkg/record"
	"github.com/jittakal/kafetl/pkg/storage"
)

// Ensure implementations satisfy interfaces.
var (
	_ storage.Router         = (*DefaultRouter)(nil)
	_ storage.RotationPolicy = (*CompositePolicy)(nil)
)

// DefaultRouter implements Hive-style partitioning for storage paths.
type DefaultRouter struct {
	protocol string
	bucket   string
	basePath string
	runID    string
}

// NewRouter creates a new storage router. runID separates the files of one
// graph run from those of other runs writing the same date partition.
func NewRouter(protocol, bucket, basePath, runID string) *DefaultRouter {
	return &DefaultRouter{
		protocol: protocol,
		bucket:   bucket,
		basePath: strings.Trim(basePath, "/"),
		runID:    runID,
	}
}

// Route returns the directory for records of schema written at t.
// Format: protocol://bucket/basePath/schema/dt=YYYY-MM-DD/run=<id>/
// Empty segments are left out.
func (r *DefaultRouter) Route(schema string, t time.Time) string {
	segments := make([]string, 0, 5)
	for _, s := range []string{r.bucket, r.basePath, schema} {
		if s != "" {
			segments = append(segments, s)
		}
	}
	segments = append(segments, "dt="+t.UTC().Format("2006-01-02"))
	if r.runID != "" {
		segments = append(segments, "run="+r.runID)
	}
	return r.protocol + "://" + strings.Join(segments, "/") + "/"
}

// NewPolicy creates a new rotation policy (alias for NewCompositePolicy).
func NewPolicy(config PolicyConfig) *CompositePolicy {
	return NewCompositePolicy(config)
}

// RotationStrategy determines which limits trigger rotation.
type RotationStrategy string

const (
	StrategyComposite RotationStrategy = "composite"
	StrategySizeOnly  RotationStrategy = "size"
	StrategyTimeOnly  RotationStrategy = "time"
	StrategyCount     RotationStrategy = "count"
)

// PolicyConfig configures rotation behavior.
type PolicyConfig struct {
	MaxFileSizeMB      int64
	MaxRecordsPerFile  int
	MaxDurationSeconds int
	Strategy           string
}

// CompositePolicy rotates when any enabled limit is reached.
type CompositePolicy struct {
	maxSizeBytes int64
	maxRecords   int
	maxDuration  time.Duration
}

// NewCompositePolicy creates a new rotation policy. A strategy other than
// composite keeps only its own limit.
func NewCompositePolicy(config PolicyConfig) *CompositePolicy {
	p := &CompositePolicy{
		maxSizeBytes: config.MaxFileSizeMB * 1024 * 1024,
		maxRecords:   config.MaxRecordsPerFile,
		maxDuration:  time.Duration(config.MaxDurationSeconds) * time.Second,
	}

	switch RotationStrategy(config.Strategy) {
	case StrategySizeOnly:
		p.maxRecords, p.maxDuration = 0, 0
	case StrategyCount:
		p.maxSizeBytes, p.maxDuration = 0, 0
	case StrategyTimeOnly:
		p.maxSizeBytes, p.maxRecords = 0, 0
	}
	return p
}

// ShouldRotate returns true if any rotation condition is met.
func (p *CompositePolicy) ShouldRotate(stats record.FileStats) bool {
	if p.maxSizeBytes > 0 && stats.SizeBytes >= p.maxSizeBytes {
		return true
	}

	if p.maxRecords > 0 && stats.RecordCount >= p.maxRecords {
		return true
	}

	if p.maxDuration > 0 && !stats.FirstWriteTime.IsZero() {
		if time.Since(stats.FirstWriteTime) >= p.maxDuration {
			return true
		}
	}

	return false
}

// MaxDuration returns the age limit, or zero when age does not trigger rotation.
func (p *CompositePolicy) MaxDuration() time.Duration {
	return p.maxDuration
}
