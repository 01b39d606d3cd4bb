// Package telemetry persists extraction and audit records as Parquet files
// for offline analysis. Records are buffered and flushed in batches; the
// writer never blocks the request path on disk I/O errors beyond reporting
// them.
package telemetry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/kairosgraph/kairos/pkg/types"
)

// ExtractionRecord is one extraction call as persisted.
type ExtractionRecord struct {
	ID           string    `parquet:"id"`
	Timestamp    time.Time `parquet:"timestamp"`
	RequestID    string    `parquet:"request_id"`
	Tenant       string    `parquet:"tenant"`
	Provider     string    `parquet:"provider"`
	Model        string    `parquet:"model"`
	LatencyMs    int64     `parquet:"latency_ms"`
	InputTokens  int32     `parquet:"input_tokens"`
	OutputTokens int32     `parquet:"output_tokens"`
	CostUSD      float64   `parquet:"cost_usd"`
	Nodes        int32     `parquet:"nodes"`
	Relations    int32     `parquet:"relations"`
}

// Recorder buffers extraction records and writes them to Parquet files.
type Recorder struct {
	outputDir string
	batchSize int
	logger    *slog.Logger

	mu     sync.Mutex
	buffer []ExtractionRecord
}

// NewRecorder creates a recorder writing under outputDir.
func NewRecorder(outputDir string, logger *slog.Logger) (*Recorder, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating telemetry directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		outputDir: outputDir,
		batchSize: 100,
		logger:    logger,
		buffer:    make([]ExtractionRecord, 0, 100),
	}, nil
}

// RecordExtraction buffers one extraction outcome. The buffer flushes when
// it reaches the batch size.
func (r *Recorder) RecordExtraction(requestID string, tenant types.TenantID, env *types.ExtractionEnvelope) {
	if env == nil || env.Metadata == nil {
		return
	}
	rec := ExtractionRecord{
		ID:           uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		RequestID:    requestID,
		Tenant:       tenant.String(),
		Provider:     env.Metadata.Provider,
		Model:        env.Metadata.ModelName,
		LatencyMs:    env.Metadata.LatencyMs,
		InputTokens:  int32(env.Metadata.InputTokens),
		OutputTokens: int32(env.Metadata.OutputTokens),
		CostUSD:      env.Metadata.CostUSD,
		Nodes:        int32(len(env.Nodes)),
		Relations:    int32(len(env.Relations)),
	}

	r.mu.Lock()
	r.buffer = append(r.buffer, rec)
	full := len(r.buffer) >= r.batchSize
	r.mu.Unlock()

	if full {
		if err := r.Flush(); err != nil {
			r.logger.Error("telemetry flush failed", "error", err)
		}
	}
}

// Flush writes the buffered records to a new Parquet file.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	if len(r.buffer) == 0 {
		r.mu.Unlock()
		return nil
	}
	batch := r.buffer
	r.buffer = make([]ExtractionRecord, 0, r.batchSize)
	r.mu.Unlock()

	name := fmt.Sprintf("extractions_%s_%s.parquet",
		time.Now().UTC().Format("20060102T150405"), uuid.New().String()[:8])
	path := filepath.Join(r.outputDir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating telemetry file: %w", err)
	}
	writer := parquet.NewGenericWriter[ExtractionRecord](f)
	if _, err := writer.Write(batch); err != nil {
		f.Close()
		return fmt.Errorf("writing telemetry batch: %w", err)
	}
	if err := writer.Close(); err != nil {
		f.Close()
		return fmt.Errorf("closing telemetry writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	r.logger.Debug("telemetry batch flushed", "file", path, "records", len(batch))
	return nil
}

// Close flushes any remaining records.
func (r *Recorder) Close() error {
	return r.Flush()
}
