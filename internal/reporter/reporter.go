// Package reporter writes results.Snapshot to disk in three formats: a
// single current-results CSV (overwritten every tick), an append-only
// history CSV with a leading timestamp column, and a JSON summary written
// once at shutdown. Each writer creates its parent directory up front,
// before its first write or append.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"loadgen/internal/results"
)

var csvHeader = []string{
	"endpoint_type", "endpoint_name", "requests", "failures", "errors",
	"min_seconds", "max_seconds", "avg_seconds", "median_seconds",
	"p90_seconds", "p95_seconds", "p99_seconds",
	"requests_per_second", "failures_per_second",
}

func csvRow(e results.EndpointSnapshot) []string {
	return []string{
		e.Key.Type, e.Key.Name,
		strconv.FormatUint(e.Requests, 10),
		strconv.FormatUint(e.Failures, 10),
		strconv.FormatUint(e.Errors, 10),
		strconv.FormatFloat(e.Min, 'f', -1, 64),
		strconv.FormatFloat(e.Max, 'f', -1, 64),
		strconv.FormatFloat(e.Avg, 'f', -1, 64),
		strconv.FormatFloat(e.Median, 'f', -1, 64),
		strconv.FormatFloat(e.P90, 'f', -1, 64),
		strconv.FormatFloat(e.P95, 'f', -1, 64),
		strconv.FormatFloat(e.P99, 'f', -1, 64),
		strconv.FormatFloat(e.RequestsPerSecond, 'f', -1, 64),
		strconv.FormatFloat(e.FailuresPerSecond, 'f', -1, 64),
	}
}

func rows(snap results.Snapshot) [][]string {
	out := make([][]string, 0, len(snap.Endpoints)+1)
	for _, e := range snap.Endpoints {
		out = append(out, csvRow(e))
	}
	out = append(out, csvRow(snap.Aggregate))
	return out
}

// CurrentResultsWriter overwrites one CSV file every call to Write - one
// header row, one row per endpoint, plus a trailing aggregate row.
type CurrentResultsWriter struct {
	path string
}

// NewCurrentResultsWriter creates the file's parent directory up front,
// mirroring Writer::new's create_dir_all-before-any-write ordering.
func NewCurrentResultsWriter(path string) (*CurrentResultsWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create results directory: %w", err)
	}
	return &CurrentResultsWriter{path: path}, nil
}

func (w *CurrentResultsWriter) Write(snap results.Snapshot) error {
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("create current results file: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	if err := cw.WriteAll(rows(snap)); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// HistoryWriter appends one block of rows per call, each prefixed with the
// tick's millisecond timestamp, to a single ever-growing CSV file.
type HistoryWriter struct {
	path          string
	headerWritten bool
}

func NewHistoryWriter(path string) (*HistoryWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create results history directory: %w", err)
	}
	_, statErr := os.Stat(path)
	return &HistoryWriter{path: path, headerWritten: statErr == nil}, nil
}

func (w *HistoryWriter) Write(snap results.Snapshot, at time.Time) error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open results history file: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if !w.headerWritten {
		if err := cw.Write(append([]string{"timestamp_ms"}, csvHeader...)); err != nil {
			return err
		}
		w.headerWritten = true
	}
	ts := strconv.FormatInt(at.UnixMilli(), 10)
	for _, row := range rows(snap) {
		if err := cw.Write(append([]string{ts}, row...)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Summary is the JSON document written once at shutdown.
type Summary struct {
	RunID     string                     `json:"run_id,omitempty"`
	Aggregate results.EndpointSnapshot   `json:"aggregate"`
	Endpoints []results.EndpointSnapshot `json:"endpoints"`
	Users     []results.UserSnapshot     `json:"users"`
	ElapsedMs int64                      `json:"elapsed_ms"`
}

// WriteSummaryFile writes the final snapshot as indented JSON, writing to
// stdout when path is empty or "stdout".
func WriteSummaryFile(path string, snap results.Snapshot) error {
	return WriteSummaryFileForRun(path, snap, "")
}

// WriteSummaryFileForRun is WriteSummaryFile with a run identifier attached,
// so a summary file can be correlated back to the log lines its run emitted
// (cmd/loadgen stamps every run with a github.com/google/uuid value).
func WriteSummaryFileForRun(path string, snap results.Snapshot, runID string) error {
	summary := Summary{
		RunID:     runID,
		Aggregate: snap.Aggregate,
		Endpoints: snap.Endpoints,
		Users:     snap.Users,
		ElapsedMs: snap.Elapsed.Milliseconds(),
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if path == "" || path == "stdout" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create summary directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LogAndSwallow logs a writer failure and returns without propagating it:
// I/O errors from writers are logged and swallowed, so load generation
// continues.
func LogAndSwallow(logger *zap.Logger, op string, err error) {
	if err == nil {
		return
	}
	logger.Warn("writer failed, continuing", zap.String("op", op), zap.Error(err))
}
