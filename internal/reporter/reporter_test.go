package reporter

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"loadgen/internal/results"
)

func sampleSnapshot() results.Snapshot {
	return results.Snapshot{
		Aggregate: results.EndpointSnapshot{Key: results.EndpointKey{Type: "*", Name: "*"}, Requests: 10, Failures: 1},
		Endpoints: []results.EndpointSnapshot{
			{Key: results.EndpointKey{Type: "GET", Name: "/a"}, Requests: 10, Failures: 1},
		},
		Users:   []results.UserSnapshot{{ID: 1, Name: "u", Status: results.UserStatusFinished}},
		Elapsed: 5 * time.Second,
	}
}

func TestCurrentResultsWriterProducesHeaderPlusAggregateRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "current.csv")
	w, err := NewCurrentResultsWriter(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Write(sampleSnapshot()); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("unexpected csv parse error: %v", err)
	}
	// header + 1 endpoint + 1 aggregate row
	if len(records) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(records))
	}
	if records[0][0] != "endpoint_type" {
		t.Fatalf("expected a header row, got %v", records[0])
	}
}

func TestHistoryWriterAppendsWithTimestampColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	w, err := NewHistoryWriter(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := w.Write(sampleSnapshot(), time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Write(sampleSnapshot(), time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("unexpected csv parse error: %v", err)
	}
	// one header + 2 rows per write * 2 writes
	if len(records) != 5 {
		t.Fatalf("expected 5 rows (1 header + 4 data), got %d", len(records))
	}
	if records[0][0] != "timestamp_ms" {
		t.Fatalf("expected leading timestamp_ms column, got %v", records[0])
	}
	if records[1][0] == "" {
		t.Fatalf("expected a non-empty timestamp in the first data row")
	}
}

func TestWriteSummaryFileWritesValidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary", "out.json")
	if err := WriteSummaryFile(path, sampleSnapshot()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty summary contents")
	}
}
