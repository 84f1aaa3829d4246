package promexport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"loadgen/internal/results"
)

func TestWriteCurrentMetricsFileContainsAllFourFamilies(t *testing.T) {
	e := New()
	key := results.EndpointKey{Type: "GET", Name: "/x"}
	e.AddSuccess(1, "u", key, 10*time.Millisecond)
	e.AddFailure(1, "u", key)
	e.AddError(1, "u", key)

	path := filepath.Join(t.TempDir(), "current.prom")
	if err := e.WriteCurrentMetricsFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
	contents := string(data)
	for _, name := range []string{"rocust_request", "rocust_failure", "rocust_error", "rocust_response_time"} {
		if !strings.Contains(contents, name) {
			t.Fatalf("expected metrics output to contain %q, got:\n%s", name, contents)
		}
	}
}

func TestWriteHistorySnapshotUsesTimestampedFilename(t *testing.T) {
	e := New()
	folder := t.TempDir()
	at := time.UnixMilli(1700000000000)
	if err := e.WriteHistorySnapshot(folder, at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := filepath.Join(folder, "1700000000000_metrics.prom")
	if _, err := os.Stat(expected); err != nil {
		t.Fatalf("expected timestamped file %s to exist: %v", expected, err)
	}
}
