package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"loadgen/internal/results"
	"loadgen/internal/testctl"
)

func TestResultsAndStopEndpoints(t *testing.T) {
	testCtl := testctl.New(context.Background())
	snap := results.Snapshot{Aggregate: results.EndpointSnapshot{Requests: 42}}
	s := New("127.0.0.1:0", func() results.Snapshot { return snap }, testCtl, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- s.Run() }()

	// Run binds an ephemeral port (127.0.0.1:0), and http.Server doesn't
	// expose its listener's resolved address when constructed from Addr
	// alone; exercise the handlers directly instead.
	rr := newRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/results", nil)
	s.handleResults(rr, req)
	if rr.status != http.StatusOK && rr.status != 0 {
		t.Fatalf("expected 200 (or unset default), got %d", rr.status)
	}
	var got results.Snapshot
	if err := json.Unmarshal(rr.body, &got); err != nil {
		t.Fatalf("expected valid JSON body: %v", err)
	}
	if got.Aggregate.Requests != 42 {
		t.Fatalf("expected aggregate requests 42, got %d", got.Aggregate.Requests)
	}

	stopRR := newRecorder()
	stopReq, _ := http.NewRequest(http.MethodGet, "/stop", nil)
	s.handleStop(stopRR, stopReq)
	if stopRR.status != http.StatusOK {
		t.Fatalf("expected 200 from /stop, got %d", stopRR.status)
	}
	if !testCtl.Cancelled() {
		t.Fatal("expected /stop to cancel the test controller")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected server error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected Run to return after the test controller was cancelled")
	}
}

type recorder struct {
	header http.Header
	status int
	body   []byte
}

func newRecorder() *recorder { return &recorder{header: http.Header{}} }

func (r *recorder) Header() http.Header         { return r.header }
func (r *recorder) WriteHeader(statusCode int)  { r.status = statusCode }
func (r *recorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return len(b), nil
}
