// Package httpserver implements the introspection HTTP server: GET /results
// and GET /stop, shutting down gracefully once the test token is cancelled.
// Built on stdlib net/http rather than a web framework (see DESIGN.md).
package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"loadgen/internal/results"
	"loadgen/internal/testctl"
)

const shutdownGrace = 5 * time.Second

// SnapshotSource is polled on every /results request; cmd/loadgen wires
// this to a function returning the latest Snapshot the orchestrator
// published, so the server never touches aggregator-owned state directly.
type SnapshotSource func() results.Snapshot

// Server is the introspection server. It holds no test state itself -
// everything is read through source and testCtl, matching ServerState's
// read-only Arc<RwLock<AllResults>> + TestController pair.
type Server struct {
	addr    string
	source  SnapshotSource
	testCtl *testctl.Controller
	logger  *zap.Logger
	srv     *http.Server
}

// New builds a Server bound to addr (the --server-address flag value).
func New(addr string, source SnapshotSource, testCtl *testctl.Controller, logger *zap.Logger) *Server {
	s := &Server{addr: addr, source: source, testCtl: testCtl, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/results", s.handleResults)
	mux.HandleFunc("/stop", s.handleStop)
	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.source()); err != nil {
		s.logger.Warn("failed to encode results response", zap.Error(err))
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.testCtl.Stop()
	w.WriteHeader(http.StatusOK)
}

// Run serves until the test controller's context is cancelled, then shuts
// down gracefully. A listen failure (e.g. address already in use) is
// returned to the caller, which logs it and continues the test without
// aborting: the HTTP server is a convenience surface, not part of the
// trusted core.
func (s *Server) Run() error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-s.testCtl.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http server shutdown error", zap.Error(err))
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
