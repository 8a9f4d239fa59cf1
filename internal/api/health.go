// Package api exposes a small health/readiness HTTP surface: instead
// of reporting whether a pod is ready to accept proxied connections,
// it reports whether the wrapped driver connection is currently
// Connected.
package api

import (
	"context"
	"net/http"
)

// ConnectionStatus is the minimal view the health server needs of a
// driver connection, kept as an interface so this package doesn't
// depend on pkg/rethinkdb.
type ConnectionStatus interface {
	Connected() bool
}

// HealthServer serves /healthz (always ok while the process runs) and
// /readyz (ok only while the wrapped connection reports Connected).
type HealthServer struct {
	server *http.Server
	conn   ConnectionStatus
}

// NewHealthServer builds a HealthServer bound to addr, reporting
// readiness from conn.
func NewHealthServer(addr string, conn ConnectionStatus) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		server: &http.Server{Addr: addr, Handler: mux},
		conn:   conn,
	}

	mux.HandleFunc("/healthz", hs.handleHealthz)
	mux.HandleFunc("/readyz", hs.handleReadyz)

	return hs
}

// Start begins serving in the background.
func (s *HealthServer) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	return errCh
}

// Stop gracefully shuts the server down.
func (s *HealthServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HealthServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *HealthServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.conn != nil && s.conn.Connected() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("not ready"))
}
