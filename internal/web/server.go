// Package web serves the scheduler's status page, its JSON form and, when
// enabled, Prometheus metrics.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/dishwasher-scheduler/internal/status"
)

// Server is a read-only view over a status.Tracker.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New builds the routes. A nil metrics handler leaves /metrics unrouted.
func New(addr string, tracker *status.Tracker, metrics http.Handler) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.page)
	mux.HandleFunc("GET /index.html", s.page)
	mux.HandleFunc("GET /index.json", s.json)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe() error { return s.httpServer.ListenAndServe() }

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ln net.Listener) error { return s.httpServer.Serve(ln) }

func (s *Server) Shutdown(ctx context.Context) error { return s.httpServer.Shutdown(ctx) }

func (s *Server) page(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot())
}

func (s *Server) json(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}
