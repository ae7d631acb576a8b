// Package web provides an HTTP status server for the solenoid daemon.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/TheOriginalMrWolf/ESPHome-solenoid/internal/status"
)

// Server serves the switch status page over HTTP.
type Server struct {
	tracker    *status.Tracker
	httpServer *http.Server
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	return s
}

// routes wires the handler set: the HTML page at the root, its JSON twin,
// and a bare liveness probe.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.servePage)
	mux.HandleFunc("/index.html", s.servePage)
	mux.HandleFunc("/index.json", s.serveJSON)
	mux.HandleFunc("/healthz", s.serveHealth)
	return mux
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) servePage(w http.ResponseWriter, r *http.Request) {
	// The root pattern catches everything; anything but the page paths
	// is a miss.
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot())
}

func (s *Server) serveJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}
