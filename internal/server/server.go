// Package server implements the chatbot HTTP server.
package server

import (
	"context"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/ryandam9/gemma-chatd/internal/chat"
	"github.com/ryandam9/gemma-chatd/internal/events"
)

// Server is the chatbot HTTP server. It is a thin transport over the
// chat service: every handler calls the service exactly once per
// logical user action and never touches the session store directly.
type Server struct {
	svc    *chat.Service
	bus    *events.Bus
	server *http.Server
	addr   string

	requestCount atomic.Int64
	started      time.Time
}

// New creates a new chatbot server. bus may be nil; the events
// endpoint then serves an empty stream that closes immediately.
func New(addr string, svc *chat.Service, bus *events.Bus) *Server {
	return &Server{
		svc:     svc,
		bus:     bus,
		addr:    addr,
		started: time.Now(),
	}
}

// Handler builds the routing table with middleware applied. Exposed
// separately from Start so tests can drive it through httptest.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/api/chat", s.handleChat).Methods("POST")
	router.HandleFunc("/api/history/{id}", s.handleHistory).Methods("GET")
	router.HandleFunc("/api/clear/{id}", s.handleClear).Methods("POST")
	router.HandleFunc("/api/sessions/count", s.handleSessionCount).Methods("GET")
	router.HandleFunc("/api/events", s.handleEvents).Methods("GET")
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/", s.handleIndex).Methods("GET")

	var handler http.Handler = router
	handler = s.loggingMiddleware(handler)
	handler = s.corsMiddleware(handler)
	return handler
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  1 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  1 * time.Minute,
	}

	log.Printf("chatbot server starting on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
