// Package api exposes the match host's debug and observability surface: a
// read-only view of the running match plus Prometheus metrics and pprof.
// Nothing here can mutate the simulation — the lockstep owns it exclusively.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// MatchView is the snapshot the /state endpoint serves. The engine publishes
// a fresh one at each turn boundary; readers never touch live state.
type MatchView struct {
	MatchID     string   `json:"matchId"`
	Turn        uint32   `json:"turn"`
	Tick        uint32   `json:"tick"`
	Checksum    uint32   `json:"checksum"`
	State       string   `json:"state"`
	EntityCount int      `json:"entityCount"`
	Gold        []uint32 `json:"gold"`
	Players     []string `json:"players"`
}

// Server is the debug HTTP server.
type Server struct {
	router *chi.Mux

	mu   sync.RWMutex
	view MatchView
}

// NewServer builds the router. No listener is opened until Start; tests hit
// the router directly.
func NewServer() *Server {
	s := &Server{}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/state", s.handleState)
	mountObservability(r)

	s.router = r
	return s
}

// Router exposes the chi mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// PublishView swaps in a new match snapshot.
func (s *Server) PublishView(view MatchView) {
	s.mu.Lock()
	s.view = view
	s.mu.Unlock()
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	view := s.view
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		log.Printf("state encode failed: %v", err)
	}
}

// Start serves the debug API. Blocks; run it on its own goroutine.
func (s *Server) Start(addr string) error {
	log.Printf("debug api listening on %s", addr)
	return http.ListenAndServe(addr, s.router)
}
