// Package admin implements the operational HTTP surface: health, stats,
// and a best-effort websocket tap onto the Event stream. None of it sits on
// the trading path — a slow or malicious admin client can never apply
// backpressure to a Session or the Engine.
package admin

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"matchengine/internal/dispatcher"
	"matchengine/internal/engine"
)

// Aggregator is the read side of the components whose counters the /stats
// endpoint reports.
type Aggregator interface {
	SessionCount() int
	SessionsAccepted() uint64
	Listening() bool
}

// Config configures the admin surface. A zero-value Token disables bearer
// auth entirely (suitable only for local development).
type Config struct {
	Token       string
	CORSOrigins []string
}

// Server bundles the chi router with everything it reports on.
type Server struct {
	router     chi.Router
	engine     *engine.Engine
	dispatcher *dispatcher.Dispatcher
	supervisor Aggregator

	tokenHash []byte
	limiter   *rateLimiter
	upgrader  websocket.Upgrader
	startedAt time.Time
}

// New builds the admin router. Pass a nil supervisor in tests that don't
// need SessionCount wired.
func New(e *engine.Engine, d *dispatcher.Dispatcher, sup Aggregator, cfg Config) (*Server, error) {
	s := &Server{
		engine:     e,
		dispatcher: d,
		supervisor: sup,
		limiter:    newRateLimiter(30, 120, time.Minute),
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		startedAt:  time.Now(),
	}

	if cfg.Token != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Token), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		s.tokenHash = hash
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(s.limiter.middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins(cfg.CORSOrigins),
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/stats", s.handleStats)
		r.Get("/ws/events", s.handleEvents)
	})

	s.router = r
	return s, nil
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// Router exposes the built http.Handler for wiring into an http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenHash == nil {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if bcrypt.CompareHashAndPassword(s.tokenHash, []byte(parts[1])) != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Accepting     bool    `json:"accepting"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		Accepting:     s.supervisor != nil && s.supervisor.Listening(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type statsResponse struct {
	RequestsReceived uint64 `json:"requests_received"`
	EventsGenerated  uint64 `json:"events_generated"`
	SessionsAccepted uint64 `json:"sessions_accepted"`
	SessionsActive   int    `json:"sessions_active"`
	TradesExecuted   uint64 `json:"trades_executed"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		RequestsReceived: s.engine.Stats().RequestsReceived.Load(),
		EventsGenerated:  s.engine.Stats().EventsGenerated.Load(),
		TradesExecuted:   s.dispatcher.TradesExecuted(),
	}
	if s.supervisor != nil {
		resp.SessionsActive = s.supervisor.SessionCount()
		resp.SessionsAccepted = s.supervisor.SessionsAccepted()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
