package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uprootiny/arbitragefx-sub000/internal/events"
)

// StatusSnapshot is the read-only engine summary the status endpoint and
// WebSocket heartbeat report. The API layer never reads internal/engine.State
// directly — the reducer is single-writer and State is not safe for
// concurrent reads — so the caller that owns the reducer loop is
// responsible for producing this snapshot after each reduce.
type StatusSnapshot struct {
	Now         int64   `json:"now"`
	Halted      bool    `json:"halted"`
	HaltReason  string  `json:"halt_reason,omitempty"`
	Equity      float64 `json:"equity"`
	Cash        float64 `json:"cash"`
	TradesToday uint32  `json:"trades_today"`
}

// StatusProvider returns the most recent StatusSnapshot.
type StatusProvider func() StatusSnapshot

// BusStatsProvider returns the most recent events.Bus throughput counters.
type BusStatsProvider func() events.Stats

// MetricsHandler is the minimal surface internal/telemetry.Metrics exposes
// to the API server, kept as an interface to avoid a direct dependency.
type MetricsHandler interface {
	Handler() http.Handler
}

// Config configures the HTTP listener and CORS policy.
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// DefaultConfig returns sane listener defaults.
func DefaultConfig() Config {
	return Config{
		Host: "0.0.0.0", Port: 8080, AllowedOrigins: []string{"*"},
		ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second,
	}
}

// Server is the control-plane HTTP/WebSocket server: status, health and
// metrics endpoints plus a live event feed over the Hub.
type Server struct {
	logger     *zap.Logger
	cfg        Config
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	hub        *Hub
	metrics    MetricsHandler
	statusFn   StatusProvider
	busStatsFn BusStatsProvider
}

// NewServer wires routes for health/status/bus/metrics and the WebSocket
// feed. statusFn and busStatsFn are polled per-request, never cached.
func NewServer(logger *zap.Logger, cfg Config, hub *Hub, metrics MetricsHandler, statusFn StatusProvider, busStatsFn BusStatsProvider) *Server {
	s := &Server{
		logger:     logger.Named("api"),
		cfg:        cfg,
		router:     mux.NewRouter(),
		hub:        hub,
		metrics:    metrics,
		statusFn:   statusFn,
		busStatsFn: busStatsFn,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/v1/bus", s.handleBusStats).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.statusFn())
}

func (s *Server) handleBusStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.busStatsFn())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.NewString(), s.hub, conn)
	s.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}

// ServeHTTP lets Server be exercised directly in tests without going
// through the CORS wrapper Start applies.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Start runs the HTTP server; blocks until it exits.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("starting api server", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
