package trader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// APIServer provides an HTTP interface for the trading engine.
type APIServer struct {
	server *http.Server
	engine *Engine
	logger *zap.Logger
}

// StatusResponse is the body of /status.
type StatusResponse struct {
	UUID      string       `json:"uuid"`
	Name      string       `json:"name"`
	Strategy  string       `json:"strategy"`
	Symbol    string       `json:"symbol"`
	Paper     bool         `json:"paper"`
	StartTime string       `json:"start_time"`
	Uptime    string       `json:"uptime"`
	LastPrice float64      `json:"last_price"`
	RSI       float64      `json:"rsi"`
	Session   SessionState `json:"session"`
}

// NewAPIServer creates a new APIServer listening on port.
func NewAPIServer(engine *Engine, port int, logger *zap.Logger) *APIServer {
	s := &APIServer{
		engine: engine,
		logger: logger.Named("api-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/health", s.healthHandler)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the routes, mainly for tests.
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	e := s.engine
	price, rsi := e.Market()
	status := StatusResponse{
		UUID:      e.UUID,
		Name:      e.Name,
		Strategy:  e.strategy.Name(),
		Symbol:    e.symbol,
		Paper:     e.executor.Paper(),
		StartTime: e.StartTime.Format(time.RFC3339),
		Uptime:    e.now().Sub(e.StartTime).Round(time.Second).String(),
		LastPrice: price,
		RSI:       rsi,
		Session:   e.Session(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("Failed to write status response", zap.Error(err))
		http.Error(w, "Failed to encode status", http.StatusInternalServerError)
	}
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}
