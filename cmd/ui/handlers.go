package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"bitkub-trade-bot-go/internal/database"

	"go.uber.org/zap"
)

const defaultLimit = 100

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log   *zap.Logger
	store *database.Store
	now   func() time.Time
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, store *database.Store) *APIHandler {
	return &APIHandler{log: log, store: store, now: time.Now}
}

// Routes registers the API endpoints on mux.
func (h *APIHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/trades", h.TradesHandler)
	mux.HandleFunc("/api/signals", h.SignalsHandler)
	mux.HandleFunc("/api/statistics", h.StatisticsHandler)
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 || n > 1000 {
		return defaultLimit
	}
	return n
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to write response", zap.Error(err))
	}
}

// TradesHandler returns the most recent trades, newest first.
func (h *APIHandler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	trades, err := h.store.RecentTrades(limitParam(r))
	if err != nil {
		h.log.Error("Failed to get trades from database", zap.Error(err))
		http.Error(w, "Failed to get trades", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, trades)
}

// SignalsHandler returns the most recent strategy signals, newest first.
func (h *APIHandler) SignalsHandler(w http.ResponseWriter, r *http.Request) {
	signals, err := h.store.RecentSignals(limitParam(r))
	if err != nil {
		h.log.Error("Failed to get signals from database", zap.Error(err))
		http.Error(w, "Failed to get signals", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, signals)
}

// StatsDetail holds calculated statistics for a given period.
type StatsDetail struct {
	TotalTrades      int64   `json:"total_trades"`
	ProfitableTrades int64   `json:"profitable_trades"`
	WinRate          float64 `json:"win_rate"`
	TotalProfit      float64 `json:"total_profit"`
	TotalFees        float64 `json:"total_fees"`
	BestTrade        float64 `json:"best_trade"`
	WorstTrade       float64 `json:"worst_trade"`
}

func (s *StatsDetail) add(pnl, fees float64) {
	if s.TotalTrades == 0 || pnl > s.BestTrade {
		s.BestTrade = pnl
	}
	if s.TotalTrades == 0 || pnl < s.WorstTrade {
		s.WorstTrade = pnl
	}
	s.TotalTrades++
	if pnl > 0 {
		s.ProfitableTrades++
	}
	s.TotalProfit += pnl
	s.TotalFees += fees
}

func (s *StatsDetail) finish() {
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.ProfitableTrades) / float64(s.TotalTrades)
	}
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	Since24h StatsDetail `json:"since_24h"`
	AllTime  StatsDetail `json:"all_time"`
}

// StatisticsHandler calculates and returns statistics over closed round trips.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	sells, err := h.store.SellTrades()
	if err != nil {
		h.log.Error("Failed to get trades for statistics", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}

	since24h := h.now().Add(-24 * time.Hour)
	var resp StatisticsResponse
	for _, trade := range sells {
		resp.AllTime.add(trade.PnL, trade.Fees)
		if time.UnixMilli(trade.Timestamp).After(since24h) {
			resp.Since24h.add(trade.PnL, trade.Fees)
		}
	}
	resp.AllTime.finish()
	resp.Since24h.finish()

	h.writeJSON(w, resp)
}
