package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"bitkub-trade-bot-go/internal/config"
	"bitkub-trade-bot-go/internal/database"
	"bitkub-trade-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupHandler(t *testing.T) (*http.ServeMux, *database.Store, time.Time) {
	db, err := database.NewDatabase(&config.Database{DSN: filepath.Join(t.TempDir(), "ui.db")})
	require.NoError(t, err)
	store := database.NewStore(db)

	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	h := NewAPIHandler(zap.NewNop(), store)
	h.now = func() time.Time { return now }

	mux := http.NewServeMux()
	h.Routes(mux)
	return mux, store, now
}

func get(t *testing.T, mux *http.ServeMux, url string, out any) {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestStatisticsHandler(t *testing.T) {
	mux, store, now := setupHandler(t)

	rows := []models.Trade{
		{Timestamp: now.Add(-48 * time.Hour).UnixMilli(), Side: models.SideSell, Status: models.StatusFilled, PnL: -10, Fees: 2},
		{Timestamp: now.Add(-2 * time.Hour).UnixMilli(), Side: models.SideBuy, Status: models.StatusFilled, Fees: 2},
		{Timestamp: now.Add(-time.Hour).UnixMilli(), Side: models.SideSell, Status: models.StatusFilled, PnL: 30, Fees: 2},
		{Timestamp: now.Add(-time.Minute).UnixMilli(), Side: models.SideSell, Status: models.StatusFailed, PnL: 0},
	}
	for i := range rows {
		rows[i].Symbol = "btc_thb"
		require.NoError(t, store.RecordTrade(&rows[i]))
	}

	var resp StatisticsResponse
	get(t, mux, "/api/statistics", &resp)

	assert.Equal(t, int64(2), resp.AllTime.TotalTrades)
	assert.Equal(t, int64(1), resp.AllTime.ProfitableTrades)
	assert.Equal(t, 0.5, resp.AllTime.WinRate)
	assert.Equal(t, 20.0, resp.AllTime.TotalProfit)
	assert.Equal(t, 30.0, resp.AllTime.BestTrade)
	assert.Equal(t, -10.0, resp.AllTime.WorstTrade)

	assert.Equal(t, int64(1), resp.Since24h.TotalTrades)
	assert.Equal(t, 1.0, resp.Since24h.WinRate)
	assert.Equal(t, 30.0, resp.Since24h.TotalProfit)
}

func TestTradesAndSignalsHandlers(t *testing.T) {
	mux, store, now := setupHandler(t)
	for i := 0; i < 3; i++ {
		ts := now.Add(time.Duration(i) * time.Minute).UnixMilli()
		require.NoError(t, store.RecordTrade(&models.Trade{Timestamp: ts, Symbol: "btc_thb", Side: models.SideBuy, Status: models.StatusPaper}))
		require.NoError(t, store.RecordSignal(&models.TradingSignal{Timestamp: ts, Symbol: "btc_thb", Action: "buy"}))
	}

	var trades []models.Trade
	get(t, mux, "/api/trades?limit=2", &trades)
	require.Len(t, trades, 2)
	assert.Greater(t, trades[0].Timestamp, trades[1].Timestamp)

	var signals []models.TradingSignal
	get(t, mux, "/api/signals?limit=abc", &signals)
	assert.Len(t, signals, 3)
}
