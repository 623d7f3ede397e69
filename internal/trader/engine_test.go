package trader

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bitkub-trade-bot-go/internal/bitkub"
	"bitkub-trade-bot-go/internal/config"
	"bitkub-trade-bot-go/internal/database"
	"bitkub-trade-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockRestClient is a mock implementation of the RestClientInterface.
type MockRestClient struct {
	mock.Mock
}

var _ bitkub.RestClientInterface = (*MockRestClient)(nil)

func (m *MockRestClient) GetServerTime(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRestClient) GetStatus(ctx context.Context) ([]bitkub.EndpointStatus, error) {
	args := m.Called(ctx)
	statuses, _ := args.Get(0).([]bitkub.EndpointStatus)
	return statuses, args.Error(1)
}

func (m *MockRestClient) GetTicker(ctx context.Context, symbol string) (*bitkub.Ticker, error) {
	args := m.Called(ctx, symbol)
	ticker, _ := args.Get(0).(*bitkub.Ticker)
	return ticker, args.Error(1)
}

func (m *MockRestClient) GetWallet(ctx context.Context) (map[string]float64, error) {
	args := m.Called(ctx)
	wallet, _ := args.Get(0).(map[string]float64)
	return wallet, args.Error(1)
}

func (m *MockRestClient) PlaceBid(ctx context.Context, req bitkub.OrderRequest) (*bitkub.OrderResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*bitkub.OrderResult)
	return res, args.Error(1)
}

func (m *MockRestClient) PlaceAsk(ctx context.Context, req bitkub.OrderRequest) (*bitkub.OrderResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*bitkub.OrderResult)
	return res, args.Error(1)
}

func (m *MockRestClient) CancelOrder(ctx context.Context, symbol, orderID, side string) error {
	args := m.Called(ctx, symbol, orderID, side)
	return args.Error(0)
}

func (m *MockRestClient) GetMyOpenOrders(ctx context.Context, symbol string) ([]bitkub.OpenOrder, error) {
	args := m.Called(ctx, symbol)
	orders, _ := args.Get(0).([]bitkub.OpenOrder)
	return orders, args.Error(1)
}

// MockExecutor is a mock implementation of the OrderExecutor.
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Buy(ctx context.Context, symbol string, thb, price float64) (Fill, error) {
	args := m.Called(ctx, symbol, thb, price)
	return args.Get(0).(Fill), args.Error(1)
}

func (m *MockExecutor) Sell(ctx context.Context, symbol string, amount, price float64) (Fill, error) {
	args := m.Called(ctx, symbol, amount, price)
	return args.Get(0).(Fill), args.Error(1)
}

func (m *MockExecutor) Balance(ctx context.Context, symbol string) (Balances, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(Balances), args.Error(1)
}

func (m *MockExecutor) Paper() bool {
	return m.Called().Bool(0)
}

// fakeSource is a TickerSource returning a fixed ticker.
type fakeSource struct {
	ticker bitkub.Ticker
	fresh  bool
}

func (f *fakeSource) Latest(time.Duration) (bitkub.Ticker, bool) {
	return f.ticker, f.fresh
}

type testEnv struct {
	engine *Engine
	client *MockRestClient
	store  *database.Store
	now    time.Time
	sleeps []time.Duration
}

// advance moves the fake clock used by the engine.
func (env *testEnv) advance(d time.Duration) {
	env.now = env.now.Add(d)
}

func testConfig() *config.Config {
	return &config.Config{
		Trading: config.Trading{
			Symbol:       "THB_BTC",
			TradeAmount:  1000,
			Interval:     3600,
			PaperTrading: true,
			PaperBalance: 10000,
			HistorySize:  100,
		},
		Strategy: config.DefaultStrategy(),
		Risk: config.Risk{
			MaxDailyTrades:       10,
			MaxDailyLoss:         500,
			MaxConsecutiveErrors: 3,
			CapSleep:             60,
		},
	}
}

// setupTest creates an engine with a mock client, a fake clock and a
// fresh SQLite database. A nil executor means a paper executor.
func setupTest(t *testing.T, cfg *config.Config, executor OrderExecutor) *testEnv {
	db, err := database.NewDatabase(&config.Database{DSN: filepath.Join(t.TempDir(), "trades.db")})
	require.NoError(t, err)

	if executor == nil {
		executor = NewPaperExecutor(cfg.Trading.PaperBalance, NewFeeModel(cfg.Strategy))
	}

	env := &testEnv{
		client: new(MockRestClient),
		store:  database.NewStore(db),
		now:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local),
	}
	engine, err := NewEngine(zap.NewNop(), cfg, env.client, env.store, executor)
	require.NoError(t, err)
	engine.now = func() time.Time { return env.now }
	engine.sleep = func(ctx context.Context, d time.Duration) error {
		env.sleeps = append(env.sleeps, d)
		return ctx.Err()
	}
	env.engine = engine
	return env
}

func (env *testEnv) expectPrice(p float64) {
	env.client.On("GetTicker", mock.Anything, "btc_thb").Return(&bitkub.Ticker{Last: p, HighestBid: p - 0.05, LowestAsk: p + 0.05}, nil).Once()
}

// holdPaper puts amount coins bought for cost THB into the paper balance.
func holdPaper(env *testEnv, amount, cost float64) {
	env.engine.executor.(*PaperExecutor).Replay([]models.Trade{{
		Side: models.SideBuy, Amount: amount, TotalTHB: cost, Status: models.StatusPaper, IsPaper: true,
	}})
}

func trades(t *testing.T, store *database.Store) []models.Trade {
	rows, err := store.RecentTrades(100)
	require.NoError(t, err)
	// oldest first
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows
}

// scenarioPrices drifts down to an oversold RSI at index 22 (95.0) and
// recovers past the take-profit level at index 28 (97.1).
var scenarioPrices = []float64{
	100.0, 99.4, 99.7, 99.1, 99.4, 98.8, 99.1, 98.5, 98.8, 98.2, 98.5,
	97.9, 98.2, 97.6, 97.9, 97.3, 97.6, 97.0, 97.3, 96.7, 97.0, 96.0,
	95.0, 95.35, 95.7, 96.05, 96.4, 96.75, 97.1, 97.45, 97.8, 97.85,
}

func TestEngine_PaperRoundTrip(t *testing.T) {
	env := setupTest(t, testConfig(), nil)
	ctx := context.Background()
	start := env.now

	for _, p := range scenarioPrices {
		env.expectPrice(p)
	}
	for i := range scenarioPrices {
		require.NoError(t, env.engine.Tick(ctx), "tick %d", i)
		env.advance(30 * time.Second)
	}
	env.client.AssertExpectations(t)

	rows := trades(t, env.store)
	require.Len(t, rows, 2)

	buy, sell := rows[0], rows[1]
	assert.Equal(t, models.SideBuy, buy.Side)
	assert.Equal(t, 95.0, buy.Price)
	assert.InDelta(t, 10.5, buy.Amount, 1e-9)
	assert.Equal(t, 1000.0, buy.TotalTHB)
	assert.Equal(t, models.StatusPaper, buy.Status)
	assert.True(t, buy.IsPaper)
	assert.Equal(t, start.Add(22*30*time.Second).UnixMilli(), buy.Timestamp)
	assert.Contains(t, buy.Reason, "rsi oversold 24.3")

	assert.Equal(t, models.SideSell, sell.Side)
	assert.Equal(t, 97.1, sell.Price)
	assert.True(t, strings.HasPrefix(sell.Reason, "take profit"), sell.Reason)
	assert.InDelta(t, 17.007375, sell.PnL, 1e-6)

	st := env.engine.Session()
	assert.Nil(t, st.Position)
	assert.Equal(t, 2, st.DailyTrades)
	assert.InDelta(t, 17.007375, st.DailyPnL, 1e-6)

	bal, err := env.engine.executor.Balance(ctx, "btc_thb")
	require.NoError(t, err)
	assert.InDelta(t, 10017.001125, bal.THB, 1e-6)

	var marketRows int64
	require.NoError(t, env.store.DB().Model(&models.MarketData{}).Count(&marketRows).Error)
	assert.Equal(t, int64(len(scenarioPrices)), marketRows)

	signals, err := env.store.RecentSignals(10)
	require.NoError(t, err)
	require.Len(t, signals, 2, "hold decisions are not logged by default")
	assert.Equal(t, "sell", signals[0].Action)
	assert.Equal(t, "buy", signals[1].Action)

	price, rsi := env.engine.Market()
	assert.Equal(t, 97.85, price)
	assert.Greater(t, rsi, 50.0)

	var types []EventType
	for len(env.engine.Events()) > 0 {
		ev := <-env.engine.Events()
		if ev.Type != EventTick {
			types = append(types, ev.Type)
		}
	}
	assert.Equal(t, []EventType{EventBuy, EventSell}, types)
}

func TestEngine_FetchErrorsAbort(t *testing.T) {
	env := setupTest(t, testConfig(), nil)
	ctx := context.Background()

	apiErr := &bitkub.TransportError{Op: "GET /api/market/ticker", Err: errors.New("connection refused")}
	env.client.On("GetTicker", mock.Anything, "btc_thb").Return(nil, apiErr)

	require.NoError(t, env.engine.Tick(ctx))
	require.NoError(t, env.engine.Tick(ctx))
	assert.Len(t, env.sleeps, 2, "each failure backs off")
	assert.Equal(t, 2, env.engine.Session().ConsecutiveErrors)

	err := env.engine.Tick(ctx)
	assert.ErrorIs(t, err, ErrTooManyErrors)
	assert.True(t, bitkub.IsTransport(err))
}

func TestEngine_SuccessResetsErrors(t *testing.T) {
	env := setupTest(t, testConfig(), nil)
	ctx := context.Background()

	env.client.On("GetTicker", mock.Anything, "btc_thb").Return(nil, errors.New("timeout")).Once()
	env.expectPrice(100)

	require.NoError(t, env.engine.Tick(ctx))
	assert.Equal(t, 1, env.engine.Session().ConsecutiveErrors)
	require.NoError(t, env.engine.Tick(ctx))
	assert.Zero(t, env.engine.Session().ConsecutiveErrors)
}

func TestEngine_DailyTradeCapPauses(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.MaxDailyTrades = 2
	env := setupTest(t, cfg, nil)
	env.engine.session.Restore(env.now, 2, 0, env.now.Add(-time.Hour), nil)

	require.NoError(t, env.engine.Tick(context.Background()))
	assert.Equal(t, []time.Duration{time.Minute}, env.sleeps)
	env.client.AssertNotCalled(t, "GetTicker", mock.Anything, mock.Anything)

	ev := <-env.engine.Events()
	assert.Equal(t, EventPaused, ev.Type)
}

func TestEngine_DailyTradeCapStillSells(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.MaxDailyTrades = 10
	cfg.Risk.MaxDailyLoss = 0
	env := setupTest(t, cfg, nil)
	ctx := context.Background()

	holdPaper(env, 10, 1000)
	env.engine.session.Restore(env.now, 10, 0, env.now.Add(-time.Hour),
		&Position{Symbol: "btc_thb", EntryPrice: 100, Amount: 10, CostTHB: 1000, EntryTime: env.now.Add(-time.Hour)})

	env.expectPrice(50)
	require.NoError(t, env.engine.Tick(ctx))
	assert.Empty(t, env.sleeps)
	assert.Nil(t, env.engine.Session().Position)

	rows := trades(t, env.store)
	require.Len(t, rows, 1)
	assert.Equal(t, models.SideSell, rows[0].Side)
	assert.Contains(t, rows[0].Reason, "stop loss")

	// flat and still at the cap: the next tick pauses without fetching
	require.NoError(t, env.engine.Tick(ctx))
	assert.Equal(t, []time.Duration{time.Minute}, env.sleeps)
	env.client.AssertExpectations(t)
}

func TestEngine_NewDayResetsCap(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.MaxDailyTrades = 2
	env := setupTest(t, cfg, nil)
	env.engine.session.Restore(env.now, 2, -100, env.now.Add(-time.Hour), nil)

	env.advance(24 * time.Hour)
	env.expectPrice(100)
	require.NoError(t, env.engine.Tick(context.Background()))
	assert.Empty(t, env.sleeps)
	assert.Zero(t, env.engine.Session().DailyTrades)
	env.client.AssertExpectations(t)
}

func TestEngine_MinTradeInterval(t *testing.T) {
	cfg := testConfig()
	cfg.Trading.MinTradeInterval = 300
	cfg.Trading.LogHoldSignals = true
	env := setupTest(t, cfg, nil)
	env.engine.session.Restore(env.now, 1, 0, env.now.Add(-time.Minute), nil)
	ctx := context.Background()

	env.expectPrice(100)
	require.NoError(t, env.engine.Tick(ctx))
	signals, err := env.store.RecentSignals(10)
	require.NoError(t, err)
	assert.Empty(t, signals, "no decision inside the trade interval")
	assert.Equal(t, 1, env.engine.history.Len(), "history is still refreshed")

	env.advance(5 * time.Minute)
	env.expectPrice(100)
	require.NoError(t, env.engine.Tick(ctx))
	signals, err = env.store.RecentSignals(10)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "hold", signals[0].Action)
}

func TestEngine_EmergencyStopLiquidates(t *testing.T) {
	cfg := testConfig()
	env := setupTest(t, cfg, nil)
	ctx := context.Background()

	require.NoError(t, env.store.RecordTrade(&models.Trade{
		Timestamp: env.now.Add(-2 * time.Hour).UnixMilli(), Symbol: "btc_thb", Side: models.SideSell,
		Status: models.StatusPaper, IsPaper: true, PnL: -600,
	}))
	require.NoError(t, env.store.RecordTrade(&models.Trade{
		Timestamp: env.now.Add(-time.Hour).UnixMilli(), Symbol: "btc_thb", Side: models.SideBuy,
		Price: 100000, Amount: 0.01, TotalTHB: 1000, Status: models.StatusPaper, IsPaper: true,
	}))
	env.expectPrice(99000)

	err := env.engine.Run(ctx)
	assert.ErrorIs(t, err, ErrEmergencyStop)

	rows := trades(t, env.store)
	require.Len(t, rows, 3)
	last := rows[2]
	assert.Equal(t, models.SideSell, last.Side)
	assert.Equal(t, "emergency stop", last.Reason)
	assert.Equal(t, 99000.0, last.Price)
	assert.Nil(t, env.engine.Session().Position)

	var types []EventType
	for ev := range env.engine.Events() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{EventSell, EventEmergencyStop}, types)
}

func TestEngine_LossAfterSellStops(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.MaxDailyLoss = 10
	env := setupTest(t, cfg, nil)
	ctx := context.Background()

	holdPaper(env, 10, 1000)
	env.engine.session.Restore(env.now, 1, 0, env.now.Add(-time.Hour),
		&Position{Symbol: "btc_thb", EntryPrice: 100, Amount: 10, CostTHB: 1000, EntryTime: env.now.Add(-time.Hour)})

	env.expectPrice(97)
	err := env.engine.Tick(ctx)
	assert.ErrorIs(t, err, ErrEmergencyStop)
	assert.Less(t, env.engine.Session().DailyPnL, -10.0)
}

func TestEngine_BuyFailureIsRecorded(t *testing.T) {
	executor := new(MockExecutor)
	executor.On("Paper").Return(false)
	executor.On("Balance", mock.Anything, "btc_thb").Return(Balances{THB: 10000}, nil)
	executor.On("Buy", mock.Anything, "btc_thb", 1000.0, 95.0).Return(Fill{}, ErrInsufficientBalance).Once()

	env := setupTest(t, testConfig(), executor)
	for _, p := range scenarioPrices[:22] {
		env.engine.history.Push(p)
	}

	env.expectPrice(95)
	err := env.engine.Tick(context.Background())
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Nil(t, env.engine.Session().Position)

	rows := trades(t, env.store)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusFailed, rows[0].Status)
	assert.Equal(t, 1000.0, rows[0].TotalTHB)
	executor.AssertExpectations(t)
}

func TestEngine_StreamPrice(t *testing.T) {
	env := setupTest(t, testConfig(), nil)
	source := &fakeSource{ticker: bitkub.Ticker{Last: 123}, fresh: true}
	env.engine.SetTickerSource(source)
	ctx := context.Background()

	require.NoError(t, env.engine.Tick(ctx))
	env.client.AssertNotCalled(t, "GetTicker", mock.Anything, mock.Anything)
	price, _ := env.engine.Market()
	assert.Equal(t, 123.0, price)

	source.fresh = false
	env.expectPrice(124)
	require.NoError(t, env.engine.Tick(ctx))
	price, _ = env.engine.Market()
	assert.Equal(t, 124.0, price)
	env.client.AssertExpectations(t)
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	env := setupTest(t, testConfig(), nil)
	env.client.On("GetTicker", mock.Anything, "btc_thb").Return(&bitkub.Ticker{Last: 100}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.engine.Run(ctx) }()

	ev := <-env.engine.Events()
	assert.Equal(t, EventTick, ev.Type)
	assert.Equal(t, "btc_thb", ev.Symbol)
	assert.True(t, ev.Paper)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after cancel")
	}
	_, open := <-env.engine.Events()
	assert.False(t, open, "events are closed when Run returns")
}
