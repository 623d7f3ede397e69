package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bitkub-trade-bot-go/internal/bitkub"
	"bitkub-trade-bot-go/internal/config"
	"bitkub-trade-bot-go/internal/database"
	"bitkub-trade-bot-go/internal/indicators"
	"bitkub-trade-bot-go/internal/models"
	"bitkub-trade-bot-go/internal/tracing"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	// ErrEmergencyStop is returned by Run when the daily loss cap is hit.
	ErrEmergencyStop = errors.New("emergency stop")
	// ErrTooManyErrors is returned by Run after too many failed iterations in a row.
	ErrTooManyErrors = errors.New("too many consecutive errors")
)

// TickerSource supplies streamed prices.
type TickerSource interface {
	Latest(maxAge time.Duration) (bitkub.Ticker, bool)
}

// Engine is the core trading engine that polls one market and trades it.
type Engine struct {
	UUID      string
	Name      string
	StartTime time.Time

	logger   *zap.Logger
	cfg      *config.Config
	client   bitkub.RestClientInterface
	store    *database.Store
	strategy Strategy
	fees     FeeModel
	executor OrderExecutor
	session  *Session
	history  *indicators.PriceHistory
	events   *EventBus
	stream   TickerSource
	symbol   string

	errBackoff *backoff.Backoff

	mu        sync.RWMutex
	lastPrice float64
	lastRSI   float64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates a new trading engine.
func NewEngine(logger *zap.Logger, cfg *config.Config, client bitkub.RestClientInterface, store *database.Store, executor OrderExecutor) (*Engine, error) {
	strategy, err := NewStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	symbol := bitkub.NormalizeSymbol(cfg.Trading.Symbol)
	historySize := cfg.Trading.HistorySize
	if minSize := cfg.Strategy.RSIPeriod + 1; historySize < minSize {
		historySize = minSize
	}

	return &Engine{
		UUID:       uuid.NewString(),
		Name:       fmt.Sprintf("%s-%s", strategy.Name(), symbol),
		StartTime:  time.Now(),
		logger:     logger.Named("engine").With(zap.String("symbol", symbol)),
		cfg:        cfg,
		client:     client,
		store:      store,
		strategy:   strategy,
		fees:       NewFeeModel(cfg.Strategy),
		executor:   executor,
		session:    NewSession(),
		history:    indicators.NewPriceHistory(historySize),
		events:     NewEventBus(256),
		symbol:     symbol,
		errBackoff: &backoff.Backoff{Min: time.Second, Max: time.Minute, Factor: 2, Jitter: true},
		now:        time.Now,
		sleep:      sleepContext,
	}, nil
}

// SetTickerSource makes the engine prefer streamed prices over REST polling.
func (e *Engine) SetTickerSource(src TickerSource) {
	e.stream = src
}

// Events returns the engine event channel. It is closed when Run returns.
func (e *Engine) Events() <-chan Event {
	return e.events.Events()
}

// Session returns a copy of the current session state.
func (e *Engine) Session() SessionState {
	return e.session.State()
}

// Strategy returns the active strategy.
func (e *Engine) Strategy() Strategy {
	return e.strategy
}

// Market returns the last seen price and RSI.
func (e *Engine) Market() (price, rsi float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastPrice, e.lastRSI
}

// Run reconciles persisted state and then ticks until ctx is cancelled.
// It returns nil on cancellation, or ErrEmergencyStop / ErrTooManyErrors.
func (e *Engine) Run(ctx context.Context) error {
	defer e.events.Close()

	e.logger.Info("Initializing trading engine...",
		zap.String("uuid", e.UUID),
		zap.String("strategy", e.strategy.Name()),
		zap.Bool("paper", e.executor.Paper()),
	)
	if err := e.Reconcile(ctx); err != nil {
		return fmt.Errorf("failed to reconcile state: %w", err)
	}
	e.logger.Info("Engine initialized successfully.")

	interval := time.Duration(e.cfg.Trading.Interval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting trading loop", zap.Duration("interval", interval))

	for {
		if err := e.Tick(ctx); err != nil {
			if errors.Is(err, ErrEmergencyStop) || errors.Is(err, ErrTooManyErrors) {
				e.logger.Error("Stopping trading engine", zap.Error(err))
				return err
			}
			if ctx.Err() == nil {
				e.logger.Error("Iteration failed", zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine...")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one iteration of the trading loop.
func (e *Engine) Tick(ctx context.Context) (err error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.Tick", attribute.String("symbol", e.symbol))
	defer func() { tracing.End(span, err) }()

	now := e.now()
	if e.session.RollDay(now) {
		e.logger.Info("New trading day, daily counters reset", zap.String("day", dayKey(now)))
	}

	state := e.session.State()
	if e.lossCapReached(state) {
		return e.emergencyStop(ctx, e.lossReason(state))
	}
	// The trade cap only blocks entries. An open position keeps its exits.
	if limit := e.cfg.Risk.MaxDailyTrades; state.Position == nil && limit > 0 && state.DailyTrades >= limit {
		pause := time.Duration(e.cfg.Risk.CapSleep) * time.Second
		e.logger.Warn("Daily trade limit reached, pausing", zap.Int("daily_trades", state.DailyTrades), zap.Duration("pause", pause))
		e.publish(Event{Type: EventPaused, Reason: "daily trade limit reached"})
		return e.sleep(ctx, pause)
	}

	ticker, err := e.fetchTicker(ctx)
	if err != nil {
		return e.handleFetchError(ctx, err)
	}
	e.session.ResetErrors()
	e.errBackoff.Reset()

	price := ticker.Last
	e.history.Push(price)
	e.recordMarketData(now, ticker)

	prices := e.history.Values()
	rsi := indicators.RSI(prices, e.cfg.Strategy.RSIPeriod)
	e.mu.Lock()
	e.lastPrice, e.lastRSI = price, rsi
	e.mu.Unlock()

	l := e.logger.With(zap.Float64("price", price), zap.Float64("rsi", rsi))

	minInterval := time.Duration(e.cfg.Trading.MinTradeInterval) * time.Second
	if !state.LastTradeAt.IsZero() && now.Sub(state.LastTradeAt) < minInterval {
		l.Debug("Within minimum trade interval, skipping decision",
			zap.Duration("since_last_trade", now.Sub(state.LastTradeAt)))
		e.publish(Event{Type: EventTick, Price: price, RSI: rsi, Reason: "cooldown"})
		return nil
	}

	snap := Snapshot{
		Now:         now,
		Symbol:      e.symbol,
		Price:       price,
		Prices:      prices,
		RSI:         rsi,
		TradeAmount: e.cfg.Trading.TradeAmount,
		Position:    state.Position,
	}

	if state.Position == nil {
		err = e.tryBuy(ctx, l, snap)
	} else {
		err = e.trySell(ctx, l, snap)
	}
	if err != nil {
		return err
	}

	if after := e.session.State(); e.lossCapReached(after) {
		return e.emergencyStop(ctx, e.lossReason(after))
	}

	e.publish(Event{Type: EventTick, Price: price, RSI: rsi})
	return nil
}

func (e *Engine) fetchTicker(ctx context.Context) (bitkub.Ticker, error) {
	if e.stream != nil {
		maxAge := time.Duration(e.cfg.Trading.StreamMaxAge) * time.Second
		if t, ok := e.stream.Latest(maxAge); ok && t.Last > 0 {
			return t, nil
		}
		e.logger.Debug("Streamed price is stale, falling back to REST")
	}

	t, err := e.client.GetTicker(ctx, e.symbol)
	if err != nil {
		return bitkub.Ticker{}, err
	}
	if t.Last <= 0 {
		return bitkub.Ticker{}, fmt.Errorf("invalid last price %v for %s", t.Last, e.symbol)
	}
	return *t, nil
}

func (e *Engine) handleFetchError(ctx context.Context, err error) error {
	n := e.session.RecordError()
	e.publish(Event{Type: EventError, Reason: err.Error()})

	if limit := e.cfg.Risk.MaxConsecutiveErrors; limit > 0 && n >= limit {
		e.publish(Event{Type: EventAborted, Reason: err.Error()})
		return fmt.Errorf("%w: %d failures in a row, last: %w", ErrTooManyErrors, n, err)
	}

	delay := e.errBackoff.Duration()
	e.logger.Warn("Failed to fetch ticker",
		zap.Error(err),
		zap.Int("consecutive_errors", n),
		zap.Int("error_code", bitkub.CodeOf(err)),
		zap.Duration("retry_after", delay),
	)
	return e.sleep(ctx, delay)
}

func (e *Engine) tryBuy(ctx context.Context, l *zap.Logger, snap Snapshot) error {
	bal, err := e.executor.Balance(ctx, e.symbol)
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}
	snap.BalanceTHB = bal.THB

	d := e.strategy.ShouldBuy(snap)
	e.recordSignal(snap, d)
	if d.Action != ActionBuy {
		l.Debug("No buy signal", zap.String("reason", d.Reason))
		return nil
	}

	l.Info("Buy signal", zap.String("reason", d.Reason), zap.Float64("thb", snap.TradeAmount))
	fill, err := e.executor.Buy(ctx, e.symbol, snap.TradeAmount, snap.Price)
	if err != nil {
		e.recordFailedTrade(snap.Now, snap.Price, models.SideBuy, 0, snap.TradeAmount, d.Reason)
		return fmt.Errorf("buy order failed: %w", err)
	}

	pos := Position{
		Symbol:     e.symbol,
		EntryPrice: fill.Price,
		Amount:     fill.Amount,
		CostTHB:    fill.TotalTHB,
		EntryTime:  snap.Now,
		OrderID:    fill.OrderID,
	}
	if err := e.session.Open(pos); err != nil {
		return err
	}
	e.recordTrade(snap.Now, models.SideBuy, fill, 0, d.Reason)

	l.Info("Position opened",
		zap.String("order_id", fill.OrderID),
		zap.Float64("entry_price", fill.Price),
		zap.Float64("amount", fill.Amount),
		zap.Float64("break_even", e.fees.BreakEvenPrice(fill.Price, ActionBuy.String())),
	)
	e.publish(Event{Type: EventBuy, Price: fill.Price, RSI: snap.RSI, Amount: fill.Amount, Reason: d.Reason})
	return nil
}

func (e *Engine) trySell(ctx context.Context, l *zap.Logger, snap Snapshot) error {
	d := e.strategy.ShouldSell(snap)
	e.recordSignal(snap, d)
	if d.Action != ActionSell {
		l.Debug("Holding position", zap.String("reason", d.Reason))
		return nil
	}

	l.Info("Sell signal", zap.String("reason", d.Reason))
	return e.closePosition(ctx, snap.Now, snap.Price, snap.RSI, d.Reason)
}

// closePosition sells the open position and books the realised net P&L.
func (e *Engine) closePosition(ctx context.Context, now time.Time, price, rsi float64, reason string) error {
	pos := e.session.State().Position
	if pos == nil {
		return errNoPosition
	}

	fill, err := e.executor.Sell(ctx, e.symbol, pos.Amount, price)
	if err != nil {
		e.recordFailedTrade(now, price, models.SideSell, pos.Amount, 0, reason)
		return fmt.Errorf("sell order failed: %w", err)
	}

	pnl, pct := e.fees.NetPnL(pos.EntryPrice, fill.Price, fill.Amount)
	if _, err := e.session.Close(pnl, now); err != nil {
		return err
	}
	e.recordTrade(now, models.SideSell, fill, pnl, reason)

	e.logger.Info("Position closed",
		zap.String("order_id", fill.OrderID),
		zap.Float64("entry_price", pos.EntryPrice),
		zap.Float64("exit_price", fill.Price),
		zap.Float64("pnl", pnl),
		zap.Float64("pnl_pct", pct),
		zap.String("reason", reason),
	)
	e.publish(Event{Type: EventSell, Price: fill.Price, RSI: rsi, Amount: fill.Amount, PnL: pnl, Reason: reason})
	return nil
}

func (e *Engine) lossCapReached(state SessionState) bool {
	limit := e.cfg.Risk.MaxDailyLoss
	return limit > 0 && -state.DailyPnL >= limit
}

func (e *Engine) lossReason(state SessionState) string {
	return fmt.Sprintf("daily loss %.2f THB reached limit %.2f THB", -state.DailyPnL, e.cfg.Risk.MaxDailyLoss)
}

// emergencyStop liquidates any open position and returns ErrEmergencyStop.
func (e *Engine) emergencyStop(ctx context.Context, reason string) error {
	e.logger.Error("EMERGENCY STOP", zap.String("reason", reason))

	var sellErr error
	if e.session.State().Position != nil {
		price, _ := e.Market()
		if t, err := e.fetchTicker(ctx); err == nil {
			price = t.Last
		}
		if price > 0 {
			sellErr = e.closePosition(ctx, e.now(), price, e.lastRSIValue(), "emergency stop")
		} else {
			sellErr = errors.New("no price available to liquidate position")
		}
		if sellErr != nil {
			e.logger.Error("Failed to liquidate position", zap.Error(sellErr))
		}
	}

	e.publish(Event{Type: EventEmergencyStop, Reason: reason})
	if sellErr != nil {
		return fmt.Errorf("%w: %s (liquidation failed: %w)", ErrEmergencyStop, reason, sellErr)
	}
	return fmt.Errorf("%w: %s", ErrEmergencyStop, reason)
}

func (e *Engine) lastRSIValue() float64 {
	_, rsi := e.Market()
	return rsi
}

func (e *Engine) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = e.now()
	}
	ev.Symbol = e.symbol
	ev.Paper = e.executor.Paper()
	if !e.events.Publish(ev) {
		e.logger.Debug("Event dropped", zap.String("type", string(ev.Type)))
	}
}

func (e *Engine) recordMarketData(now time.Time, t bitkub.Ticker) {
	row := &models.MarketData{
		Timestamp:     now.UnixMilli(),
		Symbol:        e.symbol,
		Last:          t.Last,
		Bid:           t.HighestBid,
		Ask:           t.LowestAsk,
		High24h:       t.High24hr,
		Low24h:        t.Low24hr,
		BaseVolume:    t.BaseVolume,
		PercentChange: t.PercentChange,
	}
	if err := e.store.RecordMarketData(row); err != nil {
		e.logger.Error("Failed to save market data", zap.Error(err))
	}
}

func (e *Engine) recordSignal(snap Snapshot, d Decision) {
	if d.Action == ActionHold && !e.cfg.Trading.LogHoldSignals {
		return
	}
	row := &models.TradingSignal{
		Timestamp: snap.Now.UnixMilli(),
		Symbol:    e.symbol,
		Action:    d.Action.String(),
		Reason:    d.Reason,
		Price:     snap.Price,
		RSI:       snap.RSI,
		Strategy:  e.strategy.Name(),
	}
	if err := e.store.RecordSignal(row); err != nil {
		e.logger.Error("Failed to save trading signal", zap.Error(err))
	}
}

func (e *Engine) recordTrade(now time.Time, side string, fill Fill, pnl float64, reason string) {
	trade := &models.Trade{
		Timestamp: now.UnixMilli(),
		Symbol:    e.symbol,
		Side:      side,
		Amount:    fill.Amount,
		Price:     fill.Price,
		TotalTHB:  fill.TotalTHB,
		OrderID:   fill.OrderID,
		Status:    fill.Status,
		PnL:       pnl,
		Fees:      fill.Fee,
		Reason:    reason,
		IsPaper:   e.executor.Paper(),
	}
	if err := e.store.RecordTrade(trade); err != nil {
		// The session already reflects the fill; only the audit row is lost.
		e.logger.Error("Failed to save trade record to database", zap.Error(err))
		return
	}
	e.logger.Info("Successfully saved trade record", zap.Uint("trade_id", trade.ID))
}

func (e *Engine) recordFailedTrade(now time.Time, price float64, side string, amount, totalTHB float64, reason string) {
	trade := &models.Trade{
		Timestamp: now.UnixMilli(),
		Symbol:    e.symbol,
		Side:      side,
		Amount:    amount,
		Price:     price,
		TotalTHB:  totalTHB,
		Status:    models.StatusFailed,
		Reason:    reason,
		IsPaper:   e.executor.Paper(),
	}
	if err := e.store.RecordTrade(trade); err != nil {
		e.logger.Error("Failed to save failed trade record", zap.Error(err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
