package trader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bitkub-trade-bot-go/internal/models"

	"go.uber.org/zap"
)

// minHeldRatio is the share of a restored position the wallet must still
// hold for the position to be trusted after a restart.
const minHeldRatio = 0.99

// tradeReplayer is implemented by executors that track a virtual balance.
type tradeReplayer interface {
	Replay(trades []models.Trade)
}

// Reconcile restores the session from the trade log and checks it against
// the exchange. It runs once before the trading loop starts.
func (e *Engine) Reconcile(ctx context.Context) error {
	now := e.now()
	paper := e.executor.Paper()
	l := e.logger.With(zap.Bool("paper", paper))

	y, m, d := now.Local().Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, time.Local)

	today, err := e.store.TradesSince(e.symbol, dayStart, paper)
	if err != nil {
		return err
	}
	var dailyPnL float64
	for _, t := range today {
		if t.Side == models.SideSell {
			dailyPnL += t.PnL
		}
	}

	if replayer, ok := e.executor.(tradeReplayer); ok {
		all, err := e.store.TradesSince(e.symbol, time.Time{}, paper)
		if err != nil {
			return err
		}
		replayer.Replay(all)
		bal, _ := e.executor.Balance(ctx, e.symbol)
		l.Info("Rebuilt paper balance from trade log",
			zap.Int("trades", len(all)),
			zap.Float64("thb", bal.THB),
			zap.Float64("coin", bal.Coin),
		)
	}

	last, err := e.store.LastTrade(e.symbol, paper)
	if err != nil {
		return err
	}

	var pos *Position
	var lastTradeAt time.Time
	if last != nil {
		lastTradeAt = time.UnixMilli(last.Timestamp)
		if last.Side == models.SideBuy {
			pos, err = e.restorePosition(ctx, l, last)
			if err != nil {
				return err
			}
		}
	}

	e.session.Restore(now, len(today), dailyPnL, lastTradeAt, pos)
	l.Info("Restored session from trade log",
		zap.Int("daily_trades", len(today)),
		zap.Float64("daily_pnl", dailyPnL),
		zap.Bool("position", pos != nil),
	)

	if !paper {
		return e.reconcileOpenOrders(ctx, l)
	}
	return nil
}

func (e *Engine) restorePosition(ctx context.Context, l *zap.Logger, last *models.Trade) (*Position, error) {
	pos := &Position{
		Symbol:     e.symbol,
		EntryPrice: last.Price,
		Amount:     last.Amount,
		CostTHB:    last.TotalTHB,
		EntryTime:  time.UnixMilli(last.Timestamp),
		OrderID:    last.OrderID,
	}

	if _, ok := e.executor.(tradeReplayer); ok {
		l.Info("Restored open paper position", zap.Float64("amount", pos.Amount), zap.Float64("entry_price", pos.EntryPrice))
		return pos, nil
	}

	bal, err := e.executor.Balance(ctx, e.symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to verify restored position: %w", err)
	}
	if bal.Coin < pos.Amount*minHeldRatio {
		l.Warn("Dropping restored position, wallet no longer holds it",
			zap.Float64("expected", pos.Amount),
			zap.Float64("held", bal.Coin),
		)
		return nil, nil
	}
	l.Info("Restored open position", zap.Float64("amount", pos.Amount), zap.Float64("entry_price", pos.EntryPrice))
	return pos, nil
}

func (e *Engine) reconcileOpenOrders(ctx context.Context, l *zap.Logger) error {
	orders, err := e.client.GetMyOpenOrders(ctx, e.symbol)
	if err != nil {
		return fmt.Errorf("failed to list open orders: %w", err)
	}
	for _, o := range orders {
		ol := l.With(zap.String("order_id", o.ID.String()), zap.String("side", o.Side), zap.Float64("amount", o.AmountFloat()))
		if !e.cfg.Trading.CancelStaleOrders {
			ol.Warn("Found open order from a previous run, leaving it in place")
			continue
		}
		if err := e.client.CancelOrder(ctx, e.symbol, o.ID.String(), strings.ToLower(o.Side)); err != nil {
			ol.Error("Failed to cancel stale order", zap.Error(err))
			continue
		}
		ol.Info("Cancelled stale order")
	}
	return nil
}
