package trader

import (
	"fmt"
	"time"

	"bitkub-trade-bot-go/internal/config"
	"bitkub-trade-bot-go/internal/indicators"
)

// exitRules are the sell rules shared by every strategy. Percentages are
// in percent of the entry cost.
type exitRules struct {
	fees         FeeModel
	maxHold      time.Duration
	stopLoss     float64
	takeProfit   float64
	overbought   float64
	minRSIProfit float64
}

func newExitRules(cfg config.Strategy) exitRules {
	return exitRules{
		fees:         NewFeeModel(cfg),
		maxHold:      time.Duration(cfg.MaxHoldHours * float64(time.Hour)),
		stopLoss:     cfg.StopLossPct,
		takeProfit:   cfg.TakeProfitPct,
		overbought:   cfg.RSIOverbought,
		minRSIProfit: cfg.MinRSIExitProfitPct,
	}
}

// evaluate checks max hold, stop loss, take profit and the RSI exit, in
// that order.
func (r exitRules) evaluate(s Snapshot) Decision {
	pos := s.Position
	if pos == nil {
		return hold("no position")
	}

	if r.maxHold > 0 && s.Now.Sub(pos.EntryTime) >= r.maxHold {
		return Decision{Action: ActionSell, Reason: fmt.Sprintf("max hold %s reached", r.maxHold)}
	}

	_, pct := r.fees.NetPnL(pos.EntryPrice, s.Price, pos.Amount)
	switch {
	case pct <= -r.stopLoss:
		return Decision{Action: ActionSell, Reason: fmt.Sprintf("stop loss (%.2f%%)", pct)}
	case pct >= r.takeProfit:
		return Decision{Action: ActionSell, Reason: fmt.Sprintf("take profit (%.2f%%)", pct)}
	case s.RSI > r.overbought && pct > 0 && pct >= r.minRSIProfit:
		return Decision{Action: ActionSell, Reason: fmt.Sprintf("rsi overbought %.1f (%.2f%%)", s.RSI, pct)}
	}
	return hold(fmt.Sprintf("holding (%.2f%%)", pct))
}

// belowLowerBand reports whether price is at or under the 20-period
// Bollinger lower band. It is true when there is not enough history.
func belowLowerBand(prices []float64, price float64) bool {
	bands, ok := indicators.Bollinger(prices, 20, 2)
	if !ok {
		return true
	}
	return price <= bands.Lower
}
