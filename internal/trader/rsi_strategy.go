package trader

import (
	"fmt"

	"bitkub-trade-bot-go/internal/config"
)

// RSIStrategy buys when RSI is oversold and exits on the shared rules.
type RSIStrategy struct {
	cfg   config.Strategy
	exits exitRules
}

func NewRSIStrategy(cfg config.Strategy) *RSIStrategy {
	return &RSIStrategy{cfg: cfg, exits: newExitRules(cfg)}
}

func (s *RSIStrategy) Name() string {
	return "rsi"
}

func (s *RSIStrategy) ShouldBuy(snap Snapshot) Decision {
	if snap.Position != nil {
		return hold("position already open")
	}
	if snap.BalanceTHB < snap.TradeAmount {
		return hold(fmt.Sprintf("insufficient balance %.2f THB", snap.BalanceTHB))
	}
	if snap.RSI >= s.cfg.RSIOversold {
		return hold(fmt.Sprintf("rsi %.1f not oversold", snap.RSI))
	}
	if s.cfg.BollingerConfirm && !belowLowerBand(snap.Prices, snap.Price) {
		return hold(fmt.Sprintf("rsi %.1f oversold but price above lower band", snap.RSI))
	}
	return Decision{Action: ActionBuy, Reason: fmt.Sprintf("rsi oversold %.1f", snap.RSI)}
}

func (s *RSIStrategy) ShouldSell(snap Snapshot) Decision {
	return s.exits.evaluate(snap)
}
