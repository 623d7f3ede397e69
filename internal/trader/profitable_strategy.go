package trader

import (
	"fmt"

	"bitkub-trade-bot-go/internal/config"
)

// ProfitableStrategy is the RSI strategy gated on fees: it never buys when
// the round-trip cost eats the configured minimum profit margin.
type ProfitableStrategy struct {
	*RSIStrategy
	fees      FeeModel
	minMargin float64 // fraction
}

func NewProfitableStrategy(cfg config.Strategy) *ProfitableStrategy {
	return &ProfitableStrategy{
		RSIStrategy: NewRSIStrategy(cfg),
		fees:        NewFeeModel(cfg),
		minMargin:   cfg.MinProfitMarginPct / 100,
	}
}

func (s *ProfitableStrategy) Name() string {
	return "profitable"
}

func (s *ProfitableStrategy) ShouldBuy(snap Snapshot) Decision {
	if gain := s.fees.RequiredGain(); gain >= s.minMargin {
		return hold(fmt.Sprintf("fees %.2f%% exceed min margin %.2f%%", gain*100, s.minMargin*100))
	}
	d := s.RSIStrategy.ShouldBuy(snap)
	if d.Action == ActionBuy {
		d.Reason = fmt.Sprintf("%s, break-even %.2f", d.Reason, s.fees.BreakEvenPrice(snap.Price, ActionBuy.String()))
	}
	return d
}
