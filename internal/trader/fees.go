package trader

import "bitkub-trade-bot-go/internal/config"

// FeeModel holds the exchange fees and slippage buffer as fractions
// (0.0025 is 0.25%).
type FeeModel struct {
	MakerFee       float64
	TakerFee       float64
	SlippageBuffer float64
}

// NewFeeModel converts the percentage settings of cfg into a FeeModel.
func NewFeeModel(cfg config.Strategy) FeeModel {
	return FeeModel{
		MakerFee:       cfg.MakerFeePct / 100,
		TakerFee:       cfg.TakerFeePct / 100,
		SlippageBuffer: cfg.SlippagePct / 100,
	}
}

// RequiredGain is the round-trip cost a trade must beat, as a fraction.
func (f FeeModel) RequiredGain() float64 {
	return f.MakerFee + f.TakerFee + f.SlippageBuffer
}

// BreakEvenPrice returns the exit price that recovers all costs of a
// position entered at price. For a sell side it returns the lowest entry
// price that still breaks even when exiting at price.
func (f FeeModel) BreakEvenPrice(price float64, side string) float64 {
	if side == ActionSell.String() {
		return price * (1 - f.RequiredGain())
	}
	return price * (1 + f.RequiredGain())
}

// NetPnL returns the profit of a round trip after fees, in THB and as a
// percentage of the entry cost. The entry leg pays the taker fee and the
// exit leg the maker fee.
func (f FeeModel) NetPnL(entry, exit, amount float64) (pnl, pct float64) {
	gross := (exit - entry) * amount
	fees := entry*amount*f.TakerFee + exit*amount*f.MakerFee
	pnl = gross - fees

	cost := entry * amount
	if cost > 0 {
		pct = pnl / cost * 100
	}
	return pnl, pct
}
