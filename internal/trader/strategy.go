package trader

import (
	"fmt"
	"strings"
	"time"

	"bitkub-trade-bot-go/internal/config"
)

// Action is what a strategy wants the engine to do.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

func (a Action) String() string { return string(a) }

// Decision is the outcome of one strategy evaluation.
type Decision struct {
	Action Action
	Reason string
}

func hold(reason string) Decision { return Decision{Action: ActionHold, Reason: reason} }

// Snapshot is the read-only market and account view a strategy decides on.
type Snapshot struct {
	Now         time.Time
	Symbol      string
	Price       float64
	Prices      []float64 // oldest first, includes Price
	RSI         float64
	BalanceTHB  float64
	TradeAmount float64
	Position    *Position
}

// Strategy defines the interface for a trading strategy.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// ShouldBuy is called while no position is open.
	ShouldBuy(s Snapshot) Decision

	// ShouldSell is called while a position is open.
	ShouldSell(s Snapshot) Decision
}

// NewStrategy builds the strategy selected by cfg.Name.
func NewStrategy(cfg config.Strategy) (Strategy, error) {
	switch strings.ToLower(cfg.Name) {
	case "rsi":
		return NewRSIStrategy(cfg), nil
	case "", "profitable":
		return NewProfitableStrategy(cfg), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Name)
	}
}
