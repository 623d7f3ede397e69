package trader

import (
	"context"
	"fmt"
	"sync"

	"bitkub-trade-bot-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaperExecutor simulates fills at the given market price and keeps a
// virtual THB and coin balance.
type PaperExecutor struct {
	mu      sync.Mutex
	fees    FeeModel
	initial decimal.Decimal
	thb     decimal.Decimal
	coin    decimal.Decimal
}

func NewPaperExecutor(balance float64, fees FeeModel) *PaperExecutor {
	b := decimal.NewFromFloat(balance)
	return &PaperExecutor{fees: fees, initial: b, thb: b}
}

func (p *PaperExecutor) Paper() bool { return true }

func (p *PaperExecutor) Buy(_ context.Context, _ string, thb, price float64) (Fill, error) {
	if price <= 0 {
		return Fill{}, fmt.Errorf("invalid price %v", price)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	spend := decimal.NewFromFloat(thb)
	if spend.GreaterThan(p.thb) {
		return Fill{}, fmt.Errorf("%w: need %s THB, have %s", ErrInsufficientBalance, spend, p.thb)
	}
	fee := spend.Mul(decimal.NewFromFloat(p.fees.TakerFee))
	coins := spend.Sub(fee).Div(decimal.NewFromFloat(price))

	p.thb = p.thb.Sub(spend)
	p.coin = p.coin.Add(coins)

	return Fill{
		OrderID:  uuid.NewString(),
		Price:    price,
		Amount:   coins.InexactFloat64(),
		TotalTHB: thb,
		Fee:      fee.InexactFloat64(),
		Status:   models.StatusPaper,
	}, nil
}

func (p *PaperExecutor) Sell(_ context.Context, _ string, amount, price float64) (Fill, error) {
	if price <= 0 {
		return Fill{}, fmt.Errorf("invalid price %v", price)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	coins := decimal.NewFromFloat(amount)
	if coins.GreaterThan(p.coin) {
		// float round trips may leave the position a hair above the balance
		if coins.Sub(p.coin).GreaterThan(decimal.New(1, -8)) {
			return Fill{}, fmt.Errorf("%w: need %s coin, have %s", ErrInsufficientBalance, coins, p.coin)
		}
		coins = p.coin
	}
	gross := coins.Mul(decimal.NewFromFloat(price))
	fee := gross.Mul(decimal.NewFromFloat(p.fees.MakerFee))
	net := gross.Sub(fee)

	p.coin = p.coin.Sub(coins)
	p.thb = p.thb.Add(net)

	return Fill{
		OrderID:  uuid.NewString(),
		Price:    price,
		Amount:   coins.InexactFloat64(),
		TotalTHB: net.InexactFloat64(),
		Fee:      fee.InexactFloat64(),
		Status:   models.StatusPaper,
	}, nil
}

func (p *PaperExecutor) Balance(_ context.Context, _ string) (Balances, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Balances{THB: p.thb.InexactFloat64(), Coin: p.coin.InexactFloat64()}, nil
}

// Replay rebuilds the virtual balance from the starting balance and every
// successful paper trade, oldest first.
func (p *PaperExecutor) Replay(trades []models.Trade) {
	p.mu.Lock()
	defer p.mu.Unlock()

	thb, coin := p.initial, decimal.Zero
	for _, t := range trades {
		if !t.IsPaper || t.Status == models.StatusFailed {
			continue
		}
		total := decimal.NewFromFloat(t.TotalTHB)
		amount := decimal.NewFromFloat(t.Amount)
		switch t.Side {
		case models.SideBuy:
			thb = thb.Sub(total)
			coin = coin.Add(amount)
		case models.SideSell:
			thb = thb.Add(total)
			coin = coin.Sub(amount)
		}
	}
	if thb.IsNegative() {
		thb = decimal.Zero
	}
	if coin.IsNegative() {
		coin = decimal.Zero
	}
	p.thb, p.coin = thb, coin
}
