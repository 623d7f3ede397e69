package trader

import (
	"context"
	"errors"
	"fmt"

	"bitkub-trade-bot-go/internal/bitkub"
	"bitkub-trade-bot-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrInsufficientBalance is returned when an order cannot be covered.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Fill describes an executed order.
type Fill struct {
	OrderID  string
	Price    float64
	Amount   float64 // coin
	TotalTHB float64 // THB spent on a buy, received on a sell
	Fee      float64
	Status   string
}

// Balances are the free THB and coin amounts of the account.
type Balances struct {
	THB  float64
	Coin float64
}

// OrderExecutor places orders for the engine.
type OrderExecutor interface {
	// Buy spends thb on symbol. price is the last known market price.
	Buy(ctx context.Context, symbol string, thb, price float64) (Fill, error)

	// Sell sells amount coins of symbol.
	Sell(ctx context.Context, symbol string, amount, price float64) (Fill, error)

	// Balance returns the THB and base-coin balance for symbol.
	Balance(ctx context.Context, symbol string) (Balances, error)

	// Paper reports whether orders are simulated.
	Paper() bool
}

var (
	_ OrderExecutor = (*LiveExecutor)(nil)
	_ OrderExecutor = (*PaperExecutor)(nil)
)

// LiveExecutor sends market orders to Bitkub.
type LiveExecutor struct {
	client bitkub.RestClientInterface
	fees   FeeModel
	logger *zap.Logger
}

func NewLiveExecutor(client bitkub.RestClientInterface, fees FeeModel, logger *zap.Logger) *LiveExecutor {
	return &LiveExecutor{client: client, fees: fees, logger: logger.Named("live-executor")}
}

func (e *LiveExecutor) Paper() bool { return false }

func (e *LiveExecutor) Buy(ctx context.Context, symbol string, thb, price float64) (Fill, error) {
	amt := decimal.NewFromFloat(thb).Truncate(2)
	req := bitkub.OrderRequest{
		Symbol:   symbol,
		Amount:   amt.InexactFloat64(),
		Type:     bitkub.OrderTypeMarket,
		ClientID: uuid.NewString(),
	}
	e.logger.Info("Placing market bid", zap.String("symbol", symbol), zap.String("thb", amt.String()), zap.String("client_id", req.ClientID))

	res, err := e.client.PlaceBid(ctx, req)
	if err != nil {
		return Fill{}, wrapOrderError(err)
	}

	fill := Fill{
		OrderID:  res.ID.String(),
		Price:    res.Rate,
		Amount:   res.Receive,
		TotalTHB: res.Amount,
		Fee:      res.Fee,
		Status:   models.StatusFilled,
	}
	if fill.Price <= 0 {
		fill.Price = price
	}
	if fill.TotalTHB <= 0 {
		fill.TotalTHB = req.Amount
	}
	if fill.Amount <= 0 && fill.Price > 0 {
		// market bids may report rec=0 until matched
		fill.Amount = (fill.TotalTHB - fill.TotalTHB*e.fees.TakerFee) / fill.Price
	}
	return fill, nil
}

func (e *LiveExecutor) Sell(ctx context.Context, symbol string, amount, price float64) (Fill, error) {
	amt := decimal.NewFromFloat(amount).Truncate(8)
	req := bitkub.OrderRequest{
		Symbol:   symbol,
		Amount:   amt.InexactFloat64(),
		Type:     bitkub.OrderTypeMarket,
		ClientID: uuid.NewString(),
	}
	e.logger.Info("Placing market ask", zap.String("symbol", symbol), zap.String("amount", amt.String()), zap.String("client_id", req.ClientID))

	res, err := e.client.PlaceAsk(ctx, req)
	if err != nil {
		return Fill{}, wrapOrderError(err)
	}

	fill := Fill{
		OrderID:  res.ID.String(),
		Price:    res.Rate,
		Amount:   req.Amount,
		TotalTHB: res.Receive,
		Fee:      res.Fee,
		Status:   models.StatusFilled,
	}
	if fill.Price <= 0 {
		fill.Price = price
	}
	if fill.TotalTHB <= 0 {
		fill.TotalTHB = fill.Amount * fill.Price * (1 - e.fees.MakerFee)
	}
	return fill, nil
}

func (e *LiveExecutor) Balance(ctx context.Context, symbol string) (Balances, error) {
	wallet, err := e.client.GetWallet(ctx)
	if err != nil {
		return Balances{}, fmt.Errorf("failed to read wallet: %w", err)
	}
	return Balances{THB: wallet["THB"], Coin: wallet[bitkub.BaseCurrency(symbol)]}, nil
}

func wrapOrderError(err error) error {
	if errors.Is(err, &bitkub.APIError{Code: bitkub.CodeInsufficientBalance}) {
		return fmt.Errorf("%w: %w", ErrInsufficientBalance, err)
	}
	return err
}
