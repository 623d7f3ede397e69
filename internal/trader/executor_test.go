package trader

import (
	"context"
	"errors"
	"testing"

	"bitkub-trade-bot-go/internal/bitkub"
	"bitkub-trade-bot-go/internal/config"
	"bitkub-trade-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPaperExecutor(t *testing.T) {
	ctx := context.Background()
	p := NewPaperExecutor(10000, NewFeeModel(config.DefaultStrategy()))
	assert.True(t, p.Paper())

	buy, err := p.Buy(ctx, "btc_thb", 1000, 95)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaper, buy.Status)
	assert.NotEmpty(t, buy.OrderID)
	assert.InDelta(t, 10.5, buy.Amount, 1e-9)
	assert.InDelta(t, 2.5, buy.Fee, 1e-9)
	assert.Equal(t, 1000.0, buy.TotalTHB)

	bal, err := p.Balance(ctx, "btc_thb")
	require.NoError(t, err)
	assert.InDelta(t, 9000, bal.THB, 1e-9)
	assert.InDelta(t, 10.5, bal.Coin, 1e-9)

	sell, err := p.Sell(ctx, "btc_thb", buy.Amount, 97.1)
	require.NoError(t, err)
	assert.NotEqual(t, buy.OrderID, sell.OrderID)
	assert.InDelta(t, 10.5*97.1*0.9975, sell.TotalTHB, 1e-6)

	bal, err = p.Balance(ctx, "btc_thb")
	require.NoError(t, err)
	assert.InDelta(t, 9000+10.5*97.1*0.9975, bal.THB, 1e-6)
	assert.Zero(t, bal.Coin)
}

func TestPaperExecutor_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	p := NewPaperExecutor(500, FeeModel{})

	_, err := p.Buy(ctx, "btc_thb", 1000, 95)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = p.Sell(ctx, "btc_thb", 1, 95)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = p.Buy(ctx, "btc_thb", 100, 0)
	assert.Error(t, err)
}

func TestPaperExecutor_Replay(t *testing.T) {
	ctx := context.Background()
	p := NewPaperExecutor(10000, FeeModel{})
	p.Replay([]models.Trade{
		{Side: models.SideBuy, Amount: 0.01, TotalTHB: 1000, Status: models.StatusPaper, IsPaper: true},
		{Side: models.SideSell, Amount: 0.01, TotalTHB: 1100, Status: models.StatusPaper, IsPaper: true},
		{Side: models.SideBuy, Amount: 0.02, TotalTHB: 2000, Status: models.StatusFailed, IsPaper: true},
		{Side: models.SideBuy, Amount: 0.01, TotalTHB: 1000, Status: models.StatusPaper, IsPaper: true},
	})

	// profit from the closed round trip is kept, the failed buy is ignored
	bal, err := p.Balance(ctx, "btc_thb")
	require.NoError(t, err)
	assert.InDelta(t, 9100, bal.THB, 1e-9)
	assert.InDelta(t, 0.01, bal.Coin, 1e-12)

	_, err = p.Sell(ctx, "btc_thb", 0.01, 100000)
	assert.NoError(t, err)

	// replaying again starts from the initial balance
	p.Replay(nil)
	bal, err = p.Balance(ctx, "btc_thb")
	require.NoError(t, err)
	assert.InDelta(t, 10000, bal.THB, 1e-9)
	assert.Zero(t, bal.Coin)
}

func TestLiveExecutor_Buy(t *testing.T) {
	client := new(MockRestClient)
	e := NewLiveExecutor(client, NewFeeModel(config.DefaultStrategy()), zap.NewNop())

	client.On("PlaceBid", mock.Anything, mock.MatchedBy(func(req bitkub.OrderRequest) bool {
		return req.Symbol == "btc_thb" && req.Amount == 1000.12 &&
			req.Type == bitkub.OrderTypeMarket && req.ClientID != ""
	})).Return(&bitkub.OrderResult{ID: "1001", Amount: 1000.12, Receive: 0.00066, Fee: 2.5}, nil).Once()

	fill, err := e.Buy(context.Background(), "btc_thb", 1000.129, 1500000)
	require.NoError(t, err)
	assert.Equal(t, "1001", fill.OrderID)
	assert.Equal(t, 1500000.0, fill.Price, "falls back to the market price when rat is 0")
	assert.Equal(t, 0.00066, fill.Amount)
	assert.Equal(t, models.StatusFilled, fill.Status)
	client.AssertExpectations(t)
}

func TestLiveExecutor_Sell(t *testing.T) {
	client := new(MockRestClient)
	e := NewLiveExecutor(client, NewFeeModel(config.DefaultStrategy()), zap.NewNop())

	client.On("PlaceAsk", mock.Anything, mock.MatchedBy(func(req bitkub.OrderRequest) bool {
		return req.Amount == 0.00066123
	})).Return(&bitkub.OrderResult{ID: "1002", Rate: 1510000, Amount: 0.00066123, Receive: 996.0, Fee: 2.49}, nil).Once()

	fill, err := e.Sell(context.Background(), "btc_thb", 0.000661239, 1500000)
	require.NoError(t, err)
	assert.Equal(t, 1510000.0, fill.Price)
	assert.Equal(t, 996.0, fill.TotalTHB)
	client.AssertExpectations(t)
}

func TestLiveExecutor_InsufficientBalance(t *testing.T) {
	client := new(MockRestClient)
	e := NewLiveExecutor(client, FeeModel{}, zap.NewNop())

	apiErr := &bitkub.APIError{Code: bitkub.CodeInsufficientBalance, Message: "Insufficient balance"}
	client.On("PlaceBid", mock.Anything, mock.Anything).Return(nil, apiErr).Once()

	_, err := e.Buy(context.Background(), "btc_thb", 1000, 1500000)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, bitkub.CodeInsufficientBalance, bitkub.CodeOf(err))

	client.On("PlaceAsk", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()
	_, err = e.Sell(context.Background(), "btc_thb", 1, 1500000)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientBalance)
}

func TestLiveExecutor_Balance(t *testing.T) {
	client := new(MockRestClient)
	e := NewLiveExecutor(client, FeeModel{}, zap.NewNop())
	client.On("GetWallet", mock.Anything).Return(map[string]float64{"THB": 5000, "BTC": 0.01, "ETH": 2}, nil).Once()

	bal, err := e.Balance(context.Background(), "THB_BTC")
	require.NoError(t, err)
	assert.Equal(t, Balances{THB: 5000, Coin: 0.01}, bal)
}
