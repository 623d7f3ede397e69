package bitkub

import (
	"encoding/json"
	"strconv"
)

// envelope is the {"error": n, "result": ...} wrapper of the private endpoints.
type envelope[T any] struct {
	Error  int `json:"error"`
	Result T   `json:"result"`
}

// EndpointStatus is one entry of /api/status.
type EndpointStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Ticker is a market snapshot from /api/market/ticker or the websocket stream.
type Ticker struct {
	ID            int     `json:"id"`
	Last          float64 `json:"last"`
	LowestAsk     float64 `json:"lowestAsk"`
	HighestBid    float64 `json:"highestBid"`
	PercentChange float64 `json:"percentChange"`
	BaseVolume    float64 `json:"baseVolume"`
	QuoteVolume   float64 `json:"quoteVolume"`
	IsFrozen      int     `json:"isFrozen"`
	High24hr      float64 `json:"high24hr"`
	Low24hr       float64 `json:"low24hr"`
}

// Order types accepted by place-bid / place-ask.
const (
	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
	OrderSideBuy    = "buy"
	OrderSideSell   = "sell"
)

// OrderRequest is the body of place-bid and place-ask. Amount is THB for a
// bid and coin for an ask; Rate is ignored for market orders.
type OrderRequest struct {
	Symbol   string  `json:"sym"`
	Amount   float64 `json:"amt"`
	Rate     float64 `json:"rat"`
	Type     string  `json:"typ"`
	ClientID string  `json:"client_id,omitempty"`
}

// OrderResult is the result of a successful place-bid or place-ask.
type OrderResult struct {
	ID       json.Number `json:"id"`
	Type     string      `json:"typ"`
	Amount   float64     `json:"amt"`
	Rate     float64     `json:"rat"`
	Fee      float64     `json:"fee"`
	Credit   float64     `json:"cre"`
	Receive  float64     `json:"rec"`
	Ts       json.Number `json:"ts"`
	ClientID string      `json:"ci"`
}

// OpenOrder is one entry of my-open-orders. Numeric fields arrive as strings.
type OpenOrder struct {
	ID       json.Number `json:"id"`
	Hash     string      `json:"hash"`
	Side     string      `json:"side"`
	Type     string      `json:"type"`
	Rate     json.Number `json:"rate"`
	Fee      json.Number `json:"fee"`
	Amount   json.Number `json:"amount"`
	Receive  json.Number `json:"receive"`
	ClientID string      `json:"client_id"`
	Ts       json.Number `json:"ts"`
}

// AmountFloat returns the order amount, or 0 when it is not a number.
func (o OpenOrder) AmountFloat() float64 {
	f, _ := strconv.ParseFloat(o.Amount.String(), 64)
	return f
}
