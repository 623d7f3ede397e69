package models

// Trade sides and statuses as stored in the trades table.
const (
	SideBuy  = "buy"
	SideSell = "sell"

	StatusFilled = "filled"
	StatusPaper  = "paper"
	StatusFailed = "failed"
)

// Trade is one executed (or failed) order. Rows are only ever appended.
type Trade struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	Timestamp int64   `gorm:"index" json:"timestamp"` // unix ms
	Symbol    string  `gorm:"index" json:"symbol"`
	Side      string  `json:"side"`
	Amount    float64 `json:"amount"` // coin
	Price     float64 `json:"price"`
	TotalTHB  float64 `gorm:"column:total_thb" json:"total_thb"`
	OrderID   string  `json:"order_id"`
	Status    string  `json:"status"`
	PnL       float64 `gorm:"column:pnl" json:"pnl,omitempty"` // net, sell rows only
	Fees      float64 `json:"fees"`
	Reason    string  `json:"reason"`
	IsPaper   bool    `json:"is_paper"`
}
