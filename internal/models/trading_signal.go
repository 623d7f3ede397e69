package models

// TradingSignal records a strategy decision.
type TradingSignal struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	Timestamp int64   `gorm:"index" json:"timestamp"`
	Symbol    string  `gorm:"index" json:"symbol"`
	Action    string  `json:"action"` // buy, sell or hold
	Reason    string  `json:"reason"`
	Price     float64 `json:"price"`
	RSI       float64 `gorm:"column:rsi" json:"rsi"`
	Strategy  string  `json:"strategy"`
}
