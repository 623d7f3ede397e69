package models

// MarketData is one ticker snapshot.
type MarketData struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	Timestamp     int64   `gorm:"index" json:"timestamp"`
	Symbol        string  `gorm:"index" json:"symbol"`
	Last          float64 `json:"last"`
	Bid           float64 `json:"bid"`
	Ask           float64 `json:"ask"`
	High24h       float64 `gorm:"column:high_24h" json:"high_24h"`
	Low24h        float64 `gorm:"column:low_24h" json:"low_24h"`
	BaseVolume    float64 `json:"base_volume"`
	PercentChange float64 `json:"percent_change"`
}

// TableName keeps the singular table name used by the trade log.
func (MarketData) TableName() string { return "market_data" }
