package database

import (
	"errors"
	"fmt"
	"time"

	"bitkub-trade-bot-go/internal/models"

	"gorm.io/gorm"
)

// Store wraps the append-only trade log.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) RecordTrade(trade *models.Trade) error {
	if err := s.db.Create(trade).Error; err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

func (s *Store) RecordMarketData(data *models.MarketData) error {
	if err := s.db.Create(data).Error; err != nil {
		return fmt.Errorf("failed to save market data: %w", err)
	}
	return nil
}

func (s *Store) RecordSignal(signal *models.TradingSignal) error {
	if err := s.db.Create(signal).Error; err != nil {
		return fmt.Errorf("failed to save trading signal: %w", err)
	}
	return nil
}

// TradesSince returns the trades of symbol at or after since, oldest first.
// Failed orders are excluded.
func (s *Store) TradesSince(symbol string, since time.Time, paper bool) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.
		Where("symbol = ? AND timestamp >= ? AND is_paper = ? AND status <> ?",
			symbol, since.UnixMilli(), paper, models.StatusFailed).
		Order("timestamp asc, id asc").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	return trades, nil
}

// LastTrade returns the most recent successful trade of symbol, or nil when
// there is none.
func (s *Store) LastTrade(symbol string, paper bool) (*models.Trade, error) {
	var trade models.Trade
	err := s.db.
		Where("symbol = ? AND is_paper = ? AND status <> ?", symbol, paper, models.StatusFailed).
		Order("timestamp desc, id desc").
		First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last trade: %w", err)
	}
	return &trade, nil
}

// RecentTrades returns up to limit trades, newest first.
func (s *Store) RecentTrades(limit int) ([]models.Trade, error) {
	var trades []models.Trade
	if err := s.db.Order("timestamp desc, id desc").Limit(limit).Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	return trades, nil
}

// SellTrades returns every filled or paper sell, oldest first.
func (s *Store) SellTrades() ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.
		Where("side = ? AND status <> ?", models.SideSell, models.StatusFailed).
		Order("timestamp asc, id asc").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query sell trades: %w", err)
	}
	return trades, nil
}

// RecentSignals returns up to limit signals, newest first.
func (s *Store) RecentSignals(limit int) ([]models.TradingSignal, error) {
	var signals []models.TradingSignal
	if err := s.db.Order("timestamp desc, id desc").Limit(limit).Find(&signals).Error; err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	return signals, nil
}
