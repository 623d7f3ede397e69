package trader

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Position is the single open position of the engine.
type Position struct {
	Symbol     string    `json:"symbol"`
	EntryPrice float64   `json:"entry_price"`
	Amount     float64   `json:"amount"`
	CostTHB    float64   `json:"cost_thb"`
	EntryTime  time.Time `json:"entry_time"`
	OrderID    string    `json:"order_id"`
}

// SessionState is a copy of the session taken under its lock.
type SessionState struct {
	Position          *Position `json:"position"`
	Day               string    `json:"day"`
	DailyTrades       int       `json:"daily_trades"`
	DailyPnL          float64   `json:"daily_pnl"`
	TotalTrades       int       `json:"total_trades"`
	LastTradeAt       time.Time `json:"last_trade_at"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
}

var (
	errPositionOpen = errors.New("a position is already open")
	errNoPosition   = errors.New("no open position")
)

// Session is the mutable trading state of one engine.
type Session struct {
	mu                sync.Mutex
	position          *Position
	day               string
	dailyTrades       int
	dailyPnL          decimal.Decimal
	totalTrades       int
	lastTradeAt       time.Time
	consecutiveErrors int
}

func NewSession() *Session {
	return &Session{}
}

func dayKey(t time.Time) string {
	return t.Local().Format("2006-01-02")
}

// State returns a copy of the session.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SessionState{
		Day:               s.day,
		DailyTrades:       s.dailyTrades,
		DailyPnL:          s.dailyPnL.InexactFloat64(),
		TotalTrades:       s.totalTrades,
		LastTradeAt:       s.lastTradeAt,
		ConsecutiveErrors: s.consecutiveErrors,
	}
	if s.position != nil {
		p := *s.position
		st.Position = &p
	}
	return st
}

// RollDay resets the daily counters when now falls on a new local day.
// It reports whether a reset happened.
func (s *Session) RollDay(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := dayKey(now)
	if day == s.day {
		return false
	}
	s.day = day
	s.dailyTrades = 0
	s.dailyPnL = decimal.Zero
	return true
}

// Open records a buy.
func (s *Session) Open(pos Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.position != nil {
		return errPositionOpen
	}
	s.position = &pos
	s.countTrade(pos.EntryTime)
	return nil
}

// Close records the sell of the open position and adds pnl to the daily
// result. It returns the closed position.
func (s *Session) Close(pnl float64, at time.Time) (Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.position == nil {
		return Position{}, errNoPosition
	}
	pos := *s.position
	s.position = nil
	s.dailyPnL = s.dailyPnL.Add(decimal.NewFromFloat(pnl))
	s.countTrade(at)
	return pos, nil
}

func (s *Session) countTrade(at time.Time) {
	s.dailyTrades++
	s.totalTrades++
	s.lastTradeAt = at
}

// Restore loads state recovered from the trade log at startup.
func (s *Session) Restore(now time.Time, dailyTrades int, dailyPnL float64, lastTradeAt time.Time, pos *Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.day = dayKey(now)
	s.dailyTrades = dailyTrades
	s.dailyPnL = decimal.NewFromFloat(dailyPnL)
	s.lastTradeAt = lastTradeAt
	s.position = nil
	if pos != nil {
		p := *pos
		s.position = &p
	}
}

// RecordError increments the consecutive error counter and returns it.
func (s *Session) RecordError() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveErrors++
	return s.consecutiveErrors
}

func (s *Session) ResetErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveErrors = 0
}
