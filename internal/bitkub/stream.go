package bitkub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

const streamURL = "wss://api.bitkub.com/websocket-api"

// TickerStream keeps the latest ticker of one market from the public
// websocket feed, reconnecting until its context is cancelled.
type TickerStream struct {
	url    string
	logger *zap.Logger
	dialer  *websocket.Dialer
	backoff *backoff.Backoff

	mu      sync.RWMutex
	latest  Ticker
	updated time.Time
	now     func() time.Time
}

type streamMessage struct {
	Stream string `json:"stream"`
	Ticker
}

// NewTickerStream creates a stream for symbol. baseURL defaults to the
// production websocket endpoint.
func NewTickerStream(baseURL, symbol string, logger *zap.Logger) *TickerStream {
	if baseURL == "" {
		baseURL = streamURL
	}
	name := "market.ticker." + strings.ToLower(DisplaySymbol(symbol))
	return &TickerStream{
		url:     strings.TrimRight(baseURL, "/") + "/" + name,
		logger:  logger.Named("ticker-stream").With(zap.String("stream", name)),
		dialer:  websocket.DefaultDialer,
		backoff: &backoff.Backoff{Min: time.Second, Max: time.Minute, Factor: 2, Jitter: true},
		now:     time.Now,
	}
}

// Latest returns the last received ticker if it is younger than maxAge.
func (s *TickerStream) Latest(maxAge time.Duration) (Ticker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.updated.IsZero() || s.now().Sub(s.updated) > maxAge {
		return Ticker{}, false
	}
	return s.latest, true
}

// Run connects and reads until ctx is cancelled.
func (s *TickerStream) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		wait := s.backoff.Duration()
		s.logger.Warn("Ticker stream disconnected, reconnecting...", zap.Error(err), zap.Duration("retry_after", wait))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil
		}
	}
}

// session runs one connection until it fails. The reconnect delay is
// reset once the connection has delivered a valid message.
func (s *TickerStream) session(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", s.url, err)
	}
	s.logger.Info("Ticker stream connected")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	healthy := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := s.handle(data); err != nil {
			s.logger.Debug("Skipping undecodable stream message", zap.Error(err))
			continue
		}
		if !healthy {
			healthy = true
			s.backoff.Reset()
		}
	}
}

// handle decodes one frame. A frame may carry several newline-separated messages.
func (s *TickerStream) handle(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var msg streamMessage
		err := dec.Decode(&msg)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if msg.Last <= 0 {
			continue
		}

		s.mu.Lock()
		s.latest = msg.Ticker
		s.updated = s.now()
		s.mu.Unlock()
	}
}
