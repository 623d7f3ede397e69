// Package notify forwards engine events to out-of-band channels.
package notify

import (
	"context"
	"fmt"
	"strings"

	"bitkub-trade-bot-go/internal/bitkub"
	"bitkub-trade-bot-go/internal/trader"

	"go.uber.org/zap"
)

// Notifier delivers a text message.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// LogNotifier writes messages to the log. It is used when no chat is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, text string) error {
	n.logger.Info(text)
	return nil
}

// Format renders the events worth a notification. Routine ticks and
// errors are skipped.
func Format(ev trader.Event) (string, bool) {
	mode := ""
	if ev.Paper {
		mode = "[PAPER] "
	}
	sym := bitkub.DisplaySymbol(ev.Symbol)

	switch ev.Type {
	case trader.EventBuy:
		return fmt.Sprintf("%sBUY %s\nAmount: %.8f\nPrice: %.2f THB\nRSI: %.1f\nReason: %s",
			mode, sym, ev.Amount, ev.Price, ev.RSI, ev.Reason), true
	case trader.EventSell:
		return fmt.Sprintf("%sSELL %s\nAmount: %.8f\nPrice: %.2f THB\nP&L: %+.2f THB\nReason: %s",
			mode, sym, ev.Amount, ev.Price, ev.PnL, ev.Reason), true
	case trader.EventPaused:
		return fmt.Sprintf("%sPAUSED %s: %s", mode, sym, ev.Reason), true
	case trader.EventEmergencyStop:
		return fmt.Sprintf("%sEMERGENCY STOP %s: %s", mode, sym, ev.Reason), true
	case trader.EventAborted:
		return fmt.Sprintf("%sSTOPPED %s after repeated errors: %s", mode, sym, strings.TrimSpace(ev.Reason)), true
	}
	return "", false
}

// Forward sends every notable event until events is closed or ctx is done.
func Forward(ctx context.Context, events <-chan trader.Event, n Notifier, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			text, ok := Format(ev)
			if !ok {
				continue
			}
			if err := n.Notify(ctx, text); err != nil {
				logger.Warn("Failed to send notification", zap.String("event", string(ev.Type)), zap.Error(err))
			}
		}
	}
}
