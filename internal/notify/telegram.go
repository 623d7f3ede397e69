package notify

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"
)

// Telegram sends notifications to one chat.
type Telegram struct {
	bot  *tele.Bot
	chat tele.Recipient
}

// NewTelegram creates a send-only bot. No updates are polled.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram token and chat id are required")
	}
	b, err := tele.NewBot(tele.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Telegram{bot: b, chat: tele.ChatID(chatID)}, nil
}

func (t *Telegram) Notify(_ context.Context, text string) error {
	if _, err := t.bot.Send(t.chat, text); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
