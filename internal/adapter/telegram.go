package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"
)

// TelegramAdapter publishes to a Telegram channel or group through the
// Bot API. Send-only: the bot is never started, so no update polling
// happens.
type TelegramAdapter struct {
	bot    *tele.Bot
	chatID tele.ChatID
}

func NewTelegramAdapter(token string, chatID int64, timeout time.Duration) (*TelegramAdapter, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Client: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramAdapter{bot: bot, chatID: tele.ChatID(chatID)}, nil
}

func (a *TelegramAdapter) Send(ctx context.Context, p Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	msg, err := a.bot.Send(a.chatID, p.Text)
	if err != nil {
		return "", fmt.Errorf("telegram send: %w", err)
	}
	return strconv.Itoa(msg.ID), nil
}

var _ Adapter = (*TelegramAdapter)(nil)
