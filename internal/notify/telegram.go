// Package notify delivers engine events to their sinks: Telegram for
// the operator, the structured log as the always-on fallback.
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/cryptobot/models"
)

// Telegram sends events as Markdown messages to one chat. Delivery
// failures are logged and swallowed: a lost notification must never
// stall the decision loop.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger zerolog.Logger
}

// NewTelegram creates a sink for the given bot token and chat.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("initializing telegram bot: %w", err)
	}
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		logger: log.With().Str("component", "telegram_sink").Logger(),
	}, nil
}

// Notify formats and sends one event.
func (t *Telegram) Notify(_ context.Context, event models.Event) {
	msg := tgbotapi.NewMessage(t.chatID, formatEvent(event))
	msg.ParseMode = "Markdown"

	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to send notification")
	}
}

func formatEvent(event models.Event) string {
	switch event.Type {
	case models.EventBuy:
		return fmt.Sprintf("🟢 *BUY* %s @ %.8g (%s)", event.Market, event.Price, event.Granularity)
	case models.EventSell:
		emoji := "🔴"
		if event.Profit > 0 {
			emoji = "💰"
		}
		return fmt.Sprintf("%s *SELL* %s @ %.8g\nReason: %s\nMargin: %.2f%%  Profit: %.2f  Fee: %.2f",
			emoji, event.Market, event.Price, event.Reason, event.Margin, event.Profit, event.Fee)
	case models.EventGranularityChange:
		return fmt.Sprintf("🔄 %s switched to %s candles", event.Market, event.Detail)
	case models.EventActionChange:
		return fmt.Sprintf("ℹ️ %s action changed to %s", event.Market, event.Action)
	case models.EventSessionStart:
		return fmt.Sprintf("🚀 %s session started (%s)", event.Market, event.Detail)
	case models.EventStop:
		return fmt.Sprintf("🛑 %s session stopped", event.Market)
	case models.EventPause:
		return fmt.Sprintf("⏸ %s session paused", event.Market)
	case models.EventResume:
		return fmt.Sprintf("▶️ %s session resumed", event.Market)
	}
	return fmt.Sprintf("%s %s", event.Market, event.Type)
}
