package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"linkedin-autopilot/internal/domain/ports/adapter"
)

var _ adapter.Alerter = (*TelegramAlerter)(nil)

// TelegramAlerter pushes operator alerts to a Telegram chat. Structural
// failures and blocked accounts need a human; this is that channel.
type TelegramAlerter struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *zerolog.Logger
}

func NewTelegramAlerter(token string, chatID int64, logger *zerolog.Logger) (*TelegramAlerter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram alerter: %w", err)
	}
	aLog := logger.With().Str("component", "TelegramAlerter").Logger()
	return &TelegramAlerter{bot: bot, chatID: chatID, log: &aLog}, nil
}

func (t *TelegramAlerter) Send(ctx context.Context, alert adapter.Alert) error {
	text := fmt.Sprintf("[%s] task=%s identity=%s\n%s",
		alert.Severity, alert.TaskID, alert.Identity, alert.Message)

	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.log.Error().Err(err).Str("task_id", alert.TaskID).Msg("alert delivery failed")
		return err
	}
	return nil
}
