package channels

import (
	"context"
	"fmt"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ilindan-dev/dispatch-scheduler/internal/config"
	"github.com/rs/zerolog"
	"strconv"
	"strings"
)

// botSender is the part of *tgbotapi.BotAPI the channel uses.
type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramChannel sends messages via a Telegram bot.
type TelegramChannel struct {
	bot    botSender
	logger zerolog.Logger
}

var _ Channel = (*TelegramChannel)(nil)

// NewTelegramChannel creates a new instance of TelegramChannel.
func NewTelegramChannel(cfg config.TelegramConfig, logger *zerolog.Logger) (*TelegramChannel, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot api: %w", err)
	}
	return newTelegramChannel(bot, logger), nil
}

func newTelegramChannel(bot botSender, logger *zerolog.Logger) *TelegramChannel {
	return &TelegramChannel{
		bot:    bot,
		logger: logger.With().Str("component", "telegram_channel").Logger(),
	}
}

// Send implements the Channel interface for Telegram. The subject is ignored.
// The recipient is either a numeric chat id or an @channel username.
func (c *TelegramChannel) Send(ctx context.Context, recipient, content string, _ *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := telegramMessage(recipient, content)
	if err != nil {
		return err
	}

	if _, err := c.bot.Send(msg); err != nil {
		c.logger.Error().Err(err).Str("recipient", recipient).Msg("failed to send telegram message")
		return &TransportError{Channel: "telegram", Message: err.Error()}
	}

	c.logger.Info().Str("recipient", recipient).Msg("telegram message sent successfully")
	return nil
}

func telegramMessage(recipient, content string) (tgbotapi.MessageConfig, error) {
	recipient = strings.TrimSpace(recipient)
	if strings.HasPrefix(recipient, "@") && len(recipient) > 1 {
		return tgbotapi.NewMessageToChannel(recipient, content), nil
	}
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return tgbotapi.MessageConfig{}, fmt.Errorf("telegram: invalid chat id %q", recipient)
	}
	return tgbotapi.NewMessage(chatID, content), nil
}
