package channels

import (
	"context"
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	"github.com/rs/zerolog"
)

// LogChannel is a stand-in channel that logs the send instead of delivering it.
// Content is not logged.
type LogChannel struct {
	channel string
	logger  zerolog.Logger
}

var _ Channel = (*LogChannel)(nil)

// NewLogChannel creates a new instance of LogChannel.
func NewLogChannel(channel model.ChannelID, logger *zerolog.Logger) *LogChannel {
	return &LogChannel{
		channel: string(channel),
		logger:  logger.With().Str("component", "log_channel").Logger(),
	}
}

// Send implements the Channel interface.
func (c *LogChannel) Send(ctx context.Context, recipient, content string, subject *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	event := c.logger.Info().
		Str("channel", c.channel).
		Str("recipient", recipient).
		Int("content_length", len(content))
	if subject != nil {
		event = event.Str("subject", *subject)
	}
	event.Msg(">>> MOCK SEND: message dispatched")

	return nil
}
