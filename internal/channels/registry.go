package channels

import (
	"fmt"
	"github.com/ilindan-dev/dispatch-scheduler/internal/config"
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	"github.com/rs/zerolog"
	"sort"
)

// Registry maps channel identifiers to channels. It is never modified after
// construction, so concurrent lookups need no locking.
type Registry struct {
	channels map[model.ChannelID]Channel
}

// NewRegistry creates a Registry from a copy of the given map.
func NewRegistry(channels map[model.ChannelID]Channel) *Registry {
	m := make(map[model.ChannelID]Channel, len(channels))
	for id, ch := range channels {
		if ch != nil {
			m[id] = ch
		}
	}
	return &Registry{channels: m}
}

// Resolve returns the channel for a raw identifier. Matching is case-insensitive.
func (r *Registry) Resolve(id string) (Channel, error) {
	channelID, ok := model.ParseChannel(id)
	if !ok {
		return nil, ErrUnsupportedChannel
	}
	ch, ok := r.channels[channelID]
	if !ok {
		return nil, ErrUnsupportedChannel
	}
	return ch, nil
}

// Supported lists the configured channel identifiers in lexical order.
func (r *Registry) Supported() []model.ChannelID {
	ids := make([]model.ChannelID, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// BuildRegistry initializes the channels based on the application's configuration mode.
// Every channel starts out served by the LogChannel; in "production" mode each
// channel with configured credentials is replaced by its real transport.
func BuildRegistry(cfg *config.Config, logger *zerolog.Logger) (*Registry, error) {
	log := logger.With().Str("component", "channel_registry").Logger()
	log.Info().Str("mode", cfg.Channels.Mode).Msg("initializing channels")

	channelsMap := make(map[model.ChannelID]Channel, len(model.KnownChannels))
	for _, id := range model.KnownChannels {
		channelsMap[id] = NewLogChannel(id, logger)
	}

	if cfg.Channels.Mode == config.ModeProduction {
		if cfg.Channels.Email.Host != "" {
			channelsMap[model.ChannelEmail] = NewEmailChannel(cfg.Channels.Email, logger)
			log.Info().Msg("email channel enabled")
		}
		if wa := cfg.Channels.WhatsApp; wa.AccountSID != "" && wa.AuthToken != "" && wa.FromNumber != "" {
			channelsMap[model.ChannelWhatsApp] = NewWhatsAppChannel(cfg.Channels.WhatsApp, logger)
			log.Info().Msg("whatsapp channel enabled")
		}
		if cfg.Channels.Telegram.BotToken != "" {
			tg, err := NewTelegramChannel(cfg.Channels.Telegram, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize telegram channel: %w", err)
			}
			channelsMap[model.ChannelTelegram] = tg
			log.Info().Msg("telegram channel enabled")
		}
	}

	return NewRegistry(channelsMap), nil
}
