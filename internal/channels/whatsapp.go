package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/ilindan-dev/dispatch-scheduler/internal/config"
	"github.com/rs/zerolog"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode"
)

const (
	whatsAppPrefix          = "whatsapp:"
	whatsAppDefaultEndpoint = "https://api.twilio.com"
	// maxErrorBody bounds how much of a failed response is read.
	maxErrorBody = 64 << 10
)

// WhatsAppChannel sends messages through the Twilio Messages API.
type WhatsAppChannel struct {
	endpoint   string
	accountSID string
	authToken  string
	from       string
	client     *http.Client
	logger     zerolog.Logger
}

var _ Channel = (*WhatsAppChannel)(nil)

// NewWhatsAppChannel creates a new instance of WhatsAppChannel.
func NewWhatsAppChannel(cfg config.WhatsAppConfig, logger *zerolog.Logger) *WhatsAppChannel {
	endpoint := strings.TrimRight(cfg.BaseURL, "/")
	if endpoint == "" {
		endpoint = whatsAppDefaultEndpoint
	}
	return &WhatsAppChannel{
		endpoint:   endpoint,
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       NormalizeWhatsAppAddress(cfg.FromNumber),
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With().Str("component", "whatsapp_channel").Logger(),
	}
}

// NormalizeWhatsAppAddress strips whitespace and adds the "whatsapp:" prefix
// unless it is already there.
func NormalizeWhatsAppAddress(raw string) string {
	addr := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if strings.HasPrefix(addr, whatsAppPrefix) {
		return addr
	}
	return whatsAppPrefix + addr
}

// Send implements the Channel interface. The subject is ignored.
func (c *WhatsAppChannel) Send(ctx context.Context, recipient, content string, _ *string) error {
	to := NormalizeWhatsAppAddress(recipient)
	if to == whatsAppPrefix {
		return fmt.Errorf("whatsapp: empty recipient")
	}

	req, err := c.newRequest(ctx, to, content)
	if err != nil {
		return fmt.Errorf("whatsapp: build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("recipient", to).Msg("failed to reach whatsapp provider")
		return fmt.Errorf("whatsapp: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logger.Info().Str("recipient", to).Msg("whatsapp message sent successfully")
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	terr := &TransportError{
		Channel:    "whatsapp",
		StatusCode: resp.StatusCode,
		Message:    providerMessage(body, resp.Status),
	}
	c.logger.Error().Err(terr).Str("recipient", to).Msg("whatsapp provider rejected message")
	return terr
}

func (c *WhatsAppChannel) newRequest(ctx context.Context, to, content string) (*http.Request, error) {
	form := url.Values{}
	form.Set("From", c.from)
	form.Set("To", to)
	form.Set("Body", content)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.endpoint, url.PathEscape(c.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// providerMessage extracts the provider's error text, falling back to the raw
// body and then to the HTTP status line.
func providerMessage(body []byte, status string) string {
	var te twilioError
	if err := json.Unmarshal(body, &te); err == nil && te.Message != "" {
		return te.Message
	}
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		return trimmed
	}
	return status
}
