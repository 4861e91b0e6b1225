package channels

import (
	"context"
	"fmt"
	"github.com/ilindan-dev/dispatch-scheduler/internal/config"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
	"time"
)

// DefaultEmailSubject is used when a request carries no subject.
const DefaultEmailSubject = "Automatic Notification"

// mailSender is the part of *gomail.Dialer the channel uses.
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailChannel sends messages via SMTP.
type EmailChannel struct {
	sender  mailSender
	from    string
	timeout time.Duration
	logger  zerolog.Logger
}

var _ Channel = (*EmailChannel)(nil)

// NewEmailChannel creates a new instance of EmailChannel.
// The dialer negotiates STARTTLS when the server offers it.
func NewEmailChannel(cfg config.EmailConfig, logger *zerolog.Logger) *EmailChannel {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return newEmailChannel(d, cfg.From, cfg.Timeout, logger)
}

func newEmailChannel(sender mailSender, from string, timeout time.Duration, logger *zerolog.Logger) *EmailChannel {
	return &EmailChannel{
		sender:  sender,
		from:    from,
		timeout: timeout,
		logger:  logger.With().Str("component", "email_channel").Logger(),
	}
}

// Send implements the Channel interface for email.
func (c *EmailChannel) Send(ctx context.Context, recipient, content string, subject *string) error {
	if recipient == "" {
		return fmt.Errorf("email: empty recipient")
	}

	m := gomail.NewMessage(gomail.SetCharset("UTF-8"))
	m.SetHeader("From", c.from)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", subjectOrDefault(subject))
	m.SetBody("text/plain", content)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// gomail has no context support, so the dial runs on its own goroutine and
	// is abandoned if the context ends first.
	done := make(chan error, 1)
	go func() {
		done <- c.sender.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			c.logger.Error().Err(err).Str("recipient", recipient).Msg("failed to send email")
			return fmt.Errorf("email: %w", err)
		}
	case <-ctx.Done():
		c.logger.Error().Err(ctx.Err()).Str("recipient", recipient).Msg("email send aborted")
		return fmt.Errorf("email: %w", ctx.Err())
	}

	c.logger.Info().Str("recipient", recipient).Msg("email sent successfully")
	return nil
}

func subjectOrDefault(subject *string) string {
	if subject == nil || *subject == "" {
		return DefaultEmailSubject
	}
	return *subject
}
