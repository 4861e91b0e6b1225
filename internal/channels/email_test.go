package channels

import (
	"context"
	"errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
	"testing"
	"time"
)

type fakeMailSender struct {
	err   error
	block chan struct{}
	sent  []*gomail.Message
}

func (f *fakeMailSender) DialAndSend(m ...*gomail.Message) error {
	if f.block != nil {
		<-f.block
	}
	f.sent = append(f.sent, m...)
	return f.err
}

func TestEmailChannel_Send(t *testing.T) {
	logger := zerolog.Nop()
	custom := "Hello"
	empty := ""

	tests := []struct {
		name        string
		subject     *string
		wantSubject string
	}{
		{name: "explicit subject", subject: &custom, wantSubject: "Hello"},
		{name: "absent subject", subject: nil, wantSubject: DefaultEmailSubject},
		{name: "empty subject", subject: &empty, wantSubject: DefaultEmailSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeMailSender{}
			ch := newEmailChannel(sender, "noreply@example.com", time.Second, &logger)

			err := ch.Send(context.Background(), "a@example.com", "body", tt.subject)
			require.NoError(t, err)
			require.Len(t, sender.sent, 1)

			msg := sender.sent[0]
			assert.Equal(t, []string{tt.wantSubject}, msg.GetHeader("Subject"))
			assert.Equal(t, []string{"a@example.com"}, msg.GetHeader("To"))
			assert.Equal(t, []string{"noreply@example.com"}, msg.GetHeader("From"))
		})
	}
}

func TestEmailChannel_SendTransportError(t *testing.T) {
	logger := zerolog.Nop()
	sender := &fakeMailSender{err: errors.New("535 authentication failed")}
	ch := newEmailChannel(sender, "noreply@example.com", time.Second, &logger)

	err := ch.Send(context.Background(), "a@example.com", "body", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication failed")
}

func TestEmailChannel_SendTimeout(t *testing.T) {
	logger := zerolog.Nop()
	sender := &fakeMailSender{block: make(chan struct{})}
	defer close(sender.block)
	ch := newEmailChannel(sender, "noreply@example.com", 20*time.Millisecond, &logger)

	err := ch.Send(context.Background(), "a@example.com", "body", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEmailChannel_EmptyRecipient(t *testing.T) {
	logger := zerolog.Nop()
	sender := &fakeMailSender{}
	ch := newEmailChannel(sender, "noreply@example.com", time.Second, &logger)

	require.Error(t, ch.Send(context.Background(), "", "body", nil))
	assert.Empty(t, sender.sent)
}
