package service

import (
	"context"
	"errors"
	"github.com/ilindan-dev/dispatch-scheduler/internal/channels"
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
)

type sendCall struct {
	recipient string
	content   string
	subject   *string
}

// fakeChannel records sends and answers with err, or panics with panicWith.
type fakeChannel struct {
	mu        sync.Mutex
	calls     []sendCall
	err       error
	panicWith any
}

func (f *fakeChannel) Send(_ context.Context, recipient, content string, subject *string) error {
	f.mu.Lock()
	f.calls = append(f.calls, sendCall{recipient: recipient, content: content, subject: subject})
	f.mu.Unlock()
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	return f.err
}

func (f *fakeChannel) Calls() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.calls...)
}

func newTestDispatchService(chs map[model.ChannelID]channels.Channel) *DispatchService {
	logger := zerolog.Nop()
	return NewDispatchService(channels.NewRegistry(chs), &logger)
}

func TestDispatchService_Success(t *testing.T) {
	email := &fakeChannel{}
	svc := newTestDispatchService(map[model.ChannelID]channels.Channel{model.ChannelEmail: email})

	subject := "Hi"
	out := svc.Dispatch(context.Background(), model.NewDispatchRequest("EMAIL", "a@x.io", "hello", &subject))

	assert.True(t, out.Succeeded)
	assert.Empty(t, out.Error)
	assert.Equal(t, "EMAIL", out.Channel)
	assert.Equal(t, "a@x.io", out.Recipient)

	calls := email.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "a@x.io", calls[0].recipient)
	assert.Equal(t, "hello", calls[0].content)
	require.NotNil(t, calls[0].subject)
	assert.Equal(t, "Hi", *calls[0].subject)
}

func TestDispatchService_UnsupportedChannel(t *testing.T) {
	email := &fakeChannel{}
	whatsapp := &fakeChannel{}
	svc := newTestDispatchService(map[model.ChannelID]channels.Channel{
		model.ChannelEmail:    email,
		model.ChannelWhatsApp: whatsapp,
	})

	for _, ch := range []string{"sms", "", "e-mail", "telegram"} {
		out := svc.Dispatch(context.Background(), model.NewDispatchRequest(ch, "a@x.io", "hi", nil))
		assert.False(t, out.Succeeded, ch)
		assert.Equal(t, "unsupported channel", out.Error, ch)
		assert.Equal(t, model.FailureUnsupportedChannel, out.Failure, ch)
		assert.Equal(t, ch, out.Channel)
	}

	assert.Empty(t, email.Calls())
	assert.Empty(t, whatsapp.Calls())
}

func TestDispatchService_TransportFailure(t *testing.T) {
	whatsapp := &fakeChannel{err: errors.New("provider unavailable")}
	svc := newTestDispatchService(map[model.ChannelID]channels.Channel{model.ChannelWhatsApp: whatsapp})

	out := svc.Dispatch(context.Background(), model.NewDispatchRequest("whatsapp", "+1", "hi", nil))

	assert.False(t, out.Succeeded)
	assert.Equal(t, "provider unavailable", out.Error)
	assert.Equal(t, model.FailureTransport, out.Failure)
	assert.Len(t, whatsapp.Calls(), 1)
}

func TestDispatchService_EmptyErrorMessage(t *testing.T) {
	ch := &fakeChannel{err: errors.New("")}
	svc := newTestDispatchService(map[model.ChannelID]channels.Channel{model.ChannelEmail: ch})

	out := svc.Dispatch(context.Background(), model.NewDispatchRequest("email", "a@x.io", "hi", nil))
	assert.False(t, out.Succeeded)
	assert.NotEmpty(t, out.Error)
}

func TestDispatchService_RecoversChannelPanic(t *testing.T) {
	ch := &fakeChannel{panicWith: "boom"}
	svc := newTestDispatchService(map[model.ChannelID]channels.Channel{model.ChannelEmail: ch})

	var out model.DispatchOutcome
	require.NotPanics(t, func() {
		out = svc.Dispatch(context.Background(), model.NewDispatchRequest("email", "a@x.io", "hi", nil))
	})
	assert.False(t, out.Succeeded)
	assert.Equal(t, "channel panic: boom", out.Error)
}

func TestDispatchService_ConcurrentDispatch(t *testing.T) {
	ch := &fakeChannel{}
	svc := newTestDispatchService(map[model.ChannelID]channels.Channel{model.ChannelEmail: ch})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := svc.Dispatch(context.Background(), model.NewDispatchRequest("email", "a@x.io", "hi", nil))
			assert.True(t, out.Succeeded)
		}()
	}
	wg.Wait()
	assert.Len(t, ch.Calls(), 20)
}

func TestJobIDContext(t *testing.T) {
	assert.Empty(t, JobIDFromContext(context.Background()))
	assert.Equal(t, "job-1", JobIDFromContext(WithJobID(context.Background(), "job-1")))
}
