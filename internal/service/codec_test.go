package service

import (
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestPayload_RoundTrip(t *testing.T) {
	submitted := time.Date(2025, 1, 2, 3, 4, 5, 6000, time.UTC)
	eligible := submitted.Add(90 * time.Second)

	t.Run("with subject", func(t *testing.T) {
		subject := "Reminder"
		req := model.NewDispatchRequest("Email", "a@x.io", "text", &subject)

		payload, err := EncodePayload(req, submitted, eligible)
		require.NoError(t, err)

		got, gotSubmitted, gotEligible, err := DecodePayload(payload)
		require.NoError(t, err)
		assert.Equal(t, req, got)
		assert.True(t, submitted.Equal(gotSubmitted))
		assert.True(t, eligible.Equal(gotEligible))
	})

	t.Run("empty subject is kept distinct from absent", func(t *testing.T) {
		empty := ""
		payload, err := EncodePayload(model.NewDispatchRequest("email", "a", "b", &empty), submitted, eligible)
		require.NoError(t, err)
		got, _, _, err := DecodePayload(payload)
		require.NoError(t, err)
		require.NotNil(t, got.Subject)
		assert.Equal(t, "", *got.Subject)

		payload, err = EncodePayload(model.NewDispatchRequest("email", "a", "b", nil), submitted, eligible)
		require.NoError(t, err)
		got, _, _, err = DecodePayload(payload)
		require.NoError(t, err)
		assert.Nil(t, got.Subject)
	})
}

func TestDecodePayload_Malformed(t *testing.T) {
	tests := map[string]string{
		"not json":        "{",
		"unknown version": `{"v":2,"channel":"email"}`,
		"missing version": `{"channel":"email"}`,
		"missing channel": `{"v":1,"recipient":"a"}`,
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, _, err := DecodePayload([]byte(payload))
			require.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}
