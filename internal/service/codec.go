package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	"time"
)

const payloadVersion = 1

// ErrMalformedPayload is returned for job payloads that cannot be decoded.
var ErrMalformedPayload = errors.New("malformed job payload")

// payloadEnvelope is the wire form of a scheduled request stored in the broker.
type payloadEnvelope struct {
	Version     int       `json:"v"`
	Channel     string    `json:"channel"`
	Recipient   string    `json:"recipient"`
	Content     string    `json:"content"`
	Subject     *string   `json:"subject,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	EligibleAt  time.Time `json:"eligible_at"`
}

// EncodePayload serializes a request together with its scheduling times.
func EncodePayload(req model.DispatchRequest, submittedAt, eligibleAt time.Time) ([]byte, error) {
	return json.Marshal(payloadEnvelope{
		Version:     payloadVersion,
		Channel:     req.Channel,
		Recipient:   req.Recipient,
		Content:     req.Content,
		Subject:     req.Subject,
		SubmittedAt: submittedAt.UTC(),
		EligibleAt:  eligibleAt.UTC(),
	})
}

// DecodePayload is the inverse of EncodePayload.
// Unknown versions and payloads without a channel are rejected.
func DecodePayload(payload []byte) (req model.DispatchRequest, submittedAt, eligibleAt time.Time, err error) {
	var env payloadEnvelope
	if err = json.Unmarshal(payload, &env); err != nil {
		return req, submittedAt, eligibleAt, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if env.Version != payloadVersion {
		return req, submittedAt, eligibleAt, fmt.Errorf("%w: unsupported version %d", ErrMalformedPayload, env.Version)
	}
	if env.Channel == "" {
		return req, submittedAt, eligibleAt, fmt.Errorf("%w: missing channel", ErrMalformedPayload)
	}

	req = model.NewDispatchRequest(env.Channel, env.Recipient, env.Content, env.Subject)
	return req, env.SubmittedAt, env.EligibleAt, nil
}
