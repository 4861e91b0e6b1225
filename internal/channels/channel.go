// Package channels contains the delivery channels and the registry that maps
// channel identifiers to them.
package channels

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupportedChannel is returned by the registry for any identifier that has
// no configured channel.
var ErrUnsupportedChannel = errors.New("unsupported channel")

// Channel sends a single message to a recipient.
// A nil error means the transport accepted the message.
type Channel interface {
	Send(ctx context.Context, recipient, content string, subject *string) error
}

// TransportError is a non-success answer from a channel's remote provider.
type TransportError struct {
	// Channel is the channel that produced the error.
	Channel string
	// StatusCode is the provider's HTTP status, zero when not applicable.
	StatusCode int
	// Message is the provider's description of the failure.
	Message string
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return e.Channel + ": " + e.Message
	}
	return fmt.Sprintf("%s: status %d: %s", e.Channel, e.StatusCode, e.Message)
}
