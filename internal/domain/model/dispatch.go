package model

import (
	"strings"
	"time"
)

// ChannelID identifies a delivery channel (e.g., email, whatsapp).
type ChannelID string

const (
	ChannelEmail    ChannelID = "email"
	ChannelWhatsApp ChannelID = "whatsapp"
	ChannelTelegram ChannelID = "telegram"
)

// KnownChannels lists every channel the system can be configured with.
var KnownChannels = []ChannelID{ChannelEmail, ChannelTelegram, ChannelWhatsApp}

// ParseChannel matches a raw channel identifier against the known set.
// Matching is case-insensitive but otherwise exact.
func ParseChannel(raw string) (ChannelID, bool) {
	switch strings.ToLower(raw) {
	case string(ChannelEmail):
		return ChannelEmail, true
	case string(ChannelWhatsApp):
		return ChannelWhatsApp, true
	case string(ChannelTelegram):
		return ChannelTelegram, true
	default:
		return "", false
	}
}

// DispatchRequest is the unit of work passed between the scheduler, the broker and
// the dispatch service. Channel is kept exactly as the caller sent it.
type DispatchRequest struct {
	Channel   string
	Recipient string
	Content   string
	Subject   *string // Optional. Only some channels use it.
}

// NewDispatchRequest builds a request, copying the optional subject so the value
// cannot be changed through the caller's pointer afterwards.
func NewDispatchRequest(channel, recipient, content string, subject *string) DispatchRequest {
	req := DispatchRequest{
		Channel:   channel,
		Recipient: recipient,
		Content:   content,
	}
	if subject != nil {
		s := *subject
		req.Subject = &s
	}
	return req
}

// SubjectOr returns the subject, or fallback when it is absent or empty.
func (r DispatchRequest) SubjectOr(fallback string) string {
	if r.Subject == nil || *r.Subject == "" {
		return fallback
	}
	return *r.Subject
}

// FailureKind classifies why a dispatch attempt failed.
type FailureKind string

const (
	FailureNone               FailureKind = ""
	FailureUnsupportedChannel FailureKind = "unsupported_channel"
	FailureTransport          FailureKind = "transport"
)

// DispatchOutcome is the result of a single dispatch attempt.
type DispatchOutcome struct {
	Succeeded bool
	Channel   string
	Recipient string
	Error     string      // Empty when Succeeded is true.
	Failure   FailureKind // FailureNone when Succeeded is true.
}

// Job is a claimed broker entry. The payload is opaque to the broker.
type Job struct {
	ID         string
	Payload    []byte
	EligibleAt time.Time
	Deliveries int // How many times the broker has handed this job out, including this one.
}

// ScheduledJob is a dispatch request bound to the time it may run.
type ScheduledJob struct {
	ID          string
	Request     DispatchRequest
	SubmittedAt time.Time
	EligibleAt  time.Time
	Deliveries  int
}

// HistoryEntry is one recorded dispatch attempt.
type HistoryEntry struct {
	ID           int64
	JobID        string // Empty for immediate sends.
	Channel      string
	Recipient    string
	Content      string
	Subject      *string
	Succeeded    bool
	Error        string
	DispatchedAt time.Time
}
