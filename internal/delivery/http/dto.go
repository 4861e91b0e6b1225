package http

import (
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	"time"
)

// SendRequest defines the structure for an immediate send.
// It uses `json` tags for unmarshalling and `binding` for validation with Gin.
type SendRequest struct {
	Channel   string  `json:"channel" binding:"required"`
	Recipient string  `json:"recipient" binding:"required"`
	Content   string  `json:"content" binding:"required"`
	Subject   *string `json:"subject,omitempty"`
}

// ScheduleRequest defines the structure for a deferred send.
// DelayMinutes defaults to 1 when omitted.
type ScheduleRequest struct {
	SendRequest
	DelayMinutes *int `json:"delay_minutes,omitempty"`
}

// OutcomeResponse is the public view of a dispatch outcome.
type OutcomeResponse struct {
	Succeeded bool   `json:"succeeded"`
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Error     string `json:"error,omitempty"`
	Failure   string `json:"failure,omitempty"`
}

// SendResponse is returned by the send endpoint for every attempted dispatch.
type SendResponse struct {
	Status  string          `json:"status"`
	Outcome OutcomeResponse `json:"outcome"`
}

// ScheduleResponse is returned once the broker has accepted a job.
type ScheduleResponse struct {
	Status      string    `json:"status"`
	JobID       string    `json:"job_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	EligibleAt  time.Time `json:"eligible_at"`
}

// HistoryEntryResponse is one recorded dispatch attempt.
type HistoryEntryResponse struct {
	ID           int64     `json:"id"`
	JobID        string    `json:"job_id,omitempty"`
	Channel      string    `json:"channel"`
	Recipient    string    `json:"recipient"`
	Subject      *string   `json:"subject,omitempty"`
	Succeeded    bool      `json:"succeeded"`
	Error        string    `json:"error,omitempty"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// RecentResponse lists recent dispatch attempts, newest first.
type RecentResponse struct {
	Entries []HistoryEntryResponse `json:"entries"`
}

// ErrorResponse defines a standard structure for API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func toOutcomeResponse(o model.DispatchOutcome) OutcomeResponse {
	return OutcomeResponse{
		Succeeded: o.Succeeded,
		Channel:   o.Channel,
		Recipient: o.Recipient,
		Error:     o.Error,
		Failure:   string(o.Failure),
	}
}

func toHistoryEntryResponse(e model.HistoryEntry) HistoryEntryResponse {
	return HistoryEntryResponse{
		ID:           e.ID,
		JobID:        e.JobID,
		Channel:      e.Channel,
		Recipient:    e.Recipient,
		Subject:      e.Subject,
		Succeeded:    e.Succeeded,
		Error:        e.Error,
		DispatchedAt: e.DispatchedAt,
	}
}
