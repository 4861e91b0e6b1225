package http

import (
	"errors"
	"github.com/gin-gonic/gin"
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	repo "github.com/ilindan-dev/dispatch-scheduler/internal/domain/repository"
	"github.com/ilindan-dev/dispatch-scheduler/internal/service"
	"github.com/rs/zerolog"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultDelayMinutes = 1
	// maxDelayMinutes is ten years.
	maxDelayMinutes = 10 * 365 * 24 * 60

	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

type Handlers struct {
	dispatcher service.Dispatcher
	scheduler  *service.Scheduler
	history    repo.OutcomeLog
	logger     zerolog.Logger
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(
	dispatcher service.Dispatcher,
	scheduler *service.Scheduler,
	history repo.OutcomeLog,
	logger *zerolog.Logger,
) *Handlers {
	return &Handlers{
		dispatcher: dispatcher,
		scheduler:  scheduler,
		history:    history,
		logger:     logger.With().Str("layer", "http_handler").Logger(),
	}
}

// RegisterRoutes sets up the routing for the messaging API.
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/messages/send", h.Send)
		api.POST("/messages/schedule", h.Schedule)
		api.GET("/messages/recent", h.Recent)
	}
}

// Send dispatches a message immediately and reports the outcome.
func (h *Handlers) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn().Err(err).Msg("invalid request body")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	outcome := h.dispatcher.Dispatch(
		c.Request.Context(),
		model.NewDispatchRequest(req.Channel, req.Recipient, req.Content, req.Subject),
	)

	switch {
	case outcome.Succeeded:
		c.JSON(http.StatusOK, SendResponse{Status: "sent", Outcome: toOutcomeResponse(outcome)})
	case outcome.Failure == model.FailureUnsupportedChannel:
		c.JSON(http.StatusBadRequest, SendResponse{Status: "rejected", Outcome: toOutcomeResponse(outcome)})
	default:
		c.JSON(http.StatusBadGateway, SendResponse{Status: "failed", Outcome: toOutcomeResponse(outcome)})
	}
}

// Schedule hands a message to the broker for deferred execution.
func (h *Handlers) Schedule(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn().Err(err).Msg("invalid request body")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	minutes := defaultDelayMinutes
	if req.DelayMinutes != nil {
		minutes = *req.DelayMinutes
	}
	if minutes > maxDelayMinutes {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "delay_minutes is too large"})
		return
	}

	job, err := h.scheduler.Schedule(
		c.Request.Context(),
		model.NewDispatchRequest(req.Channel, req.Recipient, req.Content, req.Subject),
		time.Duration(minutes)*time.Minute,
	)
	if err != nil {
		if errors.Is(err, service.ErrNegativeDelay) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.logger.Error().Err(err).Msg("failed to schedule message")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "failed to schedule message"})
		return
	}

	c.JSON(http.StatusAccepted, ScheduleResponse{
		Status:      "scheduled",
		JobID:       job.ID,
		SubmittedAt: job.SubmittedAt,
		EligibleAt:  job.EligibleAt,
	})
}

// Recent lists the latest recorded dispatch outcomes.
func (h *Handlers) Recent(c *gin.Context) {
	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRecentLimit)
	}

	entries, err := h.history.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read dispatch history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read dispatch history"})
		return
	}

	resp := RecentResponse{Entries: make([]HistoryEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toHistoryEntryResponse(e))
	}
	c.JSON(http.StatusOK, resp)
}
