package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/rabbitry/internal/domain/models"
	"github.com/mamadbah2/rabbitry/internal/service/alerts"
)

// ReminderService is the reminder surface exposed over HTTP.
type ReminderService interface {
	DueToday(ctx context.Context, farmID string) ([]models.Reminder, error)
	GetReminder(ctx context.Context, reminderID string) (models.Reminder, error)
	DispatchReminder(ctx context.Context, reminderID string) (alerts.Outcome, error)
	CompleteReminder(ctx context.Context, reminderID string) (models.Reminder, error)
}

// ReminderHandler exposes due reminders and their dispatch.
type ReminderHandler struct {
	svc    ReminderService
	logger *zap.Logger
}

// NewReminderHandler constructs the HTTP handler adapter.
func NewReminderHandler(svc ReminderService, logger *zap.Logger) *ReminderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderHandler{svc: svc, logger: logger}
}

// ListDue returns the farm's reminders due today in its own time zone.
func (h *ReminderHandler) ListDue(c *gin.Context) {
	due, err := h.svc.DueToday(c.Request.Context(), c.Param("farmID"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if due == nil {
		due = []models.Reminder{}
	}
	c.JSON(http.StatusOK, gin.H{"reminders": due})
}

// Get returns one reminder.
func (h *ReminderHandler) Get(c *gin.Context) {
	r, err := h.svc.GetReminder(c.Request.Context(), c.Param("reminderID"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// Dispatch notifies a reminder now. A transient failure answers 503 so the
// caller retries later.
func (h *ReminderHandler) Dispatch(c *gin.Context) {
	id := c.Param("reminderID")
	outcome, err := h.svc.DispatchReminder(c.Request.Context(), id)
	if outcome == alerts.OutcomeTransientFailure {
		h.logger.Warn("reminder dispatch failed", zap.String("reminder_id", id), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"outcome": outcome})
		return
	}
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

// Complete resolves a pending reminder by hand.
func (h *ReminderHandler) Complete(c *gin.Context) {
	r, err := h.svc.CompleteReminder(c.Request.Context(), c.Param("reminderID"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
