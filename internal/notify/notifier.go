package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/rabbitry/internal/calendar"
	"github.com/mamadbah2/rabbitry/internal/domain/models"
	client "github.com/mamadbah2/rabbitry/pkg/clients/whatsapp"
)

var (
	// ErrTransient marks failures worth retrying on a later pass.
	ErrTransient = errors.New("transient notification failure")
	// ErrLimitReached is returned once a farm's daily budget is spent.
	ErrLimitReached = errors.New("daily notification limit reached")
	// ErrNoRecipient means neither the farm nor the configuration names a recipient.
	ErrNoRecipient = errors.New("no notification recipient")
)

const sendTimeout = 10 * time.Second

// WhatsAppNotifier delivers reminders as WhatsApp text messages.
type WhatsAppNotifier struct {
	client           client.Client
	quota            *Quota
	defaultRecipient string
	logger           *zap.Logger
}

// NewWhatsAppNotifier wires a notifier; quota may be nil.
func NewWhatsAppNotifier(c client.Client, quota *Quota, defaultRecipient string, logger *zap.Logger) *WhatsAppNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhatsAppNotifier{
		client:           c,
		quota:            quota,
		defaultRecipient: defaultRecipient,
		logger:           logger,
	}
}

// Recipient resolves who receives the farm's reminders.
func (n *WhatsAppNotifier) Recipient(farm models.Farm) string {
	if farm.NotifyTo != "" {
		return farm.NotifyTo
	}
	return n.defaultRecipient
}

// Notify sends one reminder, counting it against the farm's quota for day.
func (n *WhatsAppNotifier) Notify(ctx context.Context, farm models.Farm, day calendar.Date, r models.Reminder) error {
	to := n.Recipient(farm)
	if to == "" {
		return fmt.Errorf("farm %s: %w", farm.ID, ErrNoRecipient)
	}

	if err := n.quota.Take(ctx, farm.ID, day); err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	resp, err := n.client.SendTextMessage(sendCtx, client.SendTextMessageRequest{
		To:   to,
		Body: Render(r),
	})
	if err != nil {
		if refundErr := n.quota.Refund(ctx, farm.ID, day); refundErr != nil {
			n.logger.Warn("failed to refund notification quota", zap.String("farm_id", farm.ID), zap.Error(refundErr))
		}
		return classify(err)
	}

	n.logger.Debug("reminder delivered",
		zap.String("reminder_id", r.ID),
		zap.String("to", to),
		zap.String("message_id", resp.MessageID()))
	return nil
}

// Reply sends a free-form text, used for operator command answers.
func (n *WhatsAppNotifier) Reply(ctx context.Context, to, body string) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if _, err := n.client.SendTextMessage(sendCtx, client.SendTextMessageRequest{To: to, Body: body}); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && !apiErr.Temporary() {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

var severityTags = map[models.Severity]string{
	models.SeverityHigh:   "URGENT",
	models.SeverityMedium: "Reminder",
	models.SeverityLow:    "FYI",
}

// Render formats a reminder for a chat message.
func Render(r models.Reminder) string {
	tag := severityTags[r.Severity]
	if tag == "" {
		tag = "Reminder"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n%s", tag, strings.ReplaceAll(string(r.Kind), "_", " "), r.Message)
	fmt.Fprintf(&b, "\nReply /done %s once handled.", r.ID)
	return b.String()
}
