package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/rabbitry/internal/config"
	"github.com/mamadbah2/rabbitry/internal/domain/models"
	"github.com/mamadbah2/rabbitry/internal/repository"
)

// MessagingService describes the operations the HTTP layer can perform.
type MessagingService interface {
	VerifyWebhookToken(mode, verifyToken, challenge string) (string, error)
	HandleWebhook(ctx context.Context, payload models.WebhookPayload) error
}

// ReminderDesk is the reminder surface operators reach from chat.
type ReminderDesk interface {
	DueToday(ctx context.Context, farmID string) ([]models.Reminder, error)
	GetReminder(ctx context.Context, reminderID string) (models.Reminder, error)
	CompleteReminder(ctx context.Context, reminderID string) (models.Reminder, error)
}

// FarmDirectory lists the registered farms.
type FarmDirectory interface {
	ListFarms(ctx context.Context) ([]models.Farm, error)
}

// Replier sends a text back to an operator.
type Replier interface {
	Reply(ctx context.Context, to, body string) error
}

// MetaWhatsAppService answers operator commands received on the WhatsApp webhook.
type MetaWhatsAppService struct {
	cfg           config.WhatsAppConfig
	defaultFarmID string
	desk          ReminderDesk
	farms         FarmDirectory
	replier       Replier
	logger        *zap.Logger
}

// NewMetaWhatsAppService wires a new service instance. Senders that are not a
// farm's recipient act on defaultFarmID, when set.
func NewMetaWhatsAppService(cfg config.WhatsAppConfig, defaultFarmID string, desk ReminderDesk, farms FarmDirectory, replier Replier, logger *zap.Logger) *MetaWhatsAppService {
	svc := &MetaWhatsAppService{
		cfg:           cfg,
		defaultFarmID: defaultFarmID,
		desk:          desk,
		farms:         farms,
		replier:       replier,
		logger:        logger,
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	return svc
}

const maxListed = 10

var commandReplies = map[models.CommandType]models.AutomationReply{
	models.CommandHelp: {
		Title:   "Commands",
		Message: "/due lists today's reminders.\n/done <id> marks a reminder as handled.",
	},
	models.CommandUnknown: {
		Title:   "Command Help",
		Message: "Unknown command. Supported: /due, /done <id>, /help.",
	},
}

// VerifyWebhookToken validates the callback verification token.
func (s *MetaWhatsAppService) VerifyWebhookToken(mode, verifyToken, challenge string) (string, error) {
	if mode == "" || verifyToken == "" {
		return "", errors.New("missing mode or verify token")
	}

	if !strings.EqualFold(mode, "subscribe") {
		return "", fmt.Errorf("unsupported hub.mode %s", mode)
	}

	if verifyToken != s.cfg.VerifyToken {
		return "", errors.New("invalid verify token")
	}

	return challenge, nil
}

// HandleWebhook processes inbound webhook payloads.
func (s *MetaWhatsAppService) HandleWebhook(ctx context.Context, payload models.WebhookPayload) error {
	if len(payload.Entry) == 0 {
		return nil
	}

	var firstErr error

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Messages) == 0 {
				continue
			}

			for _, msg := range change.Value.Messages {
				if err := s.handleInboundMessage(ctx, msg); err != nil {
					s.logger.Error("failed to handle inbound message", zap.Error(err), zap.String("message_id", msg.ID))
					if firstErr == nil {
						firstErr = err
					}
				}
			}
		}
	}

	return firstErr
}

func (s *MetaWhatsAppService) handleInboundMessage(ctx context.Context, msg models.InboundMessage) error {
	text := extractMessageText(msg)
	if text == "" {
		s.logger.Debug("ignoring message without text", zap.String("message_id", msg.ID), zap.String("type", msg.Type))
		return nil
	}

	cmd := models.ParseCommand(text)
	s.logger.Info("parsed inbound command",
		zap.String("from", msg.From),
		zap.String("command", string(cmd.Type)),
		zap.Strings("args", cmd.Args))

	reply, err := s.answer(ctx, msg.From, cmd)
	if err != nil {
		return err
	}

	return s.replier.Reply(ctx, msg.From, fmt.Sprintf("%s\n%s", reply.Title, reply.Message))
}

func (s *MetaWhatsAppService) answer(ctx context.Context, from string, cmd models.Command) (models.AutomationReply, error) {
	switch cmd.Type {
	case models.CommandDue, models.CommandDone:
	default:
		reply, ok := commandReplies[cmd.Type]
		if !ok {
			reply = commandReplies[models.CommandUnknown]
		}
		return reply, nil
	}

	farmID, err := s.farmFor(ctx, from)
	if err != nil {
		return models.AutomationReply{}, err
	}
	if farmID == "" {
		return models.AutomationReply{
			Title:   "Unknown farm",
			Message: "This number is not linked to a farm.",
		}, nil
	}

	if cmd.Type == models.CommandDue {
		return s.listDue(ctx, farmID)
	}
	return s.complete(ctx, farmID, cmd.Args)
}

// farmFor maps a sender to the farm whose reminders it receives.
func (s *MetaWhatsAppService) farmFor(ctx context.Context, from string) (string, error) {
	farms, err := s.farms.ListFarms(ctx)
	if err != nil {
		return "", fmt.Errorf("list farms: %w", err)
	}
	for _, farm := range farms {
		if farm.NotifyTo != "" && farm.NotifyTo == from {
			return farm.ID, nil
		}
	}
	return s.defaultFarmID, nil
}

func (s *MetaWhatsAppService) listDue(ctx context.Context, farmID string) (models.AutomationReply, error) {
	due, err := s.desk.DueToday(ctx, farmID)
	if err != nil {
		return models.AutomationReply{}, fmt.Errorf("list due reminders: %w", err)
	}
	if len(due) == 0 {
		return models.AutomationReply{Title: "Due today", Message: "Nothing due today."}, nil
	}

	lines := make([]string, 0, maxListed+1)
	for i, r := range due {
		if i == maxListed {
			lines = append(lines, fmt.Sprintf("... and %d more", len(due)-maxListed))
			break
		}
		lines = append(lines, fmt.Sprintf("%s: %s", r.ID, r.Message))
	}
	return models.AutomationReply{
		Title:   fmt.Sprintf("Due today (%d)", len(due)),
		Message: strings.Join(lines, "\n"),
	}, nil
}

func (s *MetaWhatsAppService) complete(ctx context.Context, farmID string, args []string) (models.AutomationReply, error) {
	if len(args) == 0 {
		return models.AutomationReply{Title: "Missing id", Message: "Usage: /done <reminder id>"}, nil
	}
	id := args[0]

	r, err := s.desk.GetReminder(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && r.FarmID != farmID) {
		return models.AutomationReply{Title: "Not found", Message: fmt.Sprintf("No reminder %s on your farm.", id)}, nil
	}
	if err != nil {
		return models.AutomationReply{}, fmt.Errorf("get reminder %s: %w", id, err)
	}

	if _, err := s.desk.CompleteReminder(ctx, id); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return models.AutomationReply{
				Title:   "Already closed",
				Message: fmt.Sprintf("Reminder %s is no longer pending.", id),
			}, nil
		}
		return models.AutomationReply{}, fmt.Errorf("complete reminder %s: %w", id, err)
	}
	return models.AutomationReply{Title: "Done", Message: fmt.Sprintf("Reminder %s marked as handled.", id)}, nil
}

func extractMessageText(msg models.InboundMessage) string {
	if msg.Text != nil {
		return msg.Text.Body
	}

	if msg.Interactive != nil {
		if msg.Interactive.ButtonReply != nil {
			return msg.Interactive.ButtonReply.ID
		}
		if msg.Interactive.ListReply != nil {
			return msg.Interactive.ListReply.ID
		}
	}

	return ""
}
