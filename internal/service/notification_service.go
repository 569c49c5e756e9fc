package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/helpdesk-labs/helpdesk-service/internal/config"
	"github.com/helpdesk-labs/helpdesk-service/internal/events"
)

// Notification channels.
const (
	ChannelEmail   = "email"
	ChannelWebhook = "webhook"
)

// Notification is one outbound message derived from a domain event.
type Notification struct {
	Channel   string
	Recipient string
	EventType events.EventType
	TicketID  string
	Subject   string
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// logNotifier stands in for real email and webhook delivery.
type logNotifier struct {
	logger *zap.Logger
	cfg    config.NotificationConfig
}

func (l logNotifier) Notify(_ context.Context, n Notification) error {
	fields := []zap.Field{
		zap.String("channel", n.Channel),
		zap.String("recipient", n.Recipient),
		zap.String("ticket_id", n.TicketID),
		zap.String("event_type", string(n.EventType)),
		zap.String("subject", n.Subject),
	}
	switch n.Channel {
	case ChannelEmail:
		fields = append(fields, zap.String("from", l.cfg.EmailFrom))
	case ChannelWebhook:
		fields = append(fields, zap.String("url", l.cfg.WebhookURL))
	}
	l.logger.Debug("notification stub", fields...)
	return nil
}

// NotificationService turns ticket events into requester, assignee and
// webhook notifications.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	notifier   Notifier
}

// NewNotificationService creates the service. A nil notifier logs instead
// of delivering.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig, notifier Notifier) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = logNotifier{logger: logger, cfg: cfg}
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		notifier:   notifier,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketCommentAdded, n.handleTicketCommentAdded)
	n.dispatcher.Subscribe(events.EventTicketSLABreached, n.handleTicketSLABreached)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	n.logger.Info("TicketCreated", zap.String("ticket_id", event.TicketID), zap.String("priority", string(payload.Priority)))
	n.email(ctx, event, payload.RequesterID, "We received your request: "+payload.Title)
	n.webhook(ctx, event, "ticket created")
	return nil
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return nil
	}
	n.logger.Info("TicketStatusChanged",
		zap.String("ticket_id", event.TicketID),
		zap.String("old_status", string(payload.OldStatus)),
		zap.String("new_status", string(payload.NewStatus)))
	n.webhook(ctx, event, "status changed to "+string(payload.NewStatus))
	return nil
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return nil
	}
	n.logger.Info("TicketAssigned", zap.String("ticket_id", event.TicketID))
	if payload.AssigneeID != nil {
		n.email(ctx, event, *payload.AssigneeID, "A ticket was assigned to you")
	}
	n.webhook(ctx, event, "assignee changed")
	return nil
}

func (n *NotificationService) handleTicketCommentAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCommentAddedPayload)
	if !ok {
		return nil
	}
	n.logger.Info("TicketCommentAdded", zap.String("ticket_id", event.TicketID), zap.Bool("internal", payload.IsInternal))
	// Internal notes never leave the support team.
	if payload.IsInternal {
		return nil
	}
	n.webhook(ctx, event, payload.BodyPreview)
	return nil
}

func (n *NotificationService) handleTicketSLABreached(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketSLABreachedPayload)
	if !ok {
		return nil
	}
	n.logger.Warn("TicketSLABreached",
		zap.String("ticket_id", event.TicketID),
		zap.Time("sla_deadline", payload.SLADeadline),
		zap.String("status", string(payload.Status)))
	n.webhook(ctx, event, "SLA deadline missed")
	return nil
}

func (n *NotificationService) email(ctx context.Context, event events.Event, recipient, subject string) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" || recipient == "" {
		return
	}
	n.send(ctx, Notification{
		Channel:   ChannelEmail,
		Recipient: recipient,
		EventType: event.Type,
		TicketID:  event.TicketID,
		Subject:   subject,
	})
}

func (n *NotificationService) webhook(ctx context.Context, event events.Event, subject string) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.send(ctx, Notification{
		Channel:   ChannelWebhook,
		Recipient: n.cfg.WebhookURL,
		EventType: event.Type,
		TicketID:  event.TicketID,
		Subject:   subject,
	})
}

// send never fails the publishing request.
func (n *NotificationService) send(ctx context.Context, notification Notification) {
	if err := n.notifier.Notify(ctx, notification); err != nil {
		n.logger.Warn("notification failed",
			zap.String("channel", notification.Channel),
			zap.String("ticket_id", notification.TicketID),
			zap.Error(err))
	}
}
