// Package notification delivers workflow events to people. Notifiers are
// dispatcher handlers run by the outbox relay; a returned error makes the
// relay retry the event later.
package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/tutor-matching/internal/application/dispatcher"
	"github.com/garyjia/tutor-matching/internal/application/port"
	"github.com/garyjia/tutor-matching/internal/domain/event"
)

// LogNotifier writes every workflow event to the structured log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Handle implements dispatcher.Handler
func (n *LogNotifier) Handle(ctx context.Context, evt *event.Event) error {
	n.logger.Info("Workflow event",
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type.String()),
		zap.String("entity_type", evt.EntityType.String()),
		zap.String("entity_id", evt.EntityID),
		zap.String("from_status", evt.FromStatus),
		zap.String("to_status", evt.ToStatus),
		zap.String("actor_role", evt.ActorRole.String()),
		zap.String("correlation_id", evt.CorrelationID),
		zap.String("message", Render(evt)))
	return nil
}

// ChatNotifier posts rendered events to an admin chat
type ChatNotifier struct {
	sender        port.MessageSender
	receiveIDType string
	receiveID     string
	only          map[event.Type]bool
	logger        *zap.Logger
}

// ChatConfig holds chat notifier configuration
type ChatConfig struct {
	ReceiveIDType string // chat_id, open_id, user_id or email
	ReceiveID     string
	// EventTypes limits which events are posted; empty posts all
	EventTypes []string
}

// NewChatNotifier creates a chat notifier
func NewChatNotifier(sender port.MessageSender, cfg ChatConfig, logger *zap.Logger) *ChatNotifier {
	if cfg.ReceiveIDType == "" {
		cfg.ReceiveIDType = "chat_id"
	}
	only := make(map[event.Type]bool, len(cfg.EventTypes))
	for _, t := range cfg.EventTypes {
		only[event.Type(t)] = true
	}
	return &ChatNotifier{
		sender:        sender,
		receiveIDType: cfg.ReceiveIDType,
		receiveID:     cfg.ReceiveID,
		only:          only,
		logger:        logger,
	}
}

// Wants reports whether the notifier posts this event type
func (n *ChatNotifier) Wants(t event.Type) bool {
	return len(n.only) == 0 || n.only[t]
}

// Handle implements dispatcher.Handler
func (n *ChatNotifier) Handle(ctx context.Context, evt *event.Event) error {
	if !n.Wants(evt.Type) {
		return nil
	}
	messageID, err := n.sender.SendText(ctx, n.receiveIDType, n.receiveID, Render(evt))
	if err != nil {
		return fmt.Errorf("chat notification for event %s: %w", evt.ID, err)
	}
	n.logger.Debug("Chat notification sent",
		zap.String("event_id", evt.ID),
		zap.String("message_id", messageID))
	return nil
}

// Register subscribes the notifiers to every event type
func Register(d dispatcher.Dispatcher, logNotifier *LogNotifier, chat *ChatNotifier) {
	if logNotifier != nil {
		d.SubscribeNamed(dispatcher.AllEvents, "log-notifier", logNotifier.Handle)
	}
	if chat != nil {
		d.SubscribeNamed(dispatcher.AllEvents, "chat-notifier", chat.Handle)
	}
}
