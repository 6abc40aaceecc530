package event

import (
	"context"
	"encoding/json"

	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// AuditLogHandler writes every domain event to the log as a JSON payload.
// It is the default subscriber until a broker-backed publisher exists.
type AuditLogHandler struct {
	logger *zap.Logger
}

// NewAuditLogHandler creates an audit handler
func NewAuditLogHandler(log *zap.Logger) *AuditLogHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditLogHandler{logger: log.Named("audit")}
}

// Handle logs the event
func (h *AuditLogHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	logger.ForContext(ctx, h.logger).Info("domain event",
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.String("aggregate_type", event.AggregateType()),
		zap.String("aggregate_id", event.AggregateID()),
		zap.Time("occurred_at", event.OccurredAt()),
		zap.ByteString("payload", payload),
	)
	return nil
}

// EventTypes subscribes to all events
func (h *AuditLogHandler) EventTypes() []string {
	return nil
}
