package event

import (
	"context"

	"github.com/dealhunter/backend/internal/domain/settlement"
	"github.com/dealhunter/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// SettlementLogHandler writes an audit log line for every settlement
// lifecycle event. It is the default subscriber wired at startup.
type SettlementLogHandler struct {
	logger *zap.Logger
}

// NewSettlementLogHandler creates a new settlement audit handler
func NewSettlementLogHandler(logger *zap.Logger) *SettlementLogHandler {
	return &SettlementLogHandler{logger: logger}
}

// EventTypes returns the settlement lifecycle events this handler audits
func (h *SettlementLogHandler) EventTypes() []string {
	return []string{"DealSettled", "LoanRepaid", "AssetReleased"}
}

// Handle writes a structured audit entry for the event
func (h *SettlementLogHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_id", event.EventID().String()),
		zap.String("aggregate_id", event.AggregateID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
	}

	switch e := event.(type) {
	case *settlement.DealSettledEvent:
		fields = append(fields,
			zap.String("asset_contract", string(e.AssetContract)),
			zap.String("asset_id", e.AssetID),
			zap.String("buyer", string(e.Buyer)),
			zap.String("price", e.Price.String()),
			zap.String("mode", string(e.Mode)),
		)
		h.logger.Info("deal settled", fields...)
	case *settlement.LoanRepaidEvent:
		fields = append(fields,
			zap.String("asset_contract", string(e.AssetContract)),
			zap.String("asset_id", e.AssetID),
			zap.String("payer", string(e.Payer)),
			zap.String("amount", e.Amount.String()),
			zap.String("outstanding", e.Outstanding.String()),
		)
		h.logger.Info("loan repaid", fields...)
	case *settlement.AssetReleasedEvent:
		fields = append(fields,
			zap.String("asset_contract", string(e.AssetContract)),
			zap.String("asset_id", e.AssetID),
			zap.String("buyer", string(e.Buyer)),
		)
		h.logger.Info("asset released", fields...)
	default:
		fields = append(fields, zap.String("event_type", event.EventType()))
		h.logger.Info("settlement event", fields...)
	}

	return nil
}

// Ensure SettlementLogHandler implements EventHandler
var _ shared.EventHandler = (*SettlementLogHandler)(nil)
