package event

import (
	"context"
	"fmt"
	"time"

	"github.com/dealhunter/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// IdempotentHandler wraps an EventHandler so that each event is
// processed at most once. Delivery state is tracked per event ID in
// an IdempotencyStore, which may be shared across instances.
type IdempotentHandler struct {
	inner  shared.EventHandler
	store  shared.IdempotencyStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewIdempotentHandler wraps a handler with idempotency tracking
func NewIdempotentHandler(inner shared.EventHandler, store shared.IdempotencyStore, ttl time.Duration, logger *zap.Logger) *IdempotentHandler {
	return &IdempotentHandler{
		inner:  inner,
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// EventTypes delegates to the wrapped handler
func (h *IdempotentHandler) EventTypes() []string {
	return h.inner.EventTypes()
}

// Handle processes the event only if it has not been seen before
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	key := event.EventID().String()

	first, err := h.store.MarkProcessed(ctx, key, h.ttl)
	if err != nil {
		return fmt.Errorf("failed to check event delivery state: %w", err)
	}
	if !first {
		h.logger.Debug("skipping already processed event",
			zap.String("event_id", key),
			zap.String("event_type", event.EventType()),
		)
		return nil
	}

	return h.inner.Handle(ctx, event)
}

// Ensure IdempotentHandler implements EventHandler
var _ shared.EventHandler = (*IdempotentHandler)(nil)
