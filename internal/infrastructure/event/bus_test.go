package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dealhunter/backend/internal/domain/settlement"
	"github.com/dealhunter/backend/internal/domain/shared"
	"github.com/dealhunter/backend/internal/infrastructure/cache"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// recordingHandler captures every event it receives
type recordingHandler struct {
	mu     sync.Mutex
	types  []string
	events []shared.DomainEvent
	err    error
}

func (h *recordingHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return h.err
}

func (h *recordingHandler) EventTypes() []string {
	return h.types
}

func (h *recordingHandler) received() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.events...)
}

// panickingHandler always panics
type panickingHandler struct{}

func (h *panickingHandler) Handle(context.Context, shared.DomainEvent) error {
	panic("handler exploded")
}

func (h *panickingHandler) EventTypes() []string {
	return []string{"LoanRepaid"}
}

func newTestEvent(eventType string) shared.DomainEvent {
	e := shared.NewBaseDomainEvent(eventType, "FinancedPosition", uuid.New())
	return &e
}

func TestInMemoryEventBus_PublishDispatchesToSubscribedHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := &recordingHandler{types: []string{"LoanRepaid"}}
	bus.Subscribe(handler)

	err := bus.Publish(context.Background(), newTestEvent("LoanRepaid"))
	require.NoError(t, err)

	events := handler.received()
	require.Len(t, events, 1)
	assert.Equal(t, "LoanRepaid", events[0].EventType())
}

func TestInMemoryEventBus_HandlerOnlyReceivesItsTypes(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := &recordingHandler{types: []string{"DealSettled"}}
	bus.Subscribe(handler)

	err := bus.Publish(context.Background(), newTestEvent("LoanRepaid"))
	require.NoError(t, err)

	assert.Empty(t, handler.received())
}

func TestInMemoryEventBus_WildcardHandlerReceivesAllEvents(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := &recordingHandler{}
	bus.Subscribe(handler)

	err := bus.Publish(context.Background(),
		newTestEvent("DealSettled"),
		newTestEvent("LoanRepaid"),
	)
	require.NoError(t, err)

	assert.Len(t, handler.received(), 2)
}

func TestInMemoryEventBus_HandlerErrorDoesNotStopDispatch(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	bus := NewInMemoryEventBus(zap.New(core))

	failing := &recordingHandler{types: []string{"DealSettled"}, err: errors.New("boom")}
	healthy := &recordingHandler{types: []string{"DealSettled"}}
	bus.Subscribe(failing)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), newTestEvent("DealSettled"))
	require.NoError(t, err)

	assert.Len(t, healthy.received(), 1)
	assert.Equal(t, 1, logs.FilterMessage("handler failed to process event").Len())
}

func TestInMemoryEventBus_HandlerPanicIsRecovered(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	bus := NewInMemoryEventBus(zap.New(core))

	bus.Subscribe(&panickingHandler{})
	healthy := &recordingHandler{types: []string{"LoanRepaid"}}
	bus.Subscribe(healthy)

	require.NotPanics(t, func() {
		_ = bus.Publish(context.Background(), newTestEvent("LoanRepaid"))
	})

	assert.Len(t, healthy.received(), 1)
	assert.Equal(t, 1, logs.FilterMessage("handler panicked").Len())
}

func TestInMemoryEventBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := &recordingHandler{types: []string{"LoanRepaid"}}
	bus.Subscribe(handler)
	bus.Unsubscribe(handler)

	err := bus.Publish(context.Background(), newTestEvent("LoanRepaid"))
	require.NoError(t, err)

	assert.Empty(t, handler.received())
}

func TestSettlementLogHandler_LogsLifecycleEvents(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := NewSettlementLogHandler(zap.New(core))

	position := &settlement.FinancedPosition{
		AssetContract: "0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d",
		AssetID:       "1234",
		Buyer:         "0x00000000000000000000000000000000000b0b01",
	}
	position.ID = uuid.New()

	repaid := settlement.NewLoanRepaidEvent(position, position.Buyer,
		decimal.NewFromInt(10), decimal.NewFromInt(19))
	released := settlement.NewAssetReleasedEvent(position)

	require.NoError(t, handler.Handle(context.Background(), repaid))
	require.NoError(t, handler.Handle(context.Background(), released))

	assert.Equal(t, 1, logs.FilterMessage("loan repaid").Len())
	assert.Equal(t, 1, logs.FilterMessage("asset released").Len())
}

func TestIdempotentHandler_SkipsDuplicateDeliveries(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	inner := &recordingHandler{types: []string{"LoanRepaid"}}
	handler := NewIdempotentHandler(inner, store, time.Minute, zap.NewNop())

	event := newTestEvent("LoanRepaid")
	require.NoError(t, handler.Handle(context.Background(), event))
	require.NoError(t, handler.Handle(context.Background(), event))

	assert.Len(t, inner.received(), 1)
}

func TestIdempotentHandler_DistinctEventsAreProcessed(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	inner := &recordingHandler{types: []string{"LoanRepaid"}}
	handler := NewIdempotentHandler(inner, store, time.Minute, zap.NewNop())

	require.NoError(t, handler.Handle(context.Background(), newTestEvent("LoanRepaid")))
	require.NoError(t, handler.Handle(context.Background(), newTestEvent("LoanRepaid")))

	assert.Len(t, inner.received(), 2)
}
