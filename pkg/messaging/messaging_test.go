package messaging

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/medflow/medflow-clinic/pkg/actor"
	"github.com/medflow/medflow-clinic/pkg/logger"
	"github.com/medflow/medflow-clinic/pkg/tenant"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackRecorder struct {
	acked, nacked, rejected int
	requeued                bool
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acked++; return nil }
func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	a.requeued = requeue
	return nil
}
func (a *ackRecorder) Reject(uint64, bool) error { a.rejected++; return nil }

func delivery(t *testing.T, ack *ackRecorder, event *Event, headers amqp.Table) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body, Headers: headers}
}

func TestBuildEvent_StampsTenantAndActor(t *testing.T) {
	ctx := tenant.WithTenantContext(context.Background(), "tenant-1", "facility-1")
	ctx = actor.WithActor(ctx, &actor.Actor{ID: "user-1", Role: "cashier"})
	ctx = WithCorrelationID(ctx, "req-1")

	event, err := BuildEvent(ctx, EventPaymentCompleted, "clinic-service", PaymentCompletedEvent{PaymentID: "p1", TotalAmount: 1500})
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "tenant-1", event.TenantID)
	assert.Equal(t, "user-1", event.ActorID)
	assert.Equal(t, "cashier", event.ActorRole)
	assert.Equal(t, "req-1", event.CorrelationID)

	var data PaymentCompletedEvent
	require.NoError(t, event.UnmarshalData(&data))
	assert.Equal(t, int64(1500), data.TotalAmount)
}

func TestConsumer_HandleMessage(t *testing.T) {
	event, err := NewEvent(EventVisitRegistered, "clinic-service", "corr", VisitRegisteredEvent{VisitID: "v1"})
	require.NoError(t, err)
	event.TenantID = "tenant-1"

	t.Run("dispatches with tenant context", func(t *testing.T) {
		c := newConsumer(nil, "q", logger.Nop())
		var gotTenant string
		c.RegisterHandler(EventVisitRegistered, func(ctx context.Context, e *Event) error {
			gotTenant, _ = tenant.TenantID(ctx)
			return nil
		})
		ack := &ackRecorder{}
		c.handleMessage(context.Background(), delivery(t, ack, event, nil))
		assert.Equal(t, 1, ack.acked)
		assert.Equal(t, "tenant-1", gotTenant)
	})

	t.Run("fallback handles unknown types", func(t *testing.T) {
		c := newConsumer(nil, "q", logger.Nop())
		called := false
		c.RegisterFallback(func(ctx context.Context, e *Event) error { called = true; return nil })
		ack := &ackRecorder{}
		c.handleMessage(context.Background(), delivery(t, ack, event, nil))
		assert.True(t, called)
		assert.Equal(t, 1, ack.acked)
	})

	t.Run("failure requeues until retries exhausted", func(t *testing.T) {
		c := newConsumer(nil, "q", logger.Nop())
		c.RegisterHandler(EventVisitRegistered, func(ctx context.Context, e *Event) error { return assert.AnError })

		ack := &ackRecorder{}
		c.handleMessage(context.Background(), delivery(t, ack, event, nil))
		assert.Equal(t, 1, ack.nacked)
		assert.True(t, ack.requeued)

		ack = &ackRecorder{}
		headers := amqp.Table{"x-death": []interface{}{amqp.Table{"count": int64(3)}}}
		c.handleMessage(context.Background(), delivery(t, ack, event, headers))
		assert.Equal(t, 1, ack.rejected)
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		c := newConsumer(nil, "q", logger.Nop())
		ack := &ackRecorder{}
		c.handleMessage(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("{")})
		assert.Equal(t, 1, ack.rejected)
	})
}

func TestDeadLetterExchange(t *testing.T) {
	assert.Equal(t, "clinic.events.dlx", DeadLetterExchange(ExchangeClinicEvents))
}
