package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox/payloads"
)

type fakeInserter struct {
	table string
	rows  []any
	err   error
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	if f.err != nil {
		return f.err
	}
	f.table = table
	f.rows = append(f.rows, rows...)
	return nil
}

type fakeClaims struct {
	seen     map[string]bool
	released []string
	err      error
}

func (f *fakeClaims) Claim(_ context.Context, id string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen[id] {
		return false, nil
	}
	f.seen[id] = true
	return true, nil
}

func (f *fakeClaims) Release(_ context.Context, id string) error {
	delete(f.seen, id)
	f.released = append(f.released, id)
	return nil
}

func newTestService(t *testing.T, inserter *fakeInserter, claims *fakeClaims) *Service {
	t.Helper()
	svc, err := NewService(Params{
		Subscription: &gcppubsub.Subscriber{},
		Warehouse:    inserter,
		Table:        "order_events",
		Claims:       claims,
		Logger:       logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func submittedMessage(t *testing.T, eventID, orderID uuid.UUID) *gcppubsub.Message {
	t.Helper()
	data, err := json.Marshal(payloads.OrderSubmittedEvent{
		OrderRef: payloads.OrderRef{
			OrderID:     orderID,
			OrderNumber: "GF-1001",
			UserID:      uuid.MustParse("7b0d1f0e-5d43-4c57-9a53-3c4c2f1d9e01"),
			TotalAmount: decimal.RequireFromString("50.25"),
			Currency:    "usd",
		},
		MarketplaceOrderID: "zx_1",
		Trigger:            enums.TriggerManualRecovery,
	})
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
		Actor:      &outbox.ActorRef{Trigger: enums.TriggerCheckout},
		Data:       data,
	})
	require.NoError(t, err)
	return &gcppubsub.Message{
		ID:   "msg-1",
		Data: body,
		Attributes: map[string]string{
			"event_type":     string(enums.EventOrderSubmitted),
			"aggregate_type": string(enums.AggregateOrder),
			"aggregate_id":   orderID.String(),
		},
	}
}

func TestProcessInsertsOrderEventRow(t *testing.T) {
	inserter := &fakeInserter{}
	svc := newTestService(t, inserter, &fakeClaims{seen: map[string]bool{}})
	eventID, orderID := uuid.New(), uuid.New()

	assert.True(t, svc.ingest(context.Background(), submittedMessage(t, eventID, orderID)))
	require.Len(t, inserter.rows, 1)
	assert.Equal(t, "order_events", inserter.table)

	row := inserter.rows[0].(*OrderEventRow)
	assert.Equal(t, eventID.String(), row.EventID)
	assert.Equal(t, "order_submitted", row.EventType)
	assert.Equal(t, orderID.String(), row.OrderID)
	assert.Equal(t, "GF-1001", row.OrderNumber.StringVal)
	assert.Equal(t, "manual_recovery", row.TriggerSource.StringVal, "payload trigger wins over actor")
	assert.Zero(t, row.Amount.Cmp(big.NewRat(201, 4)))
	assert.True(t, row.Payload.Valid)

	// redelivery is skipped
	assert.True(t, svc.ingest(context.Background(), submittedMessage(t, eventID, orderID)))
	assert.Len(t, inserter.rows, 1)
}

func TestProcessNacksAndUnmarksOnInsertFailure(t *testing.T) {
	inserter := &fakeInserter{err: errors.New("bigquery unavailable")}
	claims := &fakeClaims{seen: map[string]bool{}}
	svc := newTestService(t, inserter, claims)
	eventID := uuid.New()

	assert.False(t, svc.ingest(context.Background(), submittedMessage(t, eventID, uuid.New())))
	assert.Equal(t, []string{eventID.String()}, claims.released)
	assert.False(t, claims.seen[eventID.String()])
}

func TestProcessNacksWhenIdempotencyUnavailable(t *testing.T) {
	inserter := &fakeInserter{}
	svc := newTestService(t, inserter, &fakeClaims{seen: map[string]bool{}, err: errors.New("redis down")})

	assert.False(t, svc.ingest(context.Background(), submittedMessage(t, uuid.New(), uuid.New())))
	assert.Empty(t, inserter.rows)
}

func TestProcessDropsUnknownAndMalformedEvents(t *testing.T) {
	inserter := &fakeInserter{}
	svc := newTestService(t, inserter, &fakeClaims{seen: map[string]bool{}})

	unknown := submittedMessage(t, uuid.New(), uuid.New())
	unknown.Attributes["event_type"] = "license_status_changed"
	assert.True(t, svc.ingest(context.Background(), unknown))

	garbled := submittedMessage(t, uuid.New(), uuid.New())
	garbled.Data = []byte("not json")
	assert.True(t, svc.ingest(context.Background(), garbled))

	assert.Empty(t, inserter.rows)
}

func TestRejectedRowIsAckedAndKeepsClaim(t *testing.T) {
	inserter := &fakeInserter{err: pkgerrors.Wrap(pkgerrors.CodeValidation, errors.New("no such field: foo"), "rows rejected")}
	claims := &fakeClaims{seen: map[string]bool{}}
	svc := newTestService(t, inserter, claims)
	eventID := uuid.New()

	assert.True(t, svc.ingest(context.Background(), submittedMessage(t, eventID, uuid.New())))
	assert.Empty(t, claims.released)
	assert.True(t, claims.seen[eventID.String()])
}

func TestNewServiceListsMissingDependencies(t *testing.T) {
	_, err := NewService(Params{Table: " "})
	require.EqualError(t, err, "analytics: missing subscription, warehouse, table, claims, logger")
}

func TestBuildRowFallsBackToAggregateAndActor(t *testing.T) {
	orderID := uuid.New()
	row, err := BuildRow(enums.EventOrderReleased, orderID.String(), outbox.PayloadEnvelope{
		EventID:    uuid.NewString(),
		OccurredAt: time.Date(2026, 10, 16, 7, 0, 0, 0, time.FixedZone("CDT", -5*3600)),
		Actor:      &outbox.ActorRef{Trigger: enums.TriggerScheduledRelease},
		Data:       json.RawMessage(`{"released_at":"2026-10-16T12:00:00Z"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, orderID.String(), row.OrderID)
	assert.Equal(t, "scheduled_release", row.TriggerSource.StringVal)
	assert.Nil(t, row.Amount)
	assert.False(t, row.OrderNumber.Valid)
	assert.Equal(t, time.UTC, row.OccurredAt.Location())

	_, err = BuildRow(enums.EventOrderReleased, "", outbox.PayloadEnvelope{EventID: uuid.NewString()})
	assert.Error(t, err)
}
