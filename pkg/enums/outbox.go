package enums

// OutboxAggregateType is the aggregate_type_enum column of outbox rows.
type OutboxAggregateType string

const AggregateOrder OutboxAggregateType = "order"

var aggregateTypes = newSet("aggregate type", AggregateOrder)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

// OutboxEventType is the event_type_enum column and the Pub/Sub event_type attribute.
type OutboxEventType string

const (
	EventOrderPaid             OutboxEventType = "order_paid"
	EventOrderScheduled        OutboxEventType = "order_scheduled"
	EventOrderReleased         OutboxEventType = "order_released"
	EventOrderSubmitted        OutboxEventType = "order_submitted"
	EventOrderSubmissionFailed OutboxEventType = "order_submission_failed"
	EventOrderPaymentFailed    OutboxEventType = "order_payment_failed"
)

var eventTypes = newSet("event type",
	EventOrderPaid, EventOrderScheduled, EventOrderReleased,
	EventOrderSubmitted, EventOrderSubmissionFailed, EventOrderPaymentFailed,
)

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(raw string) (OutboxEventType, error) { return eventTypes.parse(raw) }

// OutboxDLQErrorReason says why a row was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = newSet("dead letter reason", OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable)

func (r OutboxDLQErrorReason) IsValid() bool { return dlqReasons.has(r) }
