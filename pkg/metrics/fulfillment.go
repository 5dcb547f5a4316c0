package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Submission outcome labels.
const (
	OutcomeSubmitted        = "submitted"
	OutcomeBlocked          = "blocked"
	OutcomeFailed           = "failed"
	OutcomeUnknown          = "unknown"
	OutcomeAlreadySubmitted = "already_submitted"
)

// Verification outcome labels.
const (
	VerificationVerified         = "verified"
	VerificationAlreadyProcessed = "already_processed"
	VerificationUnpaid           = "unpaid"
	VerificationError            = "error"
)

// FulfillmentMetrics tracks payment verification, guard decisions and marketplace submissions.
type FulfillmentMetrics struct {
	submissions    *prometheus.CounterVec
	guardBlocks    *prometheus.CounterVec
	verifications  *prometheus.CounterVec
	submitDuration prometheus.Histogram
}

// NewFulfillmentMetrics registers the fulfillment metrics on the provided registerer.
func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "giftflow_fulfillment_submissions_total",
		Help: "Marketplace submission attempts by outcome and trigger source.",
	}, []string{"outcome", "trigger"})
	guardBlocks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "giftflow_guard_blocks_total",
		Help: "Orders blocked by a guard check.",
	}, []string{"check"})
	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "giftflow_payment_verifications_total",
		Help: "Checkout session verifications by outcome.",
	}, []string{"outcome"})
	submitDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "giftflow_fulfillment_submit_duration_seconds",
		Help:    "Latency of marketplace order placement calls.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
	})
	reg.MustRegister(submissions, guardBlocks, verifications, submitDuration)
	return &FulfillmentMetrics{
		submissions:    submissions,
		guardBlocks:    guardBlocks,
		verifications:  verifications,
		submitDuration: submitDuration,
	}
}

// IncSubmission counts a submission attempt.
func (m *FulfillmentMetrics) IncSubmission(outcome, trigger string) {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.WithLabelValues(normalizeLabel(outcome), normalizeLabel(trigger)).Inc()
}

// IncGuardBlock counts an order blocked by the named check.
func (m *FulfillmentMetrics) IncGuardBlock(check string) {
	if m == nil || m.guardBlocks == nil {
		return
	}
	m.guardBlocks.WithLabelValues(normalizeLabel(check)).Inc()
}

// IncVerification counts a payment verification outcome.
func (m *FulfillmentMetrics) IncVerification(outcome string) {
	if m == nil || m.verifications == nil {
		return
	}
	m.verifications.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveSubmitDuration records how long the marketplace call took.
func (m *FulfillmentMetrics) ObserveSubmitDuration(d time.Duration) {
	if m == nil || m.submitDuration == nil {
		return
	}
	m.submitDuration.Observe(d.Seconds())
}
