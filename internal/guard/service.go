package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/giftflow-backend/pkg/config"
	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/metrics"
	"github.com/angelmondragon/giftflow-backend/pkg/types"
)

// Check names a guard check.
type Check string

const (
	CheckRate     Check = "rate_limit"
	CheckCost     Check = "cost_limit"
	CheckFraud    Check = "fraud"
	CheckRetry    Check = "retry_abuse"
	CheckBehavior Check = "behavior"
)

// Input describes the submission being gated.
type Input struct {
	UserID          uuid.UUID
	OrderID         uuid.UUID
	Amount          decimal.Decimal
	Items           []Item
	ShippingAddress types.ShippingAddress
	Trigger         enums.TriggerSource
	// Retry is set when the order already had a submission attempt.
	Retry bool
	// RetryCount is the order's retry count after this attempt was counted.
	RetryCount int
}

// Result aggregates every check. Errors explain blocks; Warnings never block.
type Result struct {
	Allowed   bool
	BlockedBy []Check
	Errors    []string
	Warnings  []string
}

// Reason joins the blocking reasons for notes and API responses.
func (r Result) Reason() string {
	return strings.Join(r.Errors, "; ")
}

// Outcome reports how a gated submission ended.
type Outcome struct {
	UserID  uuid.UUID
	OrderID uuid.UUID
	Amount  decimal.Decimal
	Success bool
	Reason  string
}

// Guard gates marketplace submissions.
type Guard interface {
	Evaluate(ctx context.Context, in Input) Result
	RecordOutcome(ctx context.Context, outcome Outcome) error
}

type windowCounter interface {
	WindowAllow(ctx context.Context, scope string, limit int64, window time.Duration, now time.Time) (bool, int64, error)
}

// ServiceParams wires guard dependencies.
type ServiceParams struct {
	Config    config.GuardConfig
	Repo      Repository
	Counters  windowCounter
	Suspicion SuspicionPolicy
	Metrics   *metrics.FulfillmentMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	cfg       config.GuardConfig
	repo      Repository
	counters  windowCounter
	suspicion SuspicionPolicy
	metrics   *metrics.FulfillmentMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the guard layer.
func NewService(params ServiceParams) (Guard, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "guard repository required")
	}
	if params.Counters == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "rate counters required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	suspicion := params.Suspicion
	if suspicion == nil {
		suspicion = DefaultSuspicionPolicy(params.Config.SuspiciousRepeats, params.Config.MaxItemQuantity)
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		cfg:       params.Config,
		repo:      params.Repo,
		counters:  params.Counters,
		suspicion: suspicion,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// finding is what one check concluded.
type finding struct {
	check    Check
	blocked  bool
	errors   []string
	warnings []string
	events   []models.SecurityEvent
	// fingerprint is set by the fraud check so it can be stored after evaluation.
	fingerprint string
}

func (f *finding) block(reason string) {
	f.blocked = true
	f.errors = append(f.errors, reason)
}

func (f *finding) event(in Input, eventType enums.SecurityEventType, severity enums.Severity, details map[string]any) {
	payload, _ := json.Marshal(details)
	orderID := in.OrderID
	f.events = append(f.events, models.SecurityEvent{
		ID:        uuid.New(),
		UserID:    in.UserID,
		OrderID:   &orderID,
		EventType: eventType,
		Severity:  severity,
		Details:   payload,
	})
}

// Evaluate runs the gating checks and the advisory check concurrently. The checks only
// read state; events and the fingerprint are written after every check has finished.
func (s *service) Evaluate(ctx context.Context, in Input) Result {
	now := s.now().UTC()
	ctx = s.logg.WithFields(s.logg.WithOrderID(ctx, in.OrderID.String()), map[string]any{
		"user_id": in.UserID.String(),
		"trigger": in.Trigger,
	})

	checks := []struct {
		name Check
		run  func(context.Context, Input, time.Time) (*finding, error)
	}{
		{CheckRate, s.checkRate},
		{CheckCost, s.checkCost},
		{CheckFraud, s.checkFraud},
		{CheckRetry, s.checkRetry},
		{CheckBehavior, s.checkBehavior},
	}

	findings := make([]*finding, len(checks))
	failures := make([]error, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			findings[i], failures[i] = c.run(ctx, in, now)
			return nil
		})
	}
	_ = g.Wait()

	result := Result{Allowed: true}
	var events []models.SecurityEvent
	var fingerprint string
	for i, c := range checks {
		f := findings[i]
		if failures[i] != nil {
			f = s.checkFailed(ctx, in, c.name, failures[i])
		}
		if f == nil {
			continue
		}
		if f.blocked {
			result.Allowed = false
			result.BlockedBy = append(result.BlockedBy, c.name)
			s.metrics.IncGuardBlock(string(c.name))
		}
		result.Errors = append(result.Errors, f.errors...)
		result.Warnings = append(result.Warnings, f.warnings...)
		events = append(events, f.events...)
		if f.fingerprint != "" {
			fingerprint = f.fingerprint
		}
	}

	if err := s.persist(ctx, in, events, fingerprint); err != nil {
		s.logg.Error(ctx, "failed to persist guard findings", err)
	}

	if !result.Allowed {
		s.logg.Warn(s.logg.WithField(ctx, "blocked_by", result.BlockedBy), "submission blocked: "+result.Reason())
	} else if len(result.Warnings) > 0 {
		s.logg.Info(s.logg.WithField(ctx, "warnings", result.Warnings), "submission allowed with warnings")
	}
	return result
}

// checkFailed applies the failure policy of a check that could not reach its state.
// Rate limiting fails open; the advisory check is dropped; every other check fails closed.
func (s *service) checkFailed(ctx context.Context, in Input, check Check, err error) *finding {
	s.logg.Error(s.logg.WithField(ctx, "check", check), "guard check errored", err)
	f := &finding{check: check}
	switch check {
	case CheckRate:
		f.warnings = append(f.warnings, "rate limit unavailable, allowing submission")
	case CheckBehavior:
		return f
	default:
		f.block(fmt.Sprintf("%s check unavailable", check))
	}
	f.event(in, enums.SecurityEventGuardCheckFailed, enums.SeverityWarning, map[string]any{
		"check": check,
		"error": err.Error(),
	})
	return f
}

func (s *service) persist(ctx context.Context, in Input, events []models.SecurityEvent, fingerprint string) error {
	var errs error
	if err := s.repo.InsertEvents(ctx, events); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("insert security events: %w", err))
	}
	if fingerprint != "" {
		err := s.repo.SaveFingerprint(ctx, &models.OrderFingerprint{
			OrderID:     in.OrderID,
			UserID:      in.UserID,
			Fingerprint: fingerprint,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("save fingerprint: %w", err))
		}
	}
	return errs
}

// RecordOutcome resets the failure streak and adds spend on success, or extends the
// streak and records a submission failure event.
func (s *service) RecordOutcome(ctx context.Context, outcome Outcome) error {
	now := s.now().UTC()
	if outcome.Success {
		if err := s.repo.RecordSuccess(ctx, outcome.UserID, outcome.Amount, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record guard success")
		}
		return nil
	}

	var errs error
	count, err := s.repo.RecordFailure(ctx, outcome.UserID, now)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("record failure streak: %w", err))
	}
	severity := enums.SeverityInfo
	if count > s.cfg.FailureWarnThreshold {
		severity = enums.SeverityWarning
	}
	f := &finding{}
	f.event(Input{UserID: outcome.UserID, OrderID: outcome.OrderID}, enums.SecurityEventSubmissionFailed, severity, map[string]any{
		"reason":               outcome.Reason,
		"consecutive_failures": count,
	})
	if err := s.repo.InsertEvents(ctx, f.events); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("insert failure event: %w", err))
	}
	if errs != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "record guard failure")
	}
	return nil
}
