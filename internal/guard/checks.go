package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/giftflow-backend/pkg/enums"
)

const dayWindow = 24 * time.Hour

func (s *service) checkRate(ctx context.Context, in Input, now time.Time) (*finding, error) {
	f := &finding{check: CheckRate}
	windows := []struct {
		label  string
		scope  string
		limit  int
		window time.Duration
	}{
		{"hour", "guard:orders:hour:" + in.UserID.String(), s.cfg.HourlyOrderLimit, time.Hour},
		{"day", "guard:orders:day:" + in.UserID.String(), s.cfg.DailyOrderLimit, dayWindow},
	}
	for _, w := range windows {
		allowed, count, err := s.counters.WindowAllow(ctx, w.scope, int64(w.limit), w.window, now)
		if err != nil {
			return nil, fmt.Errorf("rate window %s: %w", w.label, err)
		}
		if allowed {
			continue
		}
		f.block(fmt.Sprintf("order limit reached: %d orders this %s (limit %d)", count, w.label, w.limit))
		f.event(in, enums.SecurityEventRateLimitExceeded, enums.SeverityWarning, map[string]any{
			"window": w.label,
			"count":  count,
			"limit":  w.limit,
		})
	}
	return f, nil
}

func (s *service) checkCost(ctx context.Context, in Input, now time.Time) (*finding, error) {
	f := &finding{check: CheckCost}
	tracking, err := s.repo.FindTracking(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("load spend tracking: %w", err)
	}

	_, dayStart, monthStart := Windows(now)
	daily, monthly := decimal.Zero, decimal.Zero
	if tracking != nil {
		if !tracking.DayWindowStart.UTC().Before(dayStart) {
			daily = tracking.DailySpend
		}
		if !tracking.MonthWindowStart.UTC().Before(monthStart) {
			monthly = tracking.MonthlySpend
		}
	}

	caps := []struct {
		label     string
		existing  decimal.Decimal
		limit     decimal.Decimal
		eventType enums.SecurityEventType
	}{
		{"daily", daily, s.cfg.DailyCostCap, enums.SecurityEventCostLimitExceeded},
		{"monthly", monthly, s.cfg.MonthlyCostCap, enums.SecurityEventCostLimitExceeded},
	}
	for _, c := range caps {
		projected := c.existing.Add(in.Amount)
		details := map[string]any{
			"window":    c.label,
			"existing":  c.existing.StringFixed(2),
			"amount":    in.Amount.StringFixed(2),
			"projected": projected.StringFixed(2),
			"cap":       c.limit.StringFixed(2),
		}
		switch {
		case projected.GreaterThan(c.limit):
			f.block(fmt.Sprintf("%s spend $%s would exceed the $%s cap", c.label, projected.StringFixed(2), c.limit.StringFixed(2)))
			f.event(in, c.eventType, enums.SeverityCritical, details)
		case s.cfg.CostWarnRatio.IsPositive() && projected.GreaterThanOrEqual(c.limit.Mul(s.cfg.CostWarnRatio)):
			f.warnings = append(f.warnings, fmt.Sprintf("%s spend $%s is near the $%s cap", c.label, projected.StringFixed(2), c.limit.StringFixed(2)))
			f.event(in, enums.SecurityEventCostLimitWarning, enums.SeverityWarning, details)
		}
	}
	return f, nil
}

func (s *service) checkFraud(ctx context.Context, in Input, now time.Time) (*finding, error) {
	f := &finding{check: CheckFraud}
	f.fingerprint = Fingerprint(in.Items, in.ShippingAddress, in.Amount)

	window := s.cfg.DuplicateWindow
	if window <= 0 {
		window = dayWindow
	}
	prior, err := s.repo.CountFingerprints(ctx, in.UserID, f.fingerprint, now.Add(-window), in.OrderID)
	if err != nil {
		return nil, fmt.Errorf("count fingerprints: %w", err)
	}
	if prior > 0 {
		f.warnings = append(f.warnings, fmt.Sprintf("possible duplicate of %d recent order(s)", prior))
		f.event(in, enums.SecurityEventDuplicateOrder, enums.SeverityWarning, map[string]any{
			"fingerprint": f.fingerprint,
			"matches":     prior,
		})
	}

	if suspicious, reason := s.suspicion(SuspicionInput{Occurrences: int(prior) + 1, Items: in.Items}); suspicious {
		f.block("suspicious order pattern: " + reason)
		f.event(in, enums.SecurityEventSuspiciousActivity, enums.SeverityCritical, map[string]any{
			"fingerprint": f.fingerprint,
			"reason":      reason,
		})
	}
	return f, nil
}

func (s *service) checkRetry(ctx context.Context, in Input, _ time.Time) (*finding, error) {
	f := &finding{check: CheckRetry}
	if !in.Retry {
		return f, nil
	}
	tracking, err := s.repo.FindTracking(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("load failure streak: %w", err)
	}
	failures := 0
	if tracking != nil {
		failures = tracking.ConsecutiveFailures
	}

	if in.RetryCount > s.cfg.MaxRetries {
		f.block(fmt.Sprintf("order retried %d times (limit %d)", in.RetryCount, s.cfg.MaxRetries))
	}
	if failures > s.cfg.MaxConsecutiveFailures {
		f.block(fmt.Sprintf("%d consecutive failed submissions (limit %d)", failures, s.cfg.MaxConsecutiveFailures))
	}
	if f.blocked {
		f.event(in, enums.SecurityEventRetryAbuse, enums.SeverityCritical, map[string]any{
			"retry_count":          in.RetryCount,
			"consecutive_failures": failures,
			"trigger":              in.Trigger,
		})
	}
	return f, nil
}

// checkBehavior never blocks.
func (s *service) checkBehavior(ctx context.Context, in Input, now time.Time) (*finding, error) {
	f := &finding{check: CheckBehavior}
	recent, err := s.repo.RecentOrders(ctx, in.UserID, now.Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("load recent orders: %w", err)
	}

	flag := func(pattern, message string, details map[string]any) {
		details["pattern"] = pattern
		f.warnings = append(f.warnings, message)
		f.event(in, enums.SecurityEventUnusualBehavior, enums.SeverityWarning, details)
	}

	if len(recent) > s.cfg.BehaviorOrderLimit {
		flag("order_velocity", fmt.Sprintf("%d orders in the last hour", len(recent)), map[string]any{"orders": len(recent)})
	}

	total := decimal.Zero
	for _, order := range recent {
		total = total.Add(order.TotalAmount)
	}
	if total.GreaterThan(s.cfg.BehaviorSpendLimit) {
		flag("spend_velocity", fmt.Sprintf("$%s ordered in the last hour", total.StringFixed(2)), map[string]any{"total": total.StringFixed(2)})
	}

	if s.cfg.BehaviorRapidInterval > 0 {
		for i := 1; i < len(recent); i++ {
			gap := recent[i].CreatedAt.Sub(recent[i-1].CreatedAt)
			if gap < s.cfg.BehaviorRapidInterval {
				flag("rapid_succession", fmt.Sprintf("two orders %s apart", gap.Round(time.Second)), map[string]any{"gap_seconds": int(gap.Seconds())})
				break
			}
		}
	}
	return f, nil
}
