package scheduling

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/types"
)

// DefaultThresholdDays is the furthest out a delivery may be and still submit immediately.
const DefaultThresholdDays = 4

// Checkout session metadata keys carrying requested delivery dates.
const (
	MetadataScheduledDeliveryDate = "scheduled_delivery_date"
	MetadataDeliveryGroups        = "delivery_groups"
)

// DateSource names which input produced the dates a decision was made on.
type DateSource string

const (
	SourceNone          DateSource = "none"
	SourceSessionGroups DateSource = "session_groups"
	SourceOrderGroups   DateSource = "order_groups"
	SourceSessionDate   DateSource = "session_date"
	SourceOrderDate     DateSource = "order_date"
)

// Sources are the candidate delivery dates for one order, before precedence is applied.
type Sources struct {
	SessionGroups types.DeliveryGroups
	SessionDate   string
	OrderGroups   types.DeliveryGroups
	OrderDate     *time.Time
}

// Decision is the outcome of Decide. Earliest and Latest are zero when Source is SourceNone.
type Decision struct {
	Defer          bool
	Source         DateSource
	Earliest       time.Time
	Latest         time.Time
	ProcessingDate time.Time
	DaysUntil      int
	Groups         types.DeliveryGroups
	// Skipped lists group ids or raw values whose date could not be parsed.
	Skipped []string
}

// Policy holds the deferral threshold.
type Policy struct {
	ThresholdDays int
}

func (p Policy) threshold() int {
	if p.ThresholdDays <= 0 {
		return DefaultThresholdDays
	}
	return p.ThresholdDays
}

// Decide picks the highest-precedence source that yields at least one date and defers
// when any date is more than the threshold number of whole UTC days after now.
func (p Policy) Decide(now time.Time, src Sources) Decision {
	decision := Decision{Source: SourceNone}
	today := types.TruncateDay(now)

	var dates []time.Time
	switch {
	case len(src.SessionGroups) > 0 && p.collectGroups(src.SessionGroups, &dates, &decision.Skipped):
		decision.Source = SourceSessionGroups
		decision.Groups = src.SessionGroups
	case len(src.OrderGroups) > 0 && p.collectGroups(src.OrderGroups, &dates, &decision.Skipped):
		decision.Source = SourceOrderGroups
		decision.Groups = src.OrderGroups
	default:
		if date, ok, err := types.ParseDate(src.SessionDate); err != nil {
			decision.Skipped = append(decision.Skipped, src.SessionDate)
		} else if ok {
			dates = append(dates, date)
			decision.Source = SourceSessionDate
			break
		}
		if src.OrderDate != nil && !src.OrderDate.IsZero() {
			dates = append(dates, types.TruncateDay(*src.OrderDate))
			decision.Source = SourceOrderDate
		}
	}
	if len(dates) == 0 {
		return decision
	}

	decision.Earliest, decision.Latest = dates[0], dates[0]
	for _, date := range dates[1:] {
		if date.Before(decision.Earliest) {
			decision.Earliest = date
		}
		if date.After(decision.Latest) {
			decision.Latest = date
		}
	}

	threshold := p.threshold()
	decision.DaysUntil = WholeDaysBetween(today, decision.Earliest)
	decision.ProcessingDate = decision.Latest.AddDate(0, 0, -threshold)
	decision.Defer = WholeDaysBetween(today, decision.Latest) > threshold
	return decision
}

// collectGroups appends every parseable group date and reports whether any were found.
func (p Policy) collectGroups(groups types.DeliveryGroups, dates *[]time.Time, skipped *[]string) bool {
	found := false
	for _, id := range groups.IDs() {
		date, ok, err := groups[id].Date()
		if err != nil {
			*skipped = append(*skipped, id)
			continue
		}
		if !ok {
			continue
		}
		*dates = append(*dates, date)
		found = true
	}
	return found
}

// WholeDaysBetween counts calendar days from one UTC day to another.
func WholeDaysBetween(from, to time.Time) int {
	return int(types.TruncateDay(to).Sub(types.TruncateDay(from)).Hours() / 24)
}

// SourcesFor assembles scheduling inputs from the order row and the checkout session metadata.
func SourcesFor(order *models.Order, metadata map[string]string) (Sources, error) {
	src := Sources{}
	if order != nil {
		src.OrderGroups = order.DeliveryGroups
		src.OrderDate = order.ScheduledDeliveryDate
	}
	if len(metadata) == 0 {
		return src, nil
	}
	src.SessionDate = strings.TrimSpace(metadata[MetadataScheduledDeliveryDate])
	if raw := strings.TrimSpace(metadata[MetadataDeliveryGroups]); raw != "" {
		groups := types.DeliveryGroups{}
		if err := json.Unmarshal([]byte(raw), &groups); err != nil {
			return src, fmt.Errorf("decode %s metadata: %w", MetadataDeliveryGroups, err)
		}
		src.SessionGroups = groups
	}
	return src, nil
}
