package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for requested delivery dates.
const DateLayout = "2006-01-02"

// DeliveryGroup is one package of an order that shares a requested delivery date.
type DeliveryGroup struct {
	Items                 []string `json:"items,omitempty"`
	ScheduledDeliveryDate string   `json:"scheduledDeliveryDate,omitempty"`
}

// Date parses the group's requested delivery date. ok is false when unset.
func (g DeliveryGroup) Date() (time.Time, bool, error) {
	return ParseDate(g.ScheduledDeliveryDate)
}

// DeliveryGroups maps package id to its delivery group, stored as jsonb.
type DeliveryGroups map[string]DeliveryGroup

// IDs returns the package ids in a stable order.
func (g DeliveryGroups) IDs() []string {
	ids := make([]string, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Value marshals the groups into jsonb. Empty maps are stored as NULL.
func (g DeliveryGroups) Value() (driver.Value, error) {
	if len(g) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(map[string]DeliveryGroup(g))
	if err != nil {
		return nil, fmt.Errorf("delivery groups: marshal: %w", err)
	}
	return string(payload), nil
}

// Scan decodes jsonb delivery groups.
func (g *DeliveryGroups) Scan(value interface{}) error {
	decoded := map[string]DeliveryGroup{}
	if err := scanJSON(value, &decoded); err != nil {
		return fmt.Errorf("delivery groups: %w", err)
	}
	*g = decoded
	return nil
}

// ParseDate accepts a calendar date or an RFC3339 timestamp and returns the UTC
// calendar day. ok is false for blank input.
func ParseDate(value string) (time.Time, bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse(DateLayout, value); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid delivery date %q", value)
	}
	return TruncateDay(t), true, nil
}

// TruncateDay returns midnight UTC of the given instant's UTC calendar day.
func TruncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
