package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// ShippingAddress is the recipient address stored as jsonb on orders.
type ShippingAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"address_line1"`
	Line2      string `json:"address_line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"zip_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone_number,omitempty"`
}

// Validate ensures the fields every marketplace request needs are present.
func (a ShippingAddress) Validate() error {
	missing := []string{}
	if strings.TrimSpace(a.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(a.Line1) == "" {
		missing = append(missing, "address_line1")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(a.State) == "" {
		missing = append(missing, "state")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		missing = append(missing, "zip_code")
	}
	if len(missing) > 0 {
		return fmt.Errorf("address: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// IsZero reports whether no address line was captured.
func (a ShippingAddress) IsZero() bool {
	return strings.TrimSpace(a.Line1) == "" && strings.TrimSpace(a.Name) == ""
}

// SplitName breaks the recipient name into first and last parts. A single word
// name is used for both.
func (a ShippingAddress) SplitName() (string, string) {
	parts := strings.Fields(a.Name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], parts[0]
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// CountryOrDefault returns the ISO country code, defaulting to US.
func (a ShippingAddress) CountryOrDefault() string {
	country := strings.ToUpper(strings.TrimSpace(a.Country))
	if country == "" {
		return "US"
	}
	return country
}

// Value marshals the address into jsonb.
func (a ShippingAddress) Value() (driver.Value, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("address: marshal: %w", err)
	}
	return string(payload), nil
}

// Scan decodes a jsonb address.
func (a *ShippingAddress) Scan(value interface{}) error {
	return scanJSON(value, a)
}

func scanJSON(value interface{}, dest any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported json source %T", value)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
