package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShippingAddressSplitName(t *testing.T) {
	first, last := ShippingAddress{Name: "Ada  King Lovelace"}.SplitName()
	assert.Equal(t, "Ada", first)
	assert.Equal(t, "King Lovelace", last)

	first, last = ShippingAddress{Name: "Cher"}.SplitName()
	assert.Equal(t, "Cher", first)
	assert.Equal(t, "Cher", last)
}

func TestShippingAddressValidate(t *testing.T) {
	err := ShippingAddress{Name: "Ada", Line1: "1 Main"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "city")
	assert.Contains(t, err.Error(), "zip_code")

	ok := ShippingAddress{Name: "Ada", Line1: "1 Main", City: "Austin", State: "TX", PostalCode: "78701"}
	require.NoError(t, ok.Validate())
	assert.Equal(t, "US", ok.CountryOrDefault())
}

func TestShippingAddressRoundTripsThroughDriver(t *testing.T) {
	addr := ShippingAddress{Name: "Ada", Line1: "1 Main", City: "Austin", State: "TX", PostalCode: "78701", Country: "us"}
	value, err := addr.Value()
	require.NoError(t, err)

	var decoded ShippingAddress
	require.NoError(t, decoded.Scan([]byte(value.(string))))
	assert.Equal(t, addr, decoded)
}

func TestDeliveryGroupsScanAndValue(t *testing.T) {
	var groups DeliveryGroups
	require.NoError(t, groups.Scan(`{"pkg-b":{"items":["B1"],"scheduledDeliveryDate":"2026-10-26"},"pkg-a":{"scheduledDeliveryDate":"2026-10-18"}}`))
	assert.Equal(t, []string{"pkg-a", "pkg-b"}, groups.IDs())

	date, ok, err := groups["pkg-b"].Date()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 10, 26, 0, 0, 0, 0, time.UTC), date)

	empty, err := DeliveryGroups{}.Value()
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestParseDate(t *testing.T) {
	_, ok, err := ParseDate("  ")
	require.NoError(t, err)
	assert.False(t, ok)

	date, ok, err := ParseDate("2026-10-20T18:30:00-07:00")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC), date)

	_, _, err = ParseDate("next tuesday")
	require.Error(t, err)
}
