package guard

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/giftflow-backend/pkg/types"
)

// Item is one line of the order as the guard sees it.
type Item struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type fingerprintBody struct {
	Items   []Item        `json:"items"`
	Address fingerprintTo `json:"address"`
	Total   string        `json:"total"`
}

type fingerprintTo struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Fingerprint hashes the line items, shipping address and total into a stable hex digest.
// Item order, letter case and surrounding whitespace do not change the result.
func Fingerprint(items []Item, address types.ShippingAddress, total decimal.Decimal) string {
	merged := map[string]int{}
	for _, item := range items {
		merged[strings.ToUpper(strings.TrimSpace(item.ProductID))] += item.Quantity
	}
	canonical := make([]Item, 0, len(merged))
	for id, qty := range merged {
		canonical = append(canonical, Item{ProductID: id, Quantity: qty})
	}
	sort.Slice(canonical, func(i, j int) bool { return canonical[i].ProductID < canonical[j].ProductID })

	norm := func(s string) string { return strings.ToLower(strings.Join(strings.Fields(s), " ")) }
	body := fingerprintBody{
		Items: canonical,
		Address: fingerprintTo{
			Name:       norm(address.Name),
			Line1:      norm(address.Line1),
			Line2:      norm(address.Line2),
			City:       norm(address.City),
			State:      norm(address.State),
			PostalCode: norm(address.PostalCode),
			Country:    norm(address.CountryOrDefault()),
		},
		Total: total.StringFixed(2),
	}
	// struct field order fixes the key order, so the encoding is canonical
	payload, _ := json.Marshal(body)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
