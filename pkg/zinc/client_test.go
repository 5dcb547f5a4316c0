package zinc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func testRequest() OrderRequest {
	return OrderRequest{
		Retailer: "amazon",
		Products: []Product{{ProductID: "B00TEST", Quantity: 2}},
		MaxPrice: 6000,
		ShippingAddress: Address{
			FirstName: "Ada", LastName: "Lovelace", AddressLine1: "1 Main", City: "Austin", State: "TX", ZipCode: "78701", Country: "US",
		},
		PaymentMethod:  PaymentMethod{NameOnCard: "GiftFlow"},
		IdempotencyKey: "order-1",
	}
}

func newTestClient(rt roundTripFunc) *Client {
	return NewClient(WithBaseURL("http://zinc.test/v1"), WithHTTPClient(&http.Client{Transport: rt}))
}

func TestPlaceOrderSuccess(t *testing.T) {
	var captured map[string]any
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.String() != "http://zinc.test/v1/orders" {
			t.Fatalf("unexpected url %s", req.URL)
		}
		user, pass, ok := req.BasicAuth()
		if !ok || user != "token-1" || pass != "" {
			t.Fatalf("expected basic auth with client token, got %q %q %v", user, pass, ok)
		}
		body, _ := io.ReadAll(req.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(`{"request_id":"zx_1"}`)), Header: http.Header{}}, nil
	})

	result, err := client.PlaceOrder(context.Background(), "token-1", testRequest())
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if result.RequestID != "zx_1" {
		t.Fatalf("unexpected request id %q", result.RequestID)
	}
	if captured["idempotency_key"] != "order-1" || captured["retailer"] != "amazon" {
		t.Fatalf("unexpected payload %v", captured)
	}
	shipping := captured["shipping_address"].(map[string]any)
	if shipping["first_name"] != "Ada" || shipping["last_name"] != "Lovelace" {
		t.Fatalf("unexpected shipping address %v", shipping)
	}
	payment := captured["payment_method"].(map[string]any)
	if _, ok := payment["number"]; ok {
		t.Fatalf("name-only payment must not send a card number")
	}
}

func TestPlaceOrderNon2xxReturnsStatusError(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusBadRequest, Body: io.NopCloser(strings.NewReader(`{"code":"invalid_request","message":"bad zip"}`)), Header: http.Header{}}, nil
	})

	_, err := client.PlaceOrder(context.Background(), "token-1", testRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	statusErr, ok := AsStatusError(err)
	if !ok {
		t.Fatalf("expected status error, got %v", err)
	}
	if statusErr.StatusCode != http.StatusBadRequest || !strings.Contains(statusErr.Body, "bad zip") {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
	if IsOutcomeUnknown(err) {
		t.Fatal("a rejection is not an unknown outcome")
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency code, got %v", err)
	}
}

func TestPlaceOrderRejectionBodyStaysValidUTF8(t *testing.T) {
	body := strings.Repeat("a", errorBodyStoreLimit-1) + "é trailing"
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusUnprocessableEntity, Body: io.NopCloser(strings.NewReader(body)), Header: http.Header{}}, nil
	})

	_, err := client.PlaceOrder(context.Background(), "token-1", testRequest())
	statusErr, ok := AsStatusError(err)
	if !ok {
		t.Fatalf("expected status error, got %v", err)
	}
	if !utf8.ValidString(statusErr.Body) {
		t.Fatalf("stored body is not valid UTF-8 (%d bytes)", len(statusErr.Body))
	}
	if len(statusErr.Body) != errorBodyStoreLimit-1 {
		t.Fatalf("expected the split rune to be dropped, got %d bytes", len(statusErr.Body))
	}

	if got := truncate("ok \xff\xfe body"); !utf8.ValidString(got) || !strings.HasPrefix(got, "ok ") {
		t.Fatalf("invalid bytes must be replaced, got %q", got)
	}
}

func TestPlaceOrderTransportFailureIsOutcomeUnknown(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection reset by peer")
	})

	_, err := client.PlaceOrder(context.Background(), "token-1", testRequest())
	if !IsOutcomeUnknown(err) {
		t.Fatalf("expected outcome unknown, got %v", err)
	}
	if _, ok := AsStatusError(err); ok {
		t.Fatal("transport failure must not carry a status")
	}
}

func TestPlaceOrderErrorTypedBodyIsRejection(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(`{"_type":"error","code":"max_price_exceeded"}`)), Header: http.Header{}}, nil
	})

	_, err := client.PlaceOrder(context.Background(), "token-1", testRequest())
	if _, ok := AsStatusError(err); !ok {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestPlaceOrderValidatesInputBeforeSending(t *testing.T) {
	called := false
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		called = true
		return nil, errors.New("unexpected")
	})

	if _, err := client.PlaceOrder(context.Background(), "", testRequest()); err == nil {
		t.Fatal("expected missing token error")
	}
	empty := testRequest()
	empty.Products = nil
	if _, err := client.PlaceOrder(context.Background(), "token-1", empty); err == nil {
		t.Fatal("expected empty products error")
	}
	if called {
		t.Fatal("no request should be sent for invalid input")
	}
}
