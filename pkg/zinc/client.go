package zinc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
)

const (
	defaultBaseURL            = "https://api.zinc.io/v1"
	defaultTimeout            = 30 * time.Second
	responseBodyLimit   int64 = 4096
	errorBodyStoreLimit       = 1024
)

// ErrOutcomeUnknown marks a request that may have reached the marketplace but
// produced no readable response. Callers must treat the order as possibly placed.
var ErrOutcomeUnknown = errors.New("marketplace request outcome unknown")

// StatusError is returned when the marketplace answers with a rejection.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("marketplace status %d: %s", e.StatusCode, e.Body)
}

// Client submits orders to the Zinc API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout sets the timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewClient builds the marketplace client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// PlaceOrder sends one order request. The client token authenticates the
// marketplace account. No retry happens here.
func (c *Client) PlaceOrder(ctx context.Context, clientToken string, req OrderRequest) (*PlaceOrderResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "marketplace client not configured")
	}
	if strings.TrimSpace(clientToken) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "marketplace client token is required")
	}
	if len(req.Products) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order request has no products")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal marketplace order")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL("orders"), bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build marketplace order request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(clientToken, "")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("%w: %v", ErrOutcomeUnknown, err), "execute marketplace order request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("%w: %v", ErrOutcomeUnknown, err), "read marketplace response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(body)))}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, statusErr, "marketplace rejected order").
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	var apiResp struct {
		RequestID string `json:"request_id"`
		Type      string `json:"_type"`
		Code      string `json:"code"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body))}, "decode marketplace response")
	}
	if apiResp.Type == "error" || strings.TrimSpace(apiResp.RequestID) == "" {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(body)))}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, statusErr, "marketplace response missing request id").
			WithDetails(map[string]any{"status": resp.StatusCode, "code": apiResp.Code})
	}

	return &PlaceOrderResult{RequestID: apiResp.RequestID}, nil
}

// IsOutcomeUnknown reports whether err means the request may have been placed.
func IsOutcomeUnknown(err error) bool {
	return errors.Is(err, ErrOutcomeUnknown)
}

// AsStatusError extracts the marketplace rejection from err.
func AsStatusError(err error) (*StatusError, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr, true
	}
	return nil, false
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}

// truncate keeps the stored body valid UTF-8 for text columns.
func truncate(value string) string {
	if len(value) > errorBodyStoreLimit {
		cut := errorBodyStoreLimit
		for cut > 0 && !utf8.RuneStart(value[cut]) {
			cut--
		}
		value = value[:cut]
	}
	return strings.ToValidUTF8(value, "\uFFFD")
}
