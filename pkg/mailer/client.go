package mailer

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

	"github.com/angelmondragon/giftflow-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
)

const (
	defaultBaseURL          = "https://api.sendgrid.com"
	sendPath                = "v3/mail/send"
	responseBodyLimit int64 = 1024
)

var errAPIKeyRequired = errors.New("sendgrid api key is required")

// Message is a single transactional email.
type Message struct {
	To        string
	ToName    string
	Subject   string
	PlainText string
	HTML      string
	// Categories tag the message in SendGrid activity.
	Categories []string
}

// Client sends mail through the SendGrid v3 API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	from       string
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

// NewClient builds the SendGrid client from configuration.
func NewClient(cfg config.SendgridConfig, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	from := strings.TrimSpace(cfg.DefaultFrom)
	if from == "" {
		return nil, errors.New("sendgrid from address is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := &Client{
		apiKey:     apiKey,
		from:       from,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendRequest struct {
	Personalizations []struct {
		To []address `json:"to"`
	} `json:"personalizations"`
	From       address   `json:"from"`
	Subject    string    `json:"subject"`
	Content    []content `json:"content"`
	Categories []string  `json:"categories,omitempty"`
}

// Send delivers msg. SendGrid answers 202 when the message is queued.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "mailer not configured")
	}
	if strings.TrimSpace(msg.To) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient is required")
	}
	if strings.TrimSpace(msg.PlainText) == "" && strings.TrimSpace(msg.HTML) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "message body is required")
	}

	body := sendRequest{
		From:       address{Email: c.from},
		Subject:    msg.Subject,
		Categories: msg.Categories,
	}
	body.Personalizations = append(body.Personalizations, struct {
		To []address `json:"to"`
	}{To: []address{{Email: msg.To, Name: msg.ToName}}})
	if msg.PlainText != "" {
		body.Content = append(body.Content, content{Type: "text/plain", Value: msg.PlainText})
	}
	if msg.HTML != "" {
		body.Content = append(body.Content, content{Type: "text/html", Value: msg.HTML})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal mail request")
	}

	url := fmt.Sprintf("%s/%s", strings.TrimRight(c.baseURL, "/"), sendPath)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build mail request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute mail request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		// the same message will be rejected again
		return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, "mail request rejected")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "mail request failed")
	}
}
