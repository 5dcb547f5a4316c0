package bigquery

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/giftflow-backend/pkg/config"
)

func TestClientOptions(t *testing.T) {
	cases := map[string]struct {
		gcp  config.GCPConfig
		want int
	}{
		"json wins over file": {config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/creds"}, 1},
		"file only":           {config.GCPConfig{ApplicationCredentials: "/tmp/creds"}, 1},
		"ambient credentials": {config.GCPConfig{}, 0},
	}
	for name, tc := range cases {
		if got := len(clientOptions(tc.gcp)); got != tc.want {
			t.Fatalf("%s: expected %d options, got %d", name, tc.want, got)
		}
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "d", OrderEventsTable: "t"}, nil); !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{OrderEventsTable: "t"}, nil); !errors.Is(err, errDatasetRequired) {
		t.Fatalf("expected dataset error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: "d", OrderEventsTable: " "}, nil); !errors.Is(err, errTableNameRequired) {
		t.Fatalf("expected table error, got %v", err)
	}
}

func TestDescribeMetadataErr(t *testing.T) {
	err := describeMetadataErr("table", "order_events", &googleapi.Error{Code: http.StatusNotFound})
	if !strings.Contains(err.Error(), `table "order_events" does not exist`) {
		t.Fatalf("unexpected message %v", err)
	}
	cause := &googleapi.Error{Code: http.StatusForbidden}
	if err := describeMetadataErr("dataset", "giftflow", cause); !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	if err := c.InsertRows(context.Background(), "order_events", []any{1}); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected errClientNotInitialized, got %v", err)
	}
	if err := c.Ping(context.Background()); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected errClientNotInitialized, got %v", err)
	}
	if c.OrderEventsTable() != "" {
		t.Fatalf("expected empty table name on nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close nil client: %v", err)
	}
}
