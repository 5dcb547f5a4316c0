package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/giftflow-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Client writes analytics rows into one dataset.
type Client struct {
	client      *bigquery.Client
	dataset     *bigquery.Dataset
	eventsTable string
}

// Keyed rows carry a streaming insert id, which BigQuery uses for best-effort dedupe.
type Keyed interface {
	InsertID() string
}

// NewClient connects and checks that the dataset and order events table exist.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	datasetID := strings.TrimSpace(cfg.Dataset)
	table := strings.TrimSpace(cfg.OrderEventsTable)
	switch {
	case projectID == "":
		return nil, errProjectIDRequired
	case datasetID == "":
		return nil, errDatasetRequired
	case table == "":
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{client: bq, dataset: bq.Dataset(datasetID), eventsTable: table}
	if err := c.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": datasetID, "table": table}), "bigquery ready")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if js := strings.TrimSpace(gcp.CredentialsJSON); js != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(js))}
	}
	if file := strings.TrimSpace(gcp.ApplicationCredentials); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

// Ping confirms the dataset and order events table are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return describeMetadataErr("dataset", c.dataset.DatasetID, err)
	}
	if _, err := c.dataset.Table(c.eventsTable).Metadata(ctx); err != nil {
		return describeMetadataErr("table", c.eventsTable, err)
	}
	return nil
}

func describeMetadataErr(kind, name string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}

// InsertRows streams rows into table. Rows implementing Keyed carry their
// insert id. Rows BigQuery refuses come back as a validation error so callers
// can tell them apart from an outage.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	if table = strings.TrimSpace(table); table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}

	target := c.dataset.Table(table)
	schema, err := schemaFor(ctx, target, rows)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve schema for "+table)
	}
	savers := make([]*bigquery.StructSaver, len(rows))
	for i, row := range rows {
		savers[i] = &bigquery.StructSaver{Struct: row, Schema: schema}
		if keyed, ok := row.(Keyed); ok {
			savers[i].InsertID = keyed.InsertID()
		}
	}

	err = target.Inserter().Put(ctx, savers)
	var rejected bigquery.PutMultiError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &rejected) && len(rejected) > 0:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("%s rejected %d of %d rows", table, len(rejected), len(rows)))
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert into "+table)
	}
}

func schemaFor(ctx context.Context, table *bigquery.Table, rows []any) (bigquery.Schema, error) {
	schema, err := bigquery.InferSchema(rows[0])
	if err == nil {
		return schema, nil
	}
	md, mdErr := table.Metadata(ctx)
	if mdErr != nil {
		return nil, fmt.Errorf("infer schema: %w", err)
	}
	return md.Schema, nil
}

// OrderEventsTable returns the configured order events table name.
func (c *Client) OrderEventsTable() string {
	if c == nil {
		return ""
	}
	return c.eventsTable
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
