package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

// Mode decides whether a client may issue mutating calls. Inspect clients
// refuse every write at the client boundary, so a dry run cannot leak a
// mutation no matter what the caller does.
type Mode int

const (
	Inspect Mode = iota
	Mutate
)

// ErrInspectMode is returned by every mutating operation on an Inspect client.
var ErrInspectMode = errors.New("store: mutating call refused in inspect mode")

// ErrTableNotFound wraps the store's resource-not-found answer so callers can
// treat a missing table as a warning rather than a failure.
var ErrTableNotFound = errors.New("store: table not found")

// DynamoAPI is the subset of the DynamoDB client the tooling calls.
type DynamoAPI interface {
	ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Record is one semi-structured table item. The migration key is the "id"
// attribute; everything else is carried through untouched.
type Record map[string]interface{}

// ID returns the record's migration key, or "" when absent.
func (r Record) ID() string {
	if v, ok := r["id"].(string); ok {
		return v
	}
	return ""
}

type Client struct {
	api    DynamoAPI
	mode   Mode
	logger zerolog.Logger
}

// New builds a client against real DynamoDB. An empty endpointURL uses the
// standard AWS endpoint; a custom one targets LocalStack or similar.
func New(ctx context.Context, region, endpointURL string, mode Mode, logger zerolog.Logger) (*Client, error) {
	// Load config (honors AWS_REGION, AWS_PROFILE, etc.)
	cfg, err := awsconfig.LoadDefaultConfig(ctx, func(o *awsconfig.LoadOptions) error {
		if region != "" {
			o.Region = region
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed loading AWS config: %w", err)
	}

	if endpointURL != "" {
		cfg.BaseEndpoint = aws.String(endpointURL)
	}

	return &Client{api: dynamodb.NewFromConfig(cfg), mode: mode, logger: logger}, nil
}

// NewWithAPI wires an explicit API implementation, used by tests and by
// callers that already hold a configured client.
func NewWithAPI(api DynamoAPI, mode Mode, logger zerolog.Logger) *Client {
	return &Client{api: api, mode: mode, logger: logger}
}

func (c *Client) Mode() Mode { return c.mode }

func isNotFound(err error) bool {
	var rnf *types.ResourceNotFoundException
	return errors.As(err, &rnf)
}

// ListTableNames returns every table name in the region.
func (c *Client) ListTableNames(ctx context.Context) ([]string, error) {
	var names []string
	var start *string
	for {
		out, err := c.api.ListTables(ctx, &dynamodb.ListTablesInput{
			ExclusiveStartTableName: start,
		})
		if err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		names = append(names, out.TableNames...)
		if out.LastEvaluatedTableName == nil {
			break
		}
		start = out.LastEvaluatedTableName
	}
	return names, nil
}

// TableExists probes a table with DescribeTable.
func (c *Client) TableExists(ctx context.Context, table string) (bool, error) {
	_, err := c.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("describe %s: %w", table, err)
	}
	return true, nil
}

// ScanAll reads every record of a table, full attributes, following the
// continuation key until exhausted. Scan order is whatever the store gives.
func (c *Client) ScanAll(ctx context.Context, table string) ([]Record, error) {
	var all []Record
	paginator := dynamodb.NewScanPaginator(c.api, &dynamodb.ScanInput{
		TableName: aws.String(table),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
			}
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		var records []Record
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &records); err != nil {
			return nil, fmt.Errorf("unmarshal %s page: %w", table, err)
		}
		all = append(all, records...)
	}
	return all, nil
}

// Count runs a COUNT-only scan. Counts are as consistent as the underlying
// scan is, which is good enough for the MATCH/DIFF check.
func (c *Client) Count(ctx context.Context, table string) (int, error) {
	total := 0
	paginator := dynamodb.NewScanPaginator(c.api, &dynamodb.ScanInput{
		TableName: aws.String(table),
		Select:    types.SelectCount,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if isNotFound(err) {
				return 0, fmt.Errorf("%w: %s", ErrTableNotFound, table)
			}
			return 0, fmt.Errorf("count %s: %w", table, err)
		}
		total += int(page.Count)
	}
	return total, nil
}

// PutRecord overwrites one record by its primary key.
func (c *Client) PutRecord(ctx context.Context, table string, rec Record) error {
	if c.mode != Mutate {
		return ErrInspectMode
	}
	av, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.ID(), err)
	}
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put %s id=%s: %w", table, rec.ID(), err)
	}
	return nil
}
