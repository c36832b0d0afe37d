package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v4"
)

// MaxBatchSize is the store's per-call item cap for batch writes.
const MaxBatchSize = 25

const maxUnprocessedRetries = 5

// batchBackoff builds the retry policy for unprocessed batch items.
// A variable so tests can collapse the waits.
var batchBackoff = func() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxUnprocessedRetries)
}

// PartialFailure reports the subset of a batch the store never processed,
// even after retries. Callers decide whether to fail the run or ledger it.
type PartialFailure struct {
	Table     string
	Remaining int
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("store: %d items left unprocessed for %s after %d retries",
		e.Remaining, e.Table, maxUnprocessedRetries)
}

// BatchPut writes up to MaxBatchSize records in one call. Unprocessed items
// are retried with exponential backoff, bounded by maxUnprocessedRetries;
// whatever remains is surfaced as a *PartialFailure.
func (c *Client) BatchPut(ctx context.Context, table string, recs []Record) error {
	if c.mode != Mutate {
		return ErrInspectMode
	}
	if len(recs) == 0 {
		return nil
	}
	if len(recs) > MaxBatchSize {
		return fmt.Errorf("store: batch of %d exceeds limit of %d", len(recs), MaxBatchSize)
	}

	writeReqs := make([]types.WriteRequest, 0, len(recs))
	for _, rec := range recs {
		av, err := attributevalue.MarshalMap(rec)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", rec.ID(), err)
		}
		writeReqs = append(writeReqs, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: av},
		})
	}

	pending := map[string][]types.WriteRequest{table: writeReqs}

	policy := batchBackoff()
	attempt := 0
	for {
		out, err := c.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return fmt.Errorf("batch write %s: %w", table, err)
		}
		if len(out.UnprocessedItems[table]) == 0 {
			return nil
		}

		pending = map[string][]types.WriteRequest{table: out.UnprocessedItems[table]}
		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return &PartialFailure{Table: table, Remaining: len(pending[table])}
		}
		attempt++
		c.logger.Warn().Msgf("%d unprocessed items for %s, retry %d in %s",
			len(pending[table]), table, attempt, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// UpdateFields applies a targeted single-record update: SET each given field.
// Used by the repair pass; never touches attributes it was not told about.
func (c *Client) UpdateFields(ctx context.Context, table, id string, fields map[string]interface{}) error {
	if c.mode != Mutate {
		return ErrInspectMode
	}
	if len(fields) == 0 {
		return nil
	}

	var update expression.UpdateBuilder
	for name, value := range fields {
		update = update.Set(expression.Name(name), expression.Value(value))
	}
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("build update expression: %w", err)
	}

	_, err = c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(table),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return fmt.Errorf("update %s id=%s: %w", table, id, err)
	}
	return nil
}
