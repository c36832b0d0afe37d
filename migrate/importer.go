// Package migrate re-inserts exported records into a destination table.
// Records are written verbatim in export order, ids preserved, so a re-run
// with the same artifact converges on identical content (put overwrites by
// id). There is no table-level atomicity: a partial failure leaves a mixed
// state, and the ledger is what makes targeted re-runs possible.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/envshift/store"
)

const (
	// DefaultBatchSize uses the store's batch cap. Batch size 1 switches to
	// per-record puts, slower but with per-record error attribution.
	DefaultBatchSize = store.MaxBatchSize

	// DefaultDelay is the fixed pause between batches, the only rate control
	// besides the unprocessed-items backoff inside the store.
	DefaultDelay = 100 * time.Millisecond
)

// Result summarizes one table import.
type Result struct {
	Table     string
	Total     int
	Succeeded int
	Failed    int
	FailedIDs []string
	Skipped   int // records without an id attribute
}

type Importer struct {
	store     *store.Client
	batchSize int
	delay     time.Duration
	logger    zerolog.Logger
}

type Option func(*Importer)

func WithBatchSize(n int) Option {
	return func(im *Importer) {
		if n > 0 && n <= store.MaxBatchSize {
			im.batchSize = n
		}
	}
}

func WithDelay(d time.Duration) Option {
	return func(im *Importer) { im.delay = d }
}

func New(st *store.Client, logger zerolog.Logger, opts ...Option) *Importer {
	im := &Importer{store: st, batchSize: DefaultBatchSize, delay: DefaultDelay, logger: logger}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import writes records into the destination table. With a retry ledger the
// set shrinks to the previously failed ids; everything else is untouched.
func (im *Importer) Import(ctx context.Context, table string, records []store.Record, retry *Ledger) (Result, error) {
	res := Result{Table: table}

	if retry != nil {
		records = filterByIDs(records, retry.FailedIDs)
		im.logger.Info().Msgf("retrying %d previously failed records for %s", len(records), table)
	}

	// Records without an id cannot be keyed and are never written.
	keyed := records[:0:0]
	for _, rec := range records {
		if rec.ID() == "" {
			im.logger.Error().Msgf("record without id skipped in %s", table)
			res.Skipped++
			continue
		}
		keyed = append(keyed, rec)
	}
	res.Total = len(keyed)

	if res.Total == 0 {
		im.logger.Warn().Msgf("no data to migrate for %s", table)
		return res, nil
	}

	for start := 0; start < len(keyed); start += im.batchSize {
		end := start + im.batchSize
		if end > len(keyed) {
			end = len(keyed)
		}
		batch := keyed[start:end]

		if err := im.writeBatch(ctx, table, batch, &res); err != nil {
			return res, err
		}

		if end < len(keyed) && im.delay > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(im.delay):
			}
		}
	}

	im.logger.Info().Msgf("imported %d/%d records into %s (%d failed)",
		res.Succeeded, res.Total, table, res.Failed)
	return res, nil
}

func (im *Importer) writeBatch(ctx context.Context, table string, batch []store.Record, res *Result) error {
	if im.batchSize == 1 {
		rec := batch[0]
		if err := im.store.PutRecord(ctx, table, rec); err != nil {
			if errors.Is(err, store.ErrInspectMode) {
				return err
			}
			im.logger.Error().Msgf("put failed for id=%s: %s", rec.ID(), err.Error())
			res.Failed++
			res.FailedIDs = append(res.FailedIDs, rec.ID())
			return nil
		}
		res.Succeeded++
		return nil
	}

	if err := im.store.BatchPut(ctx, table, batch); err != nil {
		if errors.Is(err, store.ErrInspectMode) {
			return err
		}
		var partial *store.PartialFailure
		if errors.As(err, &partial) {
			// The store does not report which ids were dropped; ledger the
			// whole batch so a re-run reconverges (puts are idempotent).
			im.logger.Error().Msgf("batch partially unprocessed for %s: %s", table, err.Error())
			res.Failed += len(batch)
			for _, rec := range batch {
				res.FailedIDs = append(res.FailedIDs, rec.ID())
			}
			return nil
		}
		im.logger.Error().Msgf("batch write failed for %s: %s", table, err.Error())
		res.Failed += len(batch)
		for _, rec := range batch {
			res.FailedIDs = append(res.FailedIDs, rec.ID())
		}
		return nil
	}
	res.Succeeded += len(batch)
	return nil
}

func filterByIDs(records []store.Record, ids []string) []store.Record {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []store.Record
	for _, rec := range records {
		if want[rec.ID()] {
			out = append(out, rec)
		}
	}
	return out
}

// Ledger turns a result into the outcome record a re-run can target.
func (r Result) Ledger(runID string) *Ledger {
	return &Ledger{
		RunID:     runID,
		Table:     r.Table,
		Total:     r.Total,
		Succeeded: r.Succeeded,
		FailedIDs: r.FailedIDs,
		Date:      time.Now().UTC(),
	}
}

func (r Result) String() string {
	return fmt.Sprintf("%s: %d/%d migrated, %d failed, %d skipped",
		r.Table, r.Succeeded, r.Total, r.Failed, r.Skipped)
}
