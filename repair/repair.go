// Package repair scans a live table for malformed field values and applies
// targeted single-field updates. The scan-and-detect pass produces a plan;
// the apply pass issues one update per affected record. These are in-place,
// destination-only fixes, not migrations.
package repair

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/envshift/store"
)

// Task is one planned field correction. Nothing is persisted; a plan lives
// for the duration of one run.
type Task struct {
	RecordID  string
	Field     string
	Original  interface{}
	Corrected interface{}
}

// Plan is the outcome of one table scan.
type Plan struct {
	Table       string
	Scanned     int
	Tasks       []Task
	Unparseable int // date values logged and left as-is
}

// Summary counts planned corrections by field.
func (p Plan) Summary() map[string]int {
	out := make(map[string]int)
	for _, t := range p.Tasks {
		out[t.Field]++
	}
	return out
}

type Scanner struct {
	store   *store.Client
	baseURL string
	logger  zerolog.Logger
}

func NewScanner(st *store.Client, baseURL string, logger zerolog.Logger) *Scanner {
	return &Scanner{store: st, baseURL: baseURL, logger: logger}
}

// BuildPlan scans a table and detects date, URL and missing-audit issues.
// limit > 0 caps how many records are examined (the test mode).
func (s *Scanner) BuildPlan(ctx context.Context, table string, limit int, now time.Time) (Plan, error) {
	plan := Plan{Table: table}

	records, err := s.store.ScanAll(ctx, table)
	if err != nil {
		return plan, fmt.Errorf("repair scan: %w", err)
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	plan.Scanned = len(records)

	stamp := now.UTC().Format(canonicalFormat)
	for _, rec := range records {
		id := rec.ID()
		if id == "" {
			s.logger.Warn().Msgf("record without id in %s, skipping", table)
			continue
		}

		for _, field := range DateFields {
			raw, ok := rec[field].(string)
			if !ok {
				continue
			}
			fixed, changed, err := NormalizeDate(raw)
			if err != nil {
				s.logger.Warn().Msgf("id=%s %s: %s, leaving as-is", id, field, err.Error())
				plan.Unparseable++
				continue
			}
			if changed {
				plan.Tasks = append(plan.Tasks, Task{RecordID: id, Field: field, Original: raw, Corrected: fixed})
			}
		}

		if s.baseURL != "" {
			for _, field := range URLFields {
				raw, ok := rec[field].(string)
				if !ok {
					continue
				}
				if fixed, changed := DedupBaseURL(raw, s.baseURL); changed {
					plan.Tasks = append(plan.Tasks, Task{RecordID: id, Field: field, Original: raw, Corrected: fixed})
				}
			}
			for _, field := range GalleryFields {
				raw, ok := rec[field].([]interface{})
				if !ok {
					continue
				}
				if fixed, changed := DedupGallery(raw, s.baseURL); changed {
					plan.Tasks = append(plan.Tasks, Task{RecordID: id, Field: field, Original: raw, Corrected: fixed})
				}
			}
		}

		// Backfill missing audit timestamps with the current time.
		for _, field := range []string{"createdAt", "updatedAt"} {
			if _, present := rec[field]; !present {
				plan.Tasks = append(plan.Tasks, Task{RecordID: id, Field: field, Corrected: stamp})
			}
		}
	}

	return plan, nil
}

// ApplyResult reports what the apply pass did.
type ApplyResult struct {
	Records int
	Applied int
	Failed  int
}

// Apply issues one targeted update per affected record, grouping that
// record's tasks into a single SET. Per-record failures are logged and the
// loop continues.
func (s *Scanner) Apply(ctx context.Context, plan Plan) (ApplyResult, error) {
	var res ApplyResult

	byRecord := make(map[string]map[string]interface{})
	var order []string
	for _, t := range plan.Tasks {
		if _, ok := byRecord[t.RecordID]; !ok {
			byRecord[t.RecordID] = make(map[string]interface{})
			order = append(order, t.RecordID)
		}
		byRecord[t.RecordID][t.Field] = t.Corrected
	}
	res.Records = len(order)

	for _, id := range order {
		if err := s.store.UpdateFields(ctx, plan.Table, id, byRecord[id]); err != nil {
			s.logger.Error().Msgf("update failed for id=%s: %s", id, err.Error())
			res.Failed++
			continue
		}
		res.Applied++
	}
	return res, nil
}
