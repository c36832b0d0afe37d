// Package verify compares record counts between source and destination
// tables. Count equality is a weak check: it cannot see content differences.
// It is what the migration workflow has always keyed MATCH/DIFF off.
package verify

import (
	"context"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/envshift/store"
)

// Row is one table pair's comparison.
type Row struct {
	Logical     string
	SourceTable string
	TargetTable string
	SourceCount int
	TargetCount int
}

func (r Row) Match() bool { return r.SourceCount == r.TargetCount }

// Compare counts both sides of one table pair.
func Compare(ctx context.Context, src, dst *store.Client, logical, sourceTable, targetTable string) (Row, error) {
	row := Row{Logical: logical, SourceTable: sourceTable, TargetTable: targetTable}

	var err error
	if row.SourceCount, err = src.Count(ctx, sourceTable); err != nil {
		return row, err
	}
	if row.TargetCount, err = dst.Count(ctx, targetTable); err != nil {
		return row, err
	}
	return row, nil
}

// Report aggregates rows; mismatches are reported, never fatal.
type Report struct {
	Rows []Row
}

func (r *Report) Add(row Row) { r.Rows = append(r.Rows, row) }

// AllMatch reports whether every table pair agreed on counts.
func (r *Report) AllMatch() bool {
	for _, row := range r.Rows {
		if !row.Match() {
			return false
		}
	}
	return true
}

// Render prints the comparison table.
func (r *Report) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Table", "Source", "Target", "Status"})
	for _, row := range r.Rows {
		status := "MATCH"
		if !row.Match() {
			status = "DIFF"
		}
		table.Append([]string{
			row.Logical,
			strconv.Itoa(row.SourceCount),
			strconv.Itoa(row.TargetCount),
			status,
		})
	}
	table.Render()
}
