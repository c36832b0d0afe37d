// Package export snapshots tables to JSON artifacts on disk. An artifact is
// an array of records, written once and never rewritten; the importer reads
// the same file for every destination so multiple environments get identical
// content.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/envshift/discovery"
	"github.com/envshift/store"
)

// Artifact describes one exported table snapshot.
type Artifact struct {
	Logical string `json:"logical"`
	Table   string `json:"table"`
	File    string `json:"file"`
	Records int    `json:"records"`
}

type Exporter struct {
	store  *store.Client
	dir    string
	logger zerolog.Logger
}

func New(st *store.Client, dir string, logger zerolog.Logger) *Exporter {
	return &Exporter{store: st, dir: dir, logger: logger}
}

// ExportTable scans one table to completion and writes the artifact. A table
// the listing knew nothing about produces a warning and an empty snapshot;
// any other scan error aborts this table only.
func (e *Exporter) ExportTable(ctx context.Context, table discovery.Table, stamp time.Time) (Artifact, error) {
	art := Artifact{
		Logical: table.Logical,
		Table:   table.Physical,
		File:    fmt.Sprintf("%s-%s.json", table.Logical, stamp.UTC().Format("20060102-150405")),
	}

	var records []store.Record
	if !table.Exists {
		e.logger.Warn().Msgf("table not found: %s", table.Physical)
	} else {
		var err error
		records, err = e.store.ScanAll(ctx, table.Physical)
		if err != nil {
			if errors.Is(err, store.ErrTableNotFound) {
				e.logger.Warn().Msgf("table not found: %s", table.Physical)
			} else {
				return Artifact{}, fmt.Errorf("export %s: %w", table.Physical, err)
			}
		}
	}
	art.Records = len(records)

	if records == nil {
		records = []store.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return Artifact{}, fmt.Errorf("encode %s: %w", table.Physical, err)
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("backup dir: %w", err)
	}
	path := filepath.Join(e.dir, art.File)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("write %s: %w", path, err)
	}

	e.logger.Info().Msgf("exported %d records from %s to %s", art.Records, table.Physical, art.File)
	return art, nil
}

// ReadArtifact loads an artifact back into memory for import.
func ReadArtifact(path string) ([]store.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var records []store.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", path, err)
	}
	return records, nil
}
