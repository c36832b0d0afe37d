package migrate

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Ledger is the per-record outcome artifact of one import run. A re-run fed
// this file reprocesses only the failed subset instead of the whole table.
type Ledger struct {
	RunID     string    `json:"runId"`
	Table     string    `json:"table"`
	Date      time.Time `json:"date"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	FailedIDs []string  `json:"failedIds"`
}

// LedgerPath places the ledger beside its artifact.
func LedgerPath(artifactPath string) string {
	return artifactPath + ".ledger.json"
}

// Write persists the ledger. A clean run writes one too; its empty failure
// list is what marks the artifact as fully applied.
func (l *Ledger) Write(path string) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

// ReadLedger loads a previous run's outcomes.
func ReadLedger(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	var l Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", path, err)
	}
	return &l, nil
}
