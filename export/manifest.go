package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Manifest records what a backup run produced. Restore stays a human-driven
// procedure; the generated helper script only spells out the steps.
type Manifest struct {
	RunID      string     `json:"runId"`
	Date       time.Time  `json:"date"`
	Region     string     `json:"region"`
	Suffix     string     `json:"suffix"`
	TableCount int        `json:"tableCount"`
	Tables     []Artifact `json:"tables"`
}

// NewManifest assembles the manifest for one export run.
func NewManifest(region, suffix string, stamp time.Time, arts []Artifact) Manifest {
	return Manifest{
		RunID:      uuid.NewString(),
		Date:       stamp.UTC(),
		Region:     region,
		Suffix:     suffix,
		TableCount: len(arts),
		Tables:     arts,
	}
}

// Write stores the manifest beside the artifacts.
func (m Manifest) Write(dir string) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("manifest-%s.json", m.Date.Format("20060102-150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// WriteRestoreScript drops a helper script beside the artifacts. It is a
// scaffold: it prints the import commands for a human to review and run.
func (m Manifest) WriteRestoreScript(dir string) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("restore-%s.sh", m.Date.Format("20060102-150405")))

	script := "#!/bin/bash\n"
	script += fmt.Sprintf("# Restore helper generated %s for backend %s (%s)\n", m.Date.Format(time.RFC3339), m.Suffix, m.Region)
	script += "# Review before running. Each line re-imports one table snapshot.\n"
	script += "# Set TARGET_BACKEND_SUFFIX to the environment being restored.\n\n"
	for _, art := range m.Tables {
		script += fmt.Sprintf("envshift import --tables %s --artifact %s\n", art.Logical, art.File)
	}

	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return "", fmt.Errorf("write restore script: %w", err)
	}
	return path, nil
}
