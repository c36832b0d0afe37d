package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envshift/discovery"
	"github.com/envshift/store"
	"github.com/envshift/store/storetest"
)

var exportStamp = time.Date(2025, 8, 30, 10, 15, 0, 0, time.UTC)

func newExporter(t *testing.T, fake *storetest.Fake) (*Exporter, string) {
	t.Helper()
	dir := t.TempDir()
	st := store.NewWithAPI(fake, store.Inspect, zerolog.Nop())
	return New(st, dir, zerolog.Nop()), dir
}

func TestExportTableRoundTrips(t *testing.T) {
	fake := storetest.New()
	fake.Seed("Users-abc123-NONE",
		map[string]types.AttributeValue{
			"id":    &types.AttributeValueMemberS{Value: "u1"},
			"email": &types.AttributeValueMemberS{Value: "u1@example.com"},
		},
		map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: "u2"},
		},
	)
	ex, dir := newExporter(t, fake)

	table := discovery.Table{Logical: "Users", Physical: "Users-abc123-NONE", Exists: true}
	art, err := ex.ExportTable(context.Background(), table, exportStamp)
	require.NoError(t, err)

	assert.Equal(t, "Users", art.Logical)
	assert.Equal(t, 2, art.Records)
	assert.Equal(t, "Users-20250830-101500.json", art.File)

	records, err := ReadArtifact(filepath.Join(dir, art.File))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "u1", records[0].ID())
	assert.Equal(t, "u1@example.com", records[0]["email"])
	assert.Equal(t, "u2", records[1].ID())
}

func TestExportEmptyTableWritesEmptyArray(t *testing.T) {
	fake := storetest.New()
	fake.CreateTable("Users-abc123-NONE")
	ex, dir := newExporter(t, fake)

	table := discovery.Table{Logical: "Users", Physical: "Users-abc123-NONE", Exists: true}
	art, err := ex.ExportTable(context.Background(), table, exportStamp)
	require.NoError(t, err)
	assert.Zero(t, art.Records)

	data, err := os.ReadFile(filepath.Join(dir, art.File))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data), "empty snapshot is a JSON array, not null")
}

func TestExportMissingTableWritesEmptySnapshot(t *testing.T) {
	fake := storetest.New()
	ex, dir := newExporter(t, fake)

	table := discovery.Table{Logical: "Ghost", Physical: "Ghost-abc123-NONE", Exists: false}
	art, err := ex.ExportTable(context.Background(), table, exportStamp)
	require.NoError(t, err, "a missing table is a warning, not a failure")
	assert.Zero(t, art.Records)
	assert.Zero(t, fake.Calls.Scan)

	records, err := ReadArtifact(filepath.Join(dir, art.File))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestManifestWrite(t *testing.T) {
	dir := t.TempDir()
	arts := []Artifact{
		{Logical: "Users", Table: "Users-abc123-NONE", File: "Users-20250830-101500.json", Records: 2},
		{Logical: "Orders", Table: "Orders-abc123-NONE", File: "Orders-20250830-101500.json", Records: 7},
	}
	m := NewManifest("us-west-1", "abc123", exportStamp, arts)
	assert.NotEmpty(t, m.RunID)
	assert.Equal(t, 2, m.TableCount)

	path, err := m.Write(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "manifest-20250830-101500.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"suffix": "abc123"`)
	assert.Contains(t, string(data), "Orders-20250830-101500.json")
}

func TestRestoreScriptListsEveryArtifact(t *testing.T) {
	dir := t.TempDir()
	arts := []Artifact{
		{Logical: "Users", File: "Users-20250830-101500.json"},
		{Logical: "Orders", File: "Orders-20250830-101500.json"},
	}
	m := NewManifest("us-west-1", "abc123", exportStamp, arts)

	path, err := m.WriteRestoreScript(dir)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	script := string(data)
	assert.Contains(t, script, "envshift import --tables Users --artifact Users-20250830-101500.json")
	assert.Contains(t, script, "envshift import --tables Orders --artifact Orders-20250830-101500.json")
}
