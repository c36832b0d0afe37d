package migrate

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envshift/store"
	"github.com/envshift/store/storetest"
)

const importTable = "Orders-abc123-NONE"

func rec(id string, extra ...string) store.Record {
	r := store.Record{"id": id}
	for i := 0; i+1 < len(extra); i += 2 {
		r[extra[i]] = extra[i+1]
	}
	return r
}

func newImporter(fake *storetest.Fake, mode store.Mode, opts ...Option) *Importer {
	st := store.NewWithAPI(fake, mode, zerolog.Nop())
	opts = append([]Option{WithDelay(0)}, opts...)
	return New(st, zerolog.Nop(), opts...)
}

func fakeIDs(fake *storetest.Fake, table string) []string {
	var ids []string
	for _, item := range fake.Items(table) {
		ids = append(ids, item["id"].(*types.AttributeValueMemberS).Value)
	}
	return ids
}

func TestImportWritesAllRecordsInOrder(t *testing.T) {
	fake := storetest.New()
	im := newImporter(fake, store.Mutate)

	records := []store.Record{
		rec("a", "status", "open"),
		rec("b", "status", "closed"),
		rec("c"),
	}
	res, err := im.Import(context.Background(), importTable, records, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Succeeded)
	assert.Zero(t, res.Failed)
	assert.Equal(t, []string{"a", "b", "c"}, fakeIDs(fake, importTable))
}

func TestImportIsIdempotent(t *testing.T) {
	fake := storetest.New()
	im := newImporter(fake, store.Mutate)

	records := []store.Record{rec("a"), rec("b")}
	_, err := im.Import(context.Background(), importTable, records, nil)
	require.NoError(t, err)
	_, err = im.Import(context.Background(), importTable, records, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, fake.Len(importTable), "re-import overwrites by id")
}

func TestImportEmptyArtifact(t *testing.T) {
	fake := storetest.New()
	im := newImporter(fake, store.Mutate)

	res, err := im.Import(context.Background(), importTable, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Zero(t, fake.Calls.BatchWrite)
	assert.Zero(t, fake.Calls.PutItem)
}

func TestImportSkipsRecordsWithoutID(t *testing.T) {
	fake := storetest.New()
	im := newImporter(fake, store.Mutate)

	records := []store.Record{
		rec("a"),
		{"name": "orphan"},
		rec("b"),
	}
	res, err := im.Import(context.Background(), importTable, records, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, []string{"a", "b"}, fakeIDs(fake, importTable))
}

func TestImportPerRecordAttributesFailures(t *testing.T) {
	fake := storetest.New()
	fake.FailIDs = map[string]bool{"b": true}
	im := newImporter(fake, store.Mutate, WithBatchSize(1))

	records := []store.Record{rec("a"), rec("b"), rec("c")}
	res, err := im.Import(context.Background(), importTable, records, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"b"}, res.FailedIDs)
	assert.Equal(t, []string{"a", "c"}, fakeIDs(fake, importTable))
}

func TestImportRetryTargetsLedgeredIDs(t *testing.T) {
	fake := storetest.New()
	im := newImporter(fake, store.Mutate)

	records := []store.Record{rec("a"), rec("b"), rec("c")}
	ledger := &Ledger{Table: importTable, FailedIDs: []string{"b"}}

	res, err := im.Import(context.Background(), importTable, records, ledger)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, []string{"b"}, fakeIDs(fake, importTable))
}

func TestImportRefusedInInspectMode(t *testing.T) {
	fake := storetest.New()
	im := newImporter(fake, store.Inspect)

	_, err := im.Import(context.Background(), importTable, []store.Record{rec("a")}, nil)
	require.ErrorIs(t, err, store.ErrInspectMode)

	assert.Zero(t, fake.Calls.BatchWrite)
	assert.Zero(t, fake.Calls.PutItem)
	assert.Zero(t, fake.Calls.UpdateItem)
}

func TestImportLedgersWholeBatchOnFailure(t *testing.T) {
	fake := storetest.New()
	fake.Err = &types.ProvisionedThroughputExceededException{}
	im := newImporter(fake, store.Mutate, WithBatchSize(2))

	records := []store.Record{rec("a"), rec("b"), rec("c")}
	res, err := im.Import(context.Background(), importTable, records, nil)
	require.NoError(t, err, "batch failures are ledgered, not fatal")

	assert.Equal(t, 3, res.Failed)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, res.FailedIDs)
}
