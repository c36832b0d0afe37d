package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envshift/config"
	"github.com/envshift/store"
	"github.com/envshift/store/storetest"
)

func env(suffix string) config.Environment {
	return config.Environment{Suffix: suffix, Stage: "NONE", Region: "us-west-1"}
}

func newClient(fake *storetest.Fake) *store.Client {
	return store.NewWithAPI(fake, store.Inspect, zerolog.Nop())
}

func TestPhysicalName(t *testing.T) {
	assert.Equal(t, "Projects-abc123-NONE", PhysicalName("Projects", env("abc123")))
}

func TestResolveAllTables(t *testing.T) {
	fake := storetest.New()
	fake.CreateTable("Projects-abc123-NONE")
	fake.CreateTable("Quotes-abc123-NONE")
	fake.CreateTable("Projects-other99-NONE")
	fake.CreateTable("unrelated-table")

	tables, err := Resolve(context.Background(), newClient(fake), env("abc123"), nil)
	require.NoError(t, err)
	require.Len(t, tables, 2)

	// Sorted by logical name, all existing.
	assert.Equal(t, "Projects", tables[0].Logical)
	assert.Equal(t, "Projects-abc123-NONE", tables[0].Physical)
	assert.True(t, tables[0].Exists)
	assert.Equal(t, "Quotes", tables[1].Logical)
}

func TestResolveRequestedTables(t *testing.T) {
	fake := storetest.New()
	fake.CreateTable("Projects-abc123-NONE")

	tables, err := Resolve(context.Background(), newClient(fake), env("abc123"), []string{"Projects", "Legal"})
	require.NoError(t, err)
	require.Len(t, tables, 2)

	assert.True(t, tables[0].Exists)
	assert.False(t, tables[1].Exists)
	assert.Equal(t, "Legal-abc123-NONE", tables[1].Physical)
}

func TestResolveSuffixMatchIsExact(t *testing.T) {
	fake := storetest.New()
	fake.CreateTable("Projects-ABC123-NONE")
	fake.CreateTable("Projects-abc123-PROD")
	fake.CreateTable("Projects-abc12-NONE")

	tables, err := Resolve(context.Background(), newClient(fake), env("abc123"), nil)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestResolveEmptySuffix(t *testing.T) {
	_, err := Resolve(context.Background(), newClient(storetest.New()), env(""), nil)
	assert.Error(t, err)
}

func TestResolveListingFailureIsFatal(t *testing.T) {
	fake := storetest.New()
	fake.Err = errors.New("expired credentials")

	_, err := Resolve(context.Background(), newClient(fake), env("abc123"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired credentials")
}
