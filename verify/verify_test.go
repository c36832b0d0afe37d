package verify

import (
	"bytes"
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envshift/store"
	"github.com/envshift/store/storetest"
)

func seedN(fake *storetest.Fake, table string, n int) {
	fake.CreateTable(table)
	for i := 0; i < n; i++ {
		fake.Seed(table, map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: string(rune('a' + i))},
		})
	}
}

func TestCompare(t *testing.T) {
	srcFake := storetest.New()
	dstFake := storetest.New()
	seedN(srcFake, "Users-src111-NONE", 3)
	seedN(dstFake, "Users-dst222-NONE", 3)

	src := store.NewWithAPI(srcFake, store.Inspect, zerolog.Nop())
	dst := store.NewWithAPI(dstFake, store.Inspect, zerolog.Nop())

	row, err := Compare(context.Background(), src, dst, "Users", "Users-src111-NONE", "Users-dst222-NONE")
	require.NoError(t, err)
	assert.Equal(t, 3, row.SourceCount)
	assert.Equal(t, 3, row.TargetCount)
	assert.True(t, row.Match())
}

func TestCompareMissingTarget(t *testing.T) {
	srcFake := storetest.New()
	dstFake := storetest.New()
	seedN(srcFake, "Users-src111-NONE", 2)

	src := store.NewWithAPI(srcFake, store.Inspect, zerolog.Nop())
	dst := store.NewWithAPI(dstFake, store.Inspect, zerolog.Nop())

	_, err := Compare(context.Background(), src, dst, "Users", "Users-src111-NONE", "Users-dst222-NONE")
	require.ErrorIs(t, err, store.ErrTableNotFound)
}

func TestReportAllMatch(t *testing.T) {
	var rep Report
	rep.Add(Row{Logical: "Users", SourceCount: 3, TargetCount: 3})
	rep.Add(Row{Logical: "Orders", SourceCount: 5, TargetCount: 5})
	assert.True(t, rep.AllMatch())

	rep.Add(Row{Logical: "Projects", SourceCount: 4, TargetCount: 2})
	assert.False(t, rep.AllMatch())
}

func TestReportRender(t *testing.T) {
	var rep Report
	rep.Add(Row{Logical: "Users", SourceCount: 3, TargetCount: 3})
	rep.Add(Row{Logical: "Projects", SourceCount: 4, TargetCount: 2})

	var buf bytes.Buffer
	rep.Render(&buf)
	out := buf.String()

	assert.Contains(t, out, "Users")
	assert.Contains(t, out, "MATCH")
	assert.Contains(t, out, "Projects")
	assert.Contains(t, out, "DIFF")
}
