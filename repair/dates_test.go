package repair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		changed bool
	}{
		{"slash short year 2000s", "6/3/25", "2025-06-03T00:00:00.000Z", true},
		{"slash short year end of range", "12/31/23", "2023-12-31T00:00:00.000Z", true},
		{"slash short year 1900s", "1/2/99", "1999-01-02T00:00:00.000Z", true},
		{"year threshold below fifty", "1/1/49", "2049-01-01T00:00:00.000Z", true},
		{"year threshold at fifty", "1/1/50", "1950-01-01T00:00:00.000Z", true},
		{"slash full year", "6/3/2025", "2025-06-03T00:00:00.000Z", true},
		{"dash short year", "12-31-23", "2023-12-31T00:00:00.000Z", true},
		{"dash full year", "12-31-2023", "2023-12-31T00:00:00.000Z", true},
		{"unpadded iso", "2023-6-3", "2023-06-03T00:00:00.000Z", true},
		{"spaced datetime", "2023-06-03 10:30:00", "2023-06-03T10:30:00.000Z", true},
		{"already canonical", "2023-06-03T10:30:00.000Z", "2023-06-03T10:30:00.000Z", false},
		{"rfc3339 with offset", "2023-06-03T10:30:00+10:00", "2023-06-03T10:30:00+10:00", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, changed, err := NormalizeDate(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.changed, changed)
		})
	}
}

func TestNormalizeDateEmpty(t *testing.T) {
	got, changed, err := NormalizeDate("")
	require.NoError(t, err)
	assert.Equal(t, "", got)
	assert.False(t, changed)

	got, changed, err = NormalizeDate("   ")
	require.NoError(t, err)
	assert.Equal(t, "   ", got)
	assert.False(t, changed)
}

func TestNormalizeDateUnparseable(t *testing.T) {
	for _, in := range []string{"not a date", "13/45/25", "99/99/99", "soon"} {
		got, changed, err := NormalizeDate(in)
		assert.Error(t, err, in)
		assert.Equal(t, in, got, "unparseable values are left as-is")
		assert.False(t, changed)
	}
}
