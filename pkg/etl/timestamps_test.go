package etl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseTimestamp(t *testing.T) {
	ts, ok := ParseTimestamp("2024-03-15T18:30:00Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC), ts.UTC())

	// Naive values are UTC by contract.
	ts, ok = ParseTimestamp("2024-03-15T18:30:00")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC), ts.UTC())

	ts, ok = ParseTimestamp("2024-03-15 18:30:00")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC), ts.UTC())

	_, ok = ParseTimestamp("not a timestamp")
	assert.False(t, ok)
	_, ok = ParseTimestamp("")
	assert.False(t, ok)
}

func TestLooksLikeTimestamp(t *testing.T) {
	assert.True(t, LooksLikeTimestamp("2024-03-15T18:30:00Z"))
	assert.True(t, LooksLikeTimestamp("2024-03-15 18:30:00"))
	assert.False(t, LooksLikeTimestamp("Ada"))
	assert.False(t, LooksLikeTimestamp("2024-03-15"))
}

func TestConvertTimestampsTextColumn(t *testing.T) {
	central, err := time.LoadLocation("US/Central")
	require.NoError(t, err)

	table := NewTable("pc_checkins")
	table.AppendRows([]Row{
		{"CheckIn_id": "1", "created_at": "2024-03-15T18:30:00Z", "kind": "Regular"},
		{"CheckIn_id": "2", "created_at": "2024-03-15T19:00:00Z", "kind": "Guest"},
	})

	ConvertTimestamps(table, central, zap.NewNop())

	ts, ok := table.Rows[0]["created_at"].(time.Time)
	require.True(t, ok)
	assert.Equal(t, central, ts.Location())
	// 18:30 UTC is 13:30 in Central during DST.
	assert.Equal(t, 13, ts.Hour())

	// Non-timestamp text columns are untouched.
	assert.Equal(t, "Regular", table.Rows[0]["kind"])
}

func TestConvertTimestampsIdempotent(t *testing.T) {
	central, err := time.LoadLocation("US/Central")
	require.NoError(t, err)

	table := NewTable("pc_events")
	table.AppendRow(Row{"Event_id": "1", "starts_at": "2024-03-15T18:30:00Z"})

	ConvertTimestamps(table, central, zap.NewNop())
	first, ok := table.Rows[0]["starts_at"].(time.Time)
	require.True(t, ok)

	ConvertTimestamps(table, central, zap.NewNop())
	second, ok := table.Rows[0]["starts_at"].(time.Time)
	require.True(t, ok)

	assert.True(t, first.Equal(second))
	assert.Equal(t, first.Hour(), second.Hour())
}

func TestConvertTimestampsRespectsSamplingThreshold(t *testing.T) {
	table := NewTable("pc_people")
	// One timestamp-looking value in a mostly free-text column stays text.
	table.AppendRows([]Row{
		{"notes": "2024-03-15T18:30:00Z"},
		{"notes": "called back, left a message on the office line"},
		{"notes": "moved out of state, follow up next quarter maybe"},
		{"notes": "prefers email over phone for any communication"},
	})

	ConvertTimestamps(table, time.UTC, zap.NewNop())

	_, isTime := table.Rows[0]["notes"].(time.Time)
	assert.False(t, isTime)
}

func TestAddDerivedDateColumns(t *testing.T) {
	central, err := time.LoadLocation("US/Central")
	require.NoError(t, err)

	table := NewTable("pc_checkins")
	table.AppendRow(Row{
		"CheckIn_id": "1",
		"created_at": time.Date(2024, 3, 15, 13, 30, 0, 0, central),
		"kind":       "Regular",
	})

	AddDerivedDateColumns(table, zap.NewNop())

	assert.Equal(t, "2024-03-15", table.Rows[0]["created_date"])
	assert.Equal(t, "13:30:00", table.Rows[0]["created_time"])
	assert.True(t, table.HasColumn("created_date"))
	assert.True(t, table.HasColumn("created_time"))

	// Non-timestamp columns contribute nothing.
	assert.False(t, table.HasColumn("kind_date"))
}

func TestAddDerivedDateColumnsKeepsExisting(t *testing.T) {
	table := NewTable("pc_events")
	table.AppendRow(Row{
		"starts_at":   time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC),
		"starts_date": "preset",
	})

	AddDerivedDateColumns(table, zap.NewNop())

	assert.Equal(t, "preset", table.Rows[0]["starts_date"])
	assert.Equal(t, "09:00:00", table.Rows[0]["starts_time"])
}
