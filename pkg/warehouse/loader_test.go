package warehouse

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steeplehq/steeple-engine/pkg/etl"
)

func TestBuildCreateTable(t *testing.T) {
	columns := []string{"Person_id", "first_name", "created_at"}
	types := map[string]etl.ColumnType{
		"Person_id":  etl.TypeInteger,
		"first_name": etl.TypeString255,
		"created_at": etl.TypeTimestampTZ,
	}

	sql := buildCreateTable(`"tenant_x"."pc_people"`, columns, types)

	assert.Equal(t,
		`CREATE TABLE "tenant_x"."pc_people" ("Person_id" BIGINT, "first_name" VARCHAR(255), "created_at" TIMESTAMPTZ)`,
		sql)
}

func TestBuildInsert(t *testing.T) {
	columns := []string{"id", "name"}
	types := map[string]etl.ColumnType{"id": etl.TypeInteger, "name": etl.TypeString255}
	rows := []etl.Row{
		{"id": "1", "name": "Ada"},
		{"id": "2", "name": "Grace"},
	}

	sql, args := buildInsert(`"s"."t"`, columns, types, rows)

	assert.Equal(t, `INSERT INTO "s"."t" ("id", "name") VALUES ($1, $2), ($3, $4)`, sql)
	require.Len(t, args, 4)
	assert.Equal(t, int64(1), args[0])
	assert.Equal(t, "Ada", args[1])
	assert.Equal(t, int64(2), args[2])
	assert.Equal(t, "Grace", args[3])
}

func TestConvertValue(t *testing.T) {
	central, err := time.LoadLocation("US/Central")
	require.NoError(t, err)
	stamp := time.Date(2024, 3, 15, 13, 30, 0, 0, central)

	tests := []struct {
		name string
		v    any
		ct   etl.ColumnType
		want any
	}{
		{"nil passes through", nil, etl.TypeInteger, nil},

		{"integer from string", "42", etl.TypeInteger, int64(42)},
		{"integer from float", float64(42), etl.TypeInteger, int64(42)},
		{"integer from garbage", "forty-two", etl.TypeInteger, nil},

		{"float from string", "1.5", etl.TypeFloat, 1.5},
		{"float from garbage", "x", etl.TypeFloat, nil},

		{"bool native", true, etl.TypeBoolean, true},
		{"bool from literal", "Yes", etl.TypeBoolean, true},
		{"bool from zero", "0", etl.TypeBoolean, false},
		{"bool from garbage", "maybe", etl.TypeBoolean, nil},

		{"date from string", "2024-03-15", etl.TypeDate, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"date from garbage", "soon", etl.TypeDate, nil},

		{"timestamp native", stamp, etl.TypeTimestampTZ, stamp},
		{"timestamp from garbage", "soon", etl.TypeTimestampTZ, nil},

		{"text passthrough", "hello", etl.TypeText, "hello"},
		{"text from number", float64(7), etl.TypeText, "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, convertValue(tt.v, tt.ct))
		})
	}
}

func TestConvertValueTimestampString(t *testing.T) {
	got := convertValue("2024-03-15T18:30:00Z", etl.TypeTimestampTZ)
	ts, ok := got.(time.Time)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC), ts.UTC())
}

func TestConvertValueTruncatesShortText(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}

	got := convertValue(string(long), etl.TypeString255)
	require.IsType(t, "", got)
	assert.Len(t, got.(string), 255)
}

func TestConvertValueTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", 300)

	got := convertValue(long, etl.TypeString255)
	require.IsType(t, "", got)
	text := got.(string)
	assert.Equal(t, 255, utf8.RuneCountInString(text))
	assert.True(t, utf8.ValidString(text))
}

func TestConvertValueKeepsMultibyteWithin255Runes(t *testing.T) {
	// 200 two-byte runes exceed 255 bytes but fit VARCHAR(255).
	text := strings.Repeat("é", 200)

	got := convertValue(text, etl.TypeString255)
	assert.Equal(t, text, got)
}
