// Package warehouse creates and loads per-tenant destination tables.
package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/steeplehq/steeple-engine/pkg/database"
	"github.com/steeplehq/steeple-engine/pkg/etl"
)

// maxParams is the protocol ceiling on bind parameters per statement; insert
// chunk sizes are derived from it.
const maxParams = 65535

// maxChunkRows caps insert chunk size even for narrow tables.
const maxChunkRows = 500

// Loader replaces destination tables inside a tenant's schema. Loads are
// wholesale: the previous table is dropped and rebuilt from the incoming
// rows, so a load is atomic per table but not across tables.
type Loader struct {
	db     *database.DB
	logger *zap.Logger
}

// NewLoader creates a loader on top of a connection pool.
func NewLoader(db *database.DB, logger *zap.Logger) *Loader {
	return &Loader{db: db, logger: logger.Named("warehouse")}
}

// EnsureSchema creates the tenant's schema if it does not exist yet.
func (l *Loader) EnsureSchema(ctx context.Context, schema string) error {
	sql := "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{schema}.Sanitize()
	if _, err := l.db.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to ensure schema %s: %w", schema, err)
	}
	return nil
}

// ReplaceTable drops and recreates a destination table from the in-memory
// table, with column types inferred from names and sampled values. Values
// that cannot be represented in their column's type load as NULL. An empty
// table is a no-op so a failed fetch never clobbers previous data.
func (l *Loader) ReplaceTable(ctx context.Context, schema string, t *etl.Table) error {
	if t.Empty() {
		l.logger.Info("Skipping empty table", zap.String("schema", schema), zap.String("table", t.Name))
		return nil
	}

	columns := t.Columns()
	types := etl.InferColumnTypes(t)

	qualified := pgx.Identifier{schema, t.Name}.Sanitize()
	if _, err := l.db.Exec(ctx, "DROP TABLE IF EXISTS "+qualified); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", qualified, err)
	}
	if _, err := l.db.Exec(ctx, buildCreateTable(qualified, columns, types)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", qualified, err)
	}

	chunkRows := maxParams / len(columns)
	if chunkRows > maxChunkRows {
		chunkRows = maxChunkRows
	}
	if chunkRows < 1 {
		chunkRows = 1
	}

	loaded := 0
	for start := 0; start < len(t.Rows); start += chunkRows {
		end := start + chunkRows
		if end > len(t.Rows) {
			end = len(t.Rows)
		}
		chunk := t.Rows[start:end]

		sql, args := buildInsert(qualified, columns, types, chunk)
		if _, err := l.db.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", qualified, err)
		}
		loaded += len(chunk)
	}

	l.logger.Info("Loaded table",
		zap.String("schema", schema),
		zap.String("table", t.Name),
		zap.Int("rows", loaded),
		zap.Int("columns", len(columns)))
	return nil
}

func buildCreateTable(qualified string, columns []string, types map[string]etl.ColumnType) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(qualified)
	b.WriteString(" (")
	for i, col := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgx.Identifier{col}.Sanitize())
		b.WriteString(" ")
		b.WriteString(types[col].String())
	}
	b.WriteString(")")
	return b.String()
}

func buildInsert(qualified string, columns []string, types map[string]etl.ColumnType, rows []etl.Row) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(qualified)
	b.WriteString(" (")
	for i, col := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgx.Identifier{col}.Sanitize())
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	param := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, col := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", param)
			param++
			args = append(args, convertValue(row[col], types[col]))
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// convertValue coerces a row value to fit its column's physical type.
// Unrepresentable values become NULL rather than failing the load.
func convertValue(v any, ct etl.ColumnType) any {
	if v == nil {
		return nil
	}

	switch ct {
	case etl.TypeInteger:
		return toInt64(v)
	case etl.TypeFloat:
		return toFloat64(v)
	case etl.TypeBoolean:
		return toBool(v)
	case etl.TypeDate:
		return toDate(v)
	case etl.TypeTimestampTZ:
		return toTimestamp(v)
	case etl.TypeString255:
		s := toText(v)
		if s == nil {
			return nil
		}
		// Sampling can miss long outliers; truncate instead of failing.
		// VARCHAR(255) counts characters, so cut on a rune boundary.
		if text := s.(string); len(text) > 255 {
			if runes := []rune(text); len(runes) > 255 {
				return string(runes[:255])
			}
			return text
		}
		return s
	default:
		return toText(v)
	}
}

func toInt64(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case int64:
		return val
	case float64:
		return int64(val)
	case string:
		var n int64
		if _, err := fmt.Sscanf(strings.TrimSpace(val), "%d", &n); err == nil {
			return n
		}
		return nil
	default:
		return nil
	}
}

func toFloat64(v any) any {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(val), "%g", &f); err == nil {
			return f
		}
		return nil
	default:
		return nil
	}
}

var truthyLiterals = map[string]bool{"true": true, "1": true, "yes": true, "t": true, "y": true}
var falsyLiterals = map[string]bool{"false": true, "0": true, "no": true, "f": true, "n": true}

func toBool(v any) any {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		normalized := strings.ToLower(strings.TrimSpace(val))
		if truthyLiterals[normalized] {
			return true
		}
		if falsyLiterals[normalized] {
			return false
		}
		return nil
	default:
		return nil
	}
}

func toDate(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil
		}
		if d, err := time.Parse("2006-01-02", s); err == nil {
			return d
		}
		if ts, ok := etl.ParseTimestamp(s); ok {
			return ts
		}
		return nil
	default:
		return nil
	}
}

func toTimestamp(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		if ts, ok := etl.ParseTimestamp(val); ok {
			return ts
		}
		return nil
	default:
		return nil
	}
}

func toText(v any) any {
	if s, ok := v.(string); ok {
		return s
	}
	if ts, ok := v.(time.Time); ok {
		return ts.Format(time.RFC3339)
	}
	if s := etl.ScalarString(v); s != "" {
		return s
	}
	return nil
}
