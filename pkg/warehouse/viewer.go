package warehouse

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TableInfo describes one destination table for the data viewer.
type TableInfo struct {
	Name     string `json:"name"`
	RowCount int64  `json:"row_count"`
}

// ListTables returns the destination tables of a tenant's schema with row
// counts, ordered by name.
func (l *Loader) ListTables(ctx context.Context, schema string) ([]TableInfo, error) {
	rows, err := l.db.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables in %s: %w", schema, err)
	}

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tables in %s: %w", schema, err)
	}

	tables := make([]TableInfo, 0, len(names))
	for _, name := range names {
		var count int64
		countSQL := "SELECT COUNT(*) FROM " + pgx.Identifier{schema, name}.Sanitize()
		if err := l.db.QueryRow(ctx, countSQL).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count rows of %s: %w", name, err)
		}
		tables = append(tables, TableInfo{Name: name, RowCount: count})
	}
	return tables, nil
}

// TableRows returns one page of a destination table plus its column names
// and total row count. The table name must come from ListTables, never from
// raw user input, since it is interpolated as an identifier.
func (l *Loader) TableRows(ctx context.Context, schema, table string, limit, offset int) ([]string, []map[string]any, int64, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	qualified := pgx.Identifier{schema, table}.Sanitize()

	var total int64
	if err := l.db.QueryRow(ctx, "SELECT COUNT(*) FROM "+qualified).Scan(&total); err != nil {
		return nil, nil, 0, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}

	rows, err := l.db.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d OFFSET %d", qualified, limit, offset))
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to read %s: %w", table, err)
	}
	defer rows.Close()

	descriptions := rows.FieldDescriptions()
	columns := make([]string, len(descriptions))
	for i, d := range descriptions {
		columns[i] = d.Name
	}

	var result []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, 0, fmt.Errorf("failed to read row of %s: %w", table, err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, 0, fmt.Errorf("failed to read %s: %w", table, err)
	}

	return columns, result, total, nil
}
