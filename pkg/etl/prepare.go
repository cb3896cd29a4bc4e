package etl

import (
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// storageSampleSize bounds how many non-null values are examined when
// deciding whether a column needs nested-structure coercion.
const storageSampleSize = 100

// PrepareForStorage rewrites columns holding nested structures so every
// value is either null or a single canonical JSON string. The decision is
// made per column from a sample: if any sampled value needs conversion, the
// whole column is processed with per-value fallback (values that cannot be
// converted pass through unchanged). String values that already are valid
// JSON encodings are left alone.
func PrepareForStorage(t *Table, logger *zap.Logger) {
	converted := 0

	for _, col := range t.Columns() {
		sample := t.sampleColumn(col, storageSampleSize)
		if len(sample) == 0 {
			continue
		}

		if !columnNeedsCoercion(sample) {
			continue
		}

		for _, row := range t.Rows {
			row[col] = coerceValue(row[col])
		}
		converted++
	}

	if converted > 0 {
		logger.Info("Coerced nested-structure columns to JSON strings",
			zap.String("table", t.Name),
			zap.Int("columns", converted))
	}
}

func columnNeedsCoercion(sample []any) bool {
	for _, v := range sample {
		switch val := v.(type) {
		case map[string]any, []any:
			return true
		case string:
			trimmed := strings.TrimSpace(val)
			if !delimitedLikeStructure(trimmed) {
				continue
			}
			if json.Valid([]byte(trimmed)) {
				// Already a canonical JSON encoding.
				continue
			}
			if _, ok := parseLooseStructure(trimmed); ok {
				return true
			}
		}
	}
	return false
}

// coerceValue converts one value to its canonical JSON string encoding, or
// returns it unchanged when it is not a nested structure.
func coerceValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any, []any:
		encoded, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		return string(encoded)
	case string:
		trimmed := strings.TrimSpace(val)
		if !delimitedLikeStructure(trimmed) {
			return v
		}
		if json.Valid([]byte(trimmed)) {
			return v
		}
		if parsed, ok := parseLooseStructure(trimmed); ok {
			encoded, err := json.Marshal(parsed)
			if err != nil {
				return v
			}
			return string(encoded)
		}
		return v
	default:
		return v
	}
}

func delimitedLikeStructure(s string) bool {
	return (strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")) ||
		(strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}"))
}

// parseLooseStructure parses a serialized list or mapping that is not valid
// JSON but uses single-quoted literal syntax (e.g. "['a', 'b']"). Values
// containing double quotes are not rewritten to avoid corrupting them.
func parseLooseStructure(s string) (any, bool) {
	if strings.Contains(s, `"`) {
		return nil, false
	}
	rewritten := strings.ReplaceAll(s, "'", `"`)
	var parsed any
	if err := json.Unmarshal([]byte(rewritten), &parsed); err != nil {
		return nil, false
	}
	switch parsed.(type) {
	case map[string]any, []any:
		return parsed, true
	default:
		return nil, false
	}
}
