package etl

import (
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// ParseLinkIDs normalizes a multi-valued link column value into a list of
// scalar ids. Accepted shapes: a native list, a JSON-encoded list or scalar
// string, a single-quoted literal list, a bare scalar, or empty/null (which
// yields an empty list).
func ParseLinkIDs(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		var ids []string
		for _, s := range v {
			if s != "" {
				ids = append(ids, s)
			}
		}
		return ids
	case []any:
		var ids []string
		for _, item := range v {
			if s := ScalarString(item); s != "" {
				ids = append(ids, s)
			}
		}
		return ids
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}

		looksEncoded := (strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) ||
			(strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`))
		if looksEncoded {
			var parsed any
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				return parsedToIDs(parsed)
			}
			if parsed, ok := parseLooseStructure(trimmed); ok {
				return parsedToIDs(parsed)
			}
		}

		// A bare scalar id.
		return []string{trimmed}
	default:
		if s := ScalarString(v); s != "" {
			return []string{s}
		}
		return nil
	}
}

func parsedToIDs(parsed any) []string {
	switch p := parsed.(type) {
	case []any:
		var ids []string
		for _, item := range p {
			if s := ScalarString(item); s != "" {
				ids = append(ids, s)
			}
		}
		return ids
	case nil:
		return nil
	default:
		if s := ScalarString(p); s != "" {
			return []string{s}
		}
		return nil
	}
}

// ScalarString renders a scalar value as its canonical text form, used for
// link ids and join keys. Whole floats print without a decimal part so ids
// that round-tripped through JSON numbers still match.
func ScalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == math.Trunc(val) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return strings.TrimSpace(strings.Trim(strings.TrimSpace(stringify(val)), `"`))
	}
}

func stringify(v any) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// ExplodeByColumn expands rows whose named column holds multiple link ids
// into one row per id, each carrying a single scalar in that column. Rows
// with no ids after parsing are dropped.
func ExplodeByColumn(t *Table, col string) {
	exploded := make([]Row, 0, len(t.Rows))

	for _, row := range t.Rows {
		ids := ParseLinkIDs(row[col])
		for _, id := range ids {
			clone := make(Row, len(row))
			for k, v := range row {
				clone[k] = v
			}
			clone[col] = id
			exploded = append(exploded, clone)
		}
	}

	t.replaceRows(exploded)
}
