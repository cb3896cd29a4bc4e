package etl

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ColumnType is the physical type a destination column will be created with.
type ColumnType int

const (
	TypeString255 ColumnType = iota // short text, <=255 chars
	TypeText                        // long text
	TypeInteger
	TypeFloat
	TypeBoolean
	TypeDate
	TypeTimestampTZ
)

// String returns the PostgreSQL DDL type for the column type.
func (ct ColumnType) String() string {
	switch ct {
	case TypeInteger:
		return "BIGINT"
	case TypeFloat:
		return "DOUBLE PRECISION"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeDate:
		return "DATE"
	case TypeTimestampTZ:
		return "TIMESTAMPTZ"
	case TypeText:
		return "TEXT"
	default:
		return "VARCHAR(255)"
	}
}

// typeSampleSize bounds value sampling during type inference.
const typeSampleSize = 20

var booleanNamePatterns = []string{"is_", "has_", "can_", "primary", "blocked", "verified", "opened"}

var numericNamePatterns = []string{"count", "total", "min", "max", "grade", "year"}

var booleanLiterals = map[string]bool{
	"true": true, "false": true, "1": true, "0": true,
	"yes": true, "no": true, "t": true, "f": true, "y": true, "n": true, "": true,
}

// InferColumnTypes derives a column-to-physical-type mapping from column
// names and sampled values. Rules are applied in a fixed precedence order;
// later rules only apply when earlier ones do not match, because the result
// determines destination-table DDL:
//
//  1. *_id is integer, *_ids is long text;
//  2. boolean-ish names (is_/has_/can_/primary/blocked/verified/opened) are
//     boolean for native bools, boolean for small bool-like string value
//     sets, otherwise text sized by the longest sample;
//  3. names with "date" (and without "time") are plain dates, other
//     date-ish names ("date" with "time", or *_at) are timestamps;
//  4. names with count/total/min/max/grade/year are integer or float for
//     native numbers, short text otherwise;
//  5. serialized nested structures are long text;
//  6. notes/description names, or samples over 255 chars, are long text;
//  7. otherwise the native type (boolean/integer/float/timestamp) or short
//     text.
func InferColumnTypes(t *Table) map[string]ColumnType {
	types := make(map[string]ColumnType, len(t.Columns()))
	for _, col := range t.Columns() {
		types[col] = inferColumnType(col, t.sampleColumn(col, typeSampleSize))
	}
	return types
}

func inferColumnType(col string, sample []any) ColumnType {
	lower := strings.ToLower(col)

	// Rule 1: id columns by suffix, regardless of content.
	if strings.HasSuffix(col, "_ids") {
		return TypeText
	}
	if strings.HasSuffix(col, "_id") {
		return TypeInteger
	}

	// Rule 2: boolean-ish names.
	if containsAny(lower, booleanNamePatterns) {
		return inferBooleanish(sample)
	}

	// Rule 3: date/timestamp names.
	if strings.Contains(lower, "date") || strings.HasSuffix(col, "_at") {
		if strings.Contains(lower, "date") && !strings.Contains(lower, "time") {
			return TypeDate
		}
		return TypeTimestampTZ
	}

	// Rule 4: numeric-ish names.
	if containsAny(lower, numericNamePatterns) {
		switch kind := nativeKind(sample); kind {
		case TypeInteger, TypeFloat:
			return kind
		default:
			return TypeString255
		}
	}

	// Rules 5-6: long text content.
	if len(sample) > 0 {
		if s, ok := sample[0].(string); ok {
			if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
				return TypeText
			}
			if strings.Contains(lower, "notes") || strings.Contains(lower, "description") || maxStringLen(sample) > 255 {
				return TypeText
			}
			return TypeString255
		}
	}

	// Rule 7: fall back on the native value type.
	switch kind := nativeKind(sample); kind {
	case TypeBoolean, TypeInteger, TypeFloat, TypeTimestampTZ:
		return kind
	default:
		return TypeString255
	}
}

func inferBooleanish(sample []any) ColumnType {
	if len(sample) == 0 {
		return TypeBoolean
	}
	if _, ok := sample[0].(bool); ok {
		return TypeBoolean
	}

	if _, ok := sample[0].(string); ok {
		distinct := map[string]bool{}
		boolLike := true
		for _, v := range sample {
			s, ok := v.(string)
			if !ok {
				boolLike = false
				break
			}
			normalized := strings.ToLower(strings.TrimSpace(s))
			distinct[normalized] = true
			if !booleanLiterals[normalized] {
				boolLike = false
				break
			}
		}
		if boolLike && len(distinct) <= 3 {
			return TypeBoolean
		}
		if maxStringLen(sample) > 255 {
			return TypeText
		}
		return TypeString255
	}

	if maxLen := maxStringLen(sample); maxLen > 255 {
		return TypeText
	}
	return TypeString255
}

// nativeKind reports the column type implied by the sampled Go values.
func nativeKind(sample []any) ColumnType {
	if len(sample) == 0 {
		return TypeString255
	}

	switch sample[0].(type) {
	case bool:
		return TypeBoolean
	case time.Time:
		return TypeTimestampTZ
	case int, int32, int64:
		return TypeInteger
	case float64, float32:
		// JSON numbers decode as float64; a column of whole values is an
		// integer column.
		for _, v := range sample {
			f, ok := v.(float64)
			if !ok {
				return TypeFloat
			}
			if f != math.Trunc(f) {
				return TypeFloat
			}
		}
		return TypeInteger
	default:
		return TypeString255
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func maxStringLen(sample []any) int {
	maxLen := 0
	for _, v := range sample {
		if n := len(fmt.Sprintf("%v", v)); n > maxLen {
			maxLen = n
		}
	}
	return maxLen
}
