package etl

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// timestampSampleSize bounds how many non-null values are examined when
	// deciding whether a text column holds timestamps.
	timestampSampleSize = 50

	// timestampParseThreshold is the fraction of samples that must parse for
	// a text column to be reinterpreted as a timestamp column.
	timestampParseThreshold = 0.7
)

// timestampLayouts are tried in order. Layouts without a zone are parsed as
// UTC (naive upstream values are UTC by contract).
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses a serialized timestamp, assuming UTC when the value
// carries no zone.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// LooksLikeTimestamp is the cheap pre-filter used before attempting a full
// parse of a sampled value: contains 'T', two or more ':', ends with 'Z', or
// is longer than 15 characters.
func LooksLikeTimestamp(s string) bool {
	return strings.Contains(s, "T") ||
		strings.Count(s, ":") >= 2 ||
		strings.HasSuffix(s, "Z") ||
		len(s) > 15
}

// hasTimeComponent reports whether a sampled value carries a time of day,
// not just a calendar date.
func hasTimeComponent(s string) bool {
	return strings.Contains(s, "T") ||
		strings.Contains(s, ":") ||
		strings.HasSuffix(s, "Z") ||
		len(s) > 15
}

// ConvertTimestamps converts every timestamp column of the table to the
// target zone. Columns already holding time values are converted directly.
// Text columns are sampled: if at least 70% of up to 50 non-null samples
// parse as timestamps and the samples show a time component, the whole
// column is reinterpreted and converted; otherwise it is left untouched.
// This sampling is the only source of truth for what counts as a timestamp
// column, so the result is best-effort, not a guarantee. Converting an
// already-converted column again with the same zone is a no-op.
func ConvertTimestamps(t *Table, loc *time.Location, logger *zap.Logger) {
	converted := 0

	for _, col := range t.Columns() {
		sample := t.sampleColumn(col, timestampSampleSize)
		if len(sample) == 0 {
			continue
		}

		if _, ok := sample[0].(time.Time); ok {
			for _, row := range t.Rows {
				if ts, ok := row[col].(time.Time); ok {
					row[col] = ts.In(loc)
				}
			}
			converted++
			continue
		}

		if !textColumnHoldsTimestamps(sample) {
			continue
		}

		for _, row := range t.Rows {
			s, ok := row[col].(string)
			if !ok {
				continue
			}
			if ts, ok := ParseTimestamp(s); ok {
				row[col] = ts.In(loc)
			}
		}
		converted++
	}

	if converted > 0 {
		logger.Info("Converted timestamp columns",
			zap.String("table", t.Name),
			zap.Int("columns", converted),
			zap.String("timezone", loc.String()))
	}
}

func textColumnHoldsTimestamps(sample []any) bool {
	probe := sample
	if len(probe) > 10 {
		probe = probe[:10]
	}

	anyLooksLike := false
	hasTime := false
	for _, v := range probe {
		s, ok := v.(string)
		if !ok {
			return false
		}
		if LooksLikeTimestamp(s) {
			anyLooksLike = true
		}
		if hasTimeComponent(s) {
			hasTime = true
		}
	}
	if !anyLooksLike || !hasTime {
		return false
	}

	parsed := 0
	for _, v := range sample {
		s, ok := v.(string)
		if !ok {
			return false
		}
		if _, ok := ParseTimestamp(s); ok {
			parsed++
		}
	}
	return float64(parsed)/float64(len(sample)) >= timestampParseThreshold
}

// AddDerivedDateColumns adds {base}_date and {base}_time columns for every
// timestamp column whose name ends in _at, where base is the name with the
// trailing _at removed. Existing columns are not overwritten.
func AddDerivedDateColumns(t *Table, logger *zap.Logger) {
	added := 0

	for _, col := range t.Columns() {
		if !strings.HasSuffix(col, "_at") {
			continue
		}
		sample := t.sampleColumn(col, 1)
		if len(sample) == 0 {
			continue
		}
		if _, ok := sample[0].(time.Time); !ok {
			continue
		}

		base := strings.TrimSuffix(col, "_at")
		dateCol := base + "_date"
		timeCol := base + "_time"

		if !t.HasColumn(dateCol) {
			for _, row := range t.Rows {
				if ts, ok := row[col].(time.Time); ok {
					row[dateCol] = ts.Format("2006-01-02")
				}
			}
			t.registerColumn(dateCol)
			added++
		}
		if !t.HasColumn(timeCol) {
			for _, row := range t.Rows {
				if ts, ok := row[col].(time.Time); ok {
					row[timeCol] = ts.Format("15:04:05")
				}
			}
			t.registerColumn(timeCol)
			added++
		}
	}

	if added > 0 {
		logger.Info("Added derived date/time columns",
			zap.String("table", t.Name),
			zap.Int("columns", added))
	}
}
