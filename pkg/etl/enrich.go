package etl

import (
	"go.uber.org/zap"
)

// LeftJoin copies columns from src onto dst by matching dst[dstKey] against
// src[srcKey]. Key values are coerced to a common text form before
// comparison. colMap maps source column names to the destination column
// names they are written as. Non-matching rows keep nulls for the new
// columns; when several source rows share a key, the first one wins.
func LeftJoin(dst, src *Table, dstKey, srcKey string, colMap map[string]string, logger *zap.Logger) {
	if len(colMap) == 0 {
		return
	}
	if !dst.HasColumn(dstKey) {
		logger.Warn("Join key missing from destination table",
			zap.String("table", dst.Name),
			zap.String("column", dstKey))
		return
	}
	if !src.HasColumn(srcKey) {
		logger.Warn("Join key missing from source table",
			zap.String("table", src.Name),
			zap.String("column", srcKey))
		return
	}

	index := make(map[string]Row, len(src.Rows))
	for _, row := range src.Rows {
		key := ScalarString(row[srcKey])
		if key == "" {
			continue
		}
		if _, exists := index[key]; !exists {
			index[key] = row
		}
	}

	matched := 0
	for _, row := range dst.Rows {
		srcRow, ok := index[ScalarString(row[dstKey])]
		if !ok {
			continue
		}
		matched++
		for srcCol, dstCol := range colMap {
			row[dstCol] = srcRow[srcCol]
		}
	}

	for _, dstCol := range colMap {
		dst.registerColumn(dstCol)
	}

	logger.Debug("Enriched table",
		zap.String("table", dst.Name),
		zap.String("from", src.Name),
		zap.Int("columns", len(colMap)),
		zap.Int("matched_rows", matched))
}
