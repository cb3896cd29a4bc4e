package etl

import (
	"fmt"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/steeplehq/steeple-engine/pkg/pco"
)

// Flatten converts one page of a JSON:API response into flat rows.
//
// Column derivation:
//   - the primary key column is named {type}_id; own attributes keep their
//     names, with nested values JSON-string encoded;
//   - a relationship with exactly one linked id yields {relation}_id, and any
//     non-empty relationship yields {relation}_ids holding the JSON-encoded
//     id list (even when there is only one id);
//   - every linked id resolvable via the included lookup inlines the included
//     resource's attributes as {includedType}_{attr}. When several included
//     items map to the same derived column, the last processed wins.
//
// Malformed items (missing id or type) are skipped. A panic while processing
// the page is logged and yields an empty result, not a sync failure.
func Flatten(page *pco.ResourcePage, endpoint string, logger *zap.Logger) (rows []Row) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Error processing response page",
				zap.String("endpoint", endpoint),
				zap.Any("panic", r))
			rows = nil
		}
	}()

	if page == nil {
		return nil
	}

	includedLookup := make(map[string]pco.Resource, len(page.Included))
	for _, item := range page.Included {
		if item.ID != "" && item.Type != "" {
			includedLookup[item.ID+"_"+item.Type] = item
		}
	}

	for _, item := range page.Data {
		if item.ID == "" || item.Type == "" {
			logger.Debug("Skipping malformed data item", zap.String("endpoint", endpoint))
			continue
		}

		row := Row{item.Type + "_id": item.ID}
		for name, value := range item.Attributes {
			row[name] = encodeIfNested(value, logger)
		}

		for relName, rel := range item.Relationships {
			var relIDs []string
			for _, ref := range rel.Data {
				if ref.ID == "" {
					continue
				}
				relIDs = append(relIDs, ref.ID)

				included, ok := includedLookup[ref.ID+"_"+ref.Type]
				if !ok {
					continue
				}
				for attrName, attrValue := range included.Attributes {
					row[ref.Type+"_"+attrName] = encodeIfNested(attrValue, logger)
				}
			}

			if len(relIDs) == 0 {
				continue
			}
			if len(relIDs) == 1 {
				row[relName+"_id"] = relIDs[0]
			}
			row[relName+"_ids"] = encodeStringList(relIDs)
		}

		rows = append(rows, row)
	}

	return rows
}

// encodeIfNested JSON-encodes maps and slices so every stored value is a
// scalar. Unencodable values become null.
func encodeIfNested(value any, logger *zap.Logger) any {
	switch value.(type) {
	case map[string]any, []any:
		encoded, err := json.Marshal(value)
		if err != nil {
			logger.Warn("Could not encode nested value", zap.Error(err))
			return nil
		}
		return string(encoded)
	default:
		return value
	}
}

// encodeStringList returns the canonical JSON encoding of an id list.
func encodeStringList(ids []string) string {
	encoded, err := json.Marshal(ids)
	if err != nil {
		// A []string cannot fail to marshal; keep a readable fallback anyway.
		return fmt.Sprintf("%v", ids)
	}
	return string(encoded)
}
