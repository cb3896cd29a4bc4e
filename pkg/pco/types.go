package pco

import (
	json "github.com/goccy/go-json"
)

// ResourcePage is one page of a JSON:API response: primary data items plus
// cross-referenced included resources, pagination links, and counts.
type ResourcePage struct {
	Data     []Resource `json:"data"`
	Included []Resource `json:"included"`
	Links    PageLinks  `json:"links"`
	Meta     PageMeta   `json:"meta"`
}

// PageLinks carries pagination links. Next is empty on the last page.
type PageLinks struct {
	Self string `json:"self"`
	Next string `json:"next"`
}

// PageMeta carries response counts.
type PageMeta struct {
	TotalCount int `json:"total_count"`
	Count      int `json:"count"`
}

// Resource is a single JSON:API resource object.
type Resource struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"`
	Attributes    map[string]any          `json:"attributes"`
	Relationships map[string]Relationship `json:"relationships"`
}

// Relationship holds the typed references of one relation. The wire format
// is either a single {id,type} object, an array of them, or null.
type Relationship struct {
	Data []ResourceIdentifier
}

// ResourceIdentifier addresses a resource by (id, type).
type ResourceIdentifier struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// UnmarshalJSON accepts the three JSON:API relationship shapes and
// normalizes them to a list of identifiers.
func (r *Relationship) UnmarshalJSON(b []byte) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return err
	}

	r.Data = nil
	raw := envelope.Data
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	if raw[0] == '[' {
		return json.Unmarshal(raw, &r.Data)
	}

	var single ResourceIdentifier
	if err := json.Unmarshal(raw, &single); err != nil {
		return err
	}
	r.Data = []ResourceIdentifier{single}
	return nil
}
