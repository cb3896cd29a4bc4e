package pco

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"
)

// KnownServices is the fixed catalog of Planning Center products probed by
// discovery. The upstream API offers no capability document, so this list
// (and the per-service resource lists below) is maintained by hand.
var KnownServices = []string{
	"people",
	"check-ins",
	"services",
	"groups",
	"giving",
	"calendar",
	"resources",
}

var serviceResources = map[string][]string{
	"people":    {"people", "households", "emails", "phone_numbers", "addresses"},
	"check-ins": {"check_ins", "event_times", "events", "locations"},
	"services":  {"plans", "series", "songs", "arrangements"},
	"groups":    {"groups", "group_types", "memberships"},
	"giving":    {"donations", "funds", "batches"},
	"calendar":  {"events", "event_times"},
	"resources": {"resources", "resource_requests"},
}

// ResourceInfo describes one discoverable resource.
type ResourceInfo struct {
	Name       string `json:"name"`
	Endpoint   string `json:"endpoint"`
	Service    string `json:"service"`
	TotalCount int    `json:"total_count"`
	Available  bool   `json:"available"`
}

// ResourceSchema describes the shape of a resource sampled from live data.
type ResourceSchema struct {
	Attributes     []string          `json:"attributes"`
	AttributeTypes map[string]string `json:"attribute_types"`
	Relationships  []string          `json:"relationships"`
	IncludedTypes  []string          `json:"included_types"`
	Type           string            `json:"type"`
}

// MetadataDiscovery probes which services and resources a tenant's
// credentials can reach and samples their shape. It is read-only and has no
// effect on the sync path.
type MetadataDiscovery struct {
	client *Client
	logger *zap.Logger
}

// NewMetadataDiscovery creates a discovery helper on top of a client.
func NewMetadataDiscovery(client *Client, logger *zap.Logger) *MetadataDiscovery {
	return &MetadataDiscovery{client: client, logger: logger.Named("pco-discovery")}
}

// DiscoverServices returns the known services that respond to a probe.
func (d *MetadataDiscovery) DiscoverServices(ctx context.Context) []string {
	var available []string
	for _, service := range KnownServices {
		if _, err := d.client.Get(ctx, "/"+service+"/v2", Params{"per_page": "1"}, nil); err != nil {
			d.logger.Debug("Service not available", zap.String("service", service), zap.Error(err))
			continue
		}
		available = append(available, service)
	}
	return available
}

// DiscoverResources probes the known resources of one service. A resource is
// available iff its probe request succeeds.
func (d *MetadataDiscovery) DiscoverResources(ctx context.Context, service string) []ResourceInfo {
	var resources []ResourceInfo
	for _, resource := range serviceResources[service] {
		endpoint := "/" + service + "/v2/" + resource
		page, err := d.client.Get(ctx, endpoint, Params{"per_page": "1"}, nil)
		if err != nil {
			d.logger.Debug("Resource not available",
				zap.String("service", service),
				zap.String("resource", resource),
				zap.Error(err))
			continue
		}
		resources = append(resources, ResourceInfo{
			Name:       resource,
			Endpoint:   endpoint,
			Service:    service,
			TotalCount: page.Meta.TotalCount,
			Available:  true,
		})
	}
	return resources
}

// DiscoverSchema samples one item from an endpoint and reports its attribute
// names, inferred attribute types, relationship names, and included types.
func (d *MetadataDiscovery) DiscoverSchema(ctx context.Context, endpoint string, include []string) (*ResourceSchema, error) {
	page, err := d.client.Get(ctx, endpoint, Params{"per_page": "1"}, include)
	if err != nil {
		return nil, err
	}

	schema := &ResourceSchema{
		AttributeTypes: map[string]string{},
	}
	if len(page.Data) == 0 {
		return schema, nil
	}

	sample := page.Data[0]
	schema.Type = sample.Type
	for name, value := range sample.Attributes {
		schema.Attributes = append(schema.Attributes, name)
		schema.AttributeTypes[name] = inferAttributeType(name, value)
	}
	for name := range sample.Relationships {
		schema.Relationships = append(schema.Relationships, name)
	}

	seen := map[string]bool{}
	for _, item := range page.Included {
		if item.Type != "" && !seen[item.Type] {
			seen[item.Type] = true
			schema.IncludedTypes = append(schema.IncludedTypes, item.Type)
		}
	}

	return schema, nil
}

// AvailableIncludes returns the relationship names of a sample item, which
// are the values accepted by the endpoint's include parameter.
func (d *MetadataDiscovery) AvailableIncludes(ctx context.Context, endpoint string) ([]string, error) {
	page, err := d.client.Get(ctx, endpoint, Params{"per_page": "1"}, nil)
	if err != nil {
		return nil, err
	}
	if len(page.Data) == 0 {
		return nil, nil
	}

	var includes []string
	for name := range page.Data[0].Relationships {
		includes = append(includes, name)
	}
	return includes, nil
}

// inferAttributeType maps a sampled attribute value to a coarse type name.
// String values whose key mentions at/date/time are reported as datetime.
func inferAttributeType(key string, value any) string {
	switch v := value.(type) {
	case nil:
		return "string"
	case bool:
		return "boolean"
	case float64:
		// JSON numbers decode as float64; report whole values as integers.
		if v == math.Trunc(v) {
			return "integer"
		}
		return "float"
	case string:
		lower := strings.ToLower(key)
		if strings.Contains(lower, "at") || strings.Contains(lower, "date") || strings.Contains(lower, "time") {
			return "datetime"
		}
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "string"
	}
}
