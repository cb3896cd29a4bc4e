package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/steeplehq/steeple-engine/pkg/pco"
)

func personPage() *pco.ResourcePage {
	return &pco.ResourcePage{
		Data: []pco.Resource{
			{
				ID:   "101",
				Type: "Person",
				Attributes: map[string]any{
					"first_name": "Ada",
					"last_name":  "Lovelace",
				},
				Relationships: map[string]pco.Relationship{
					"primary_email": {Data: []pco.ResourceIdentifier{{ID: "9001", Type: "Email"}}},
				},
			},
			{
				ID:   "102",
				Type: "Person",
				Attributes: map[string]any{
					"first_name": "Grace",
					"last_name":  "Hopper",
				},
				Relationships: map[string]pco.Relationship{
					"primary_email": {Data: []pco.ResourceIdentifier{{ID: "9002", Type: "Email"}}},
				},
			},
		},
		Included: []pco.Resource{
			{ID: "9001", Type: "Email", Attributes: map[string]any{"address": "ada@example.com"}},
			{ID: "9002", Type: "Email", Attributes: map[string]any{"address": "grace@example.com"}},
		},
	}
}

func TestFlattenInlinesIncludedAttributes(t *testing.T) {
	rows := Flatten(personPage(), "/people/v2/people", zap.NewNop())
	require.Len(t, rows, 2)

	for i, want := range []struct{ id, emailID, email string }{
		{"101", "9001", "ada@example.com"},
		{"102", "9002", "grace@example.com"},
	} {
		assert.Equal(t, want.id, rows[i]["Person_id"])
		assert.Equal(t, want.emailID, rows[i]["primary_email_id"])
		assert.Equal(t, `["`+want.emailID+`"]`, rows[i]["primary_email_ids"])
		assert.Equal(t, want.email, rows[i]["Email_address"])
	}
}

func TestFlattenRelationshipColumns(t *testing.T) {
	page := &pco.ResourcePage{
		Data: []pco.Resource{{
			ID:   "7",
			Type: "CheckIn",
			Attributes: map[string]any{
				"kind": "Regular",
			},
			Relationships: map[string]pco.Relationship{
				"event_times": {Data: []pco.ResourceIdentifier{
					{ID: "31", Type: "EventTime"},
					{ID: "32", Type: "EventTime"},
				}},
				"person": {Data: []pco.ResourceIdentifier{{ID: "101", Type: "Person"}}},
			},
		}},
	}

	rows := Flatten(page, "/check-ins/v2/check_ins", zap.NewNop())
	require.Len(t, rows, 1)
	row := rows[0]

	// Multi-valued: only the plural column, encoding all ids in order.
	assert.Equal(t, `["31","32"]`, row["event_times_ids"])
	_, hasSingular := row["event_times_id"]
	assert.False(t, hasSingular)

	// Single-valued: both singular and plural columns.
	assert.Equal(t, "101", row["person_id"])
	assert.Equal(t, `["101"]`, row["person_ids"])

	ids := ParseLinkIDs(row["event_times_ids"])
	assert.Equal(t, []string{"31", "32"}, ids)
}

func TestFlattenEncodesNestedAttributes(t *testing.T) {
	page := &pco.ResourcePage{
		Data: []pco.Resource{{
			ID:   "1",
			Type: "Person",
			Attributes: map[string]any{
				"name":        "Ada",
				"preferences": map[string]any{"theme": "dark"},
				"tags":        []any{"member", "volunteer"},
			},
		}},
	}

	rows := Flatten(page, "/people/v2/people", zap.NewNop())
	require.Len(t, rows, 1)

	assert.Equal(t, "Ada", rows[0]["name"])
	assert.JSONEq(t, `{"theme":"dark"}`, rows[0]["preferences"].(string))
	assert.JSONEq(t, `["member","volunteer"]`, rows[0]["tags"].(string))
}

func TestFlattenSkipsMalformedItems(t *testing.T) {
	page := &pco.ResourcePage{
		Data: []pco.Resource{
			{ID: "", Type: "Person", Attributes: map[string]any{"name": "no id"}},
			{ID: "5", Type: "", Attributes: map[string]any{"name": "no type"}},
			{ID: "6", Type: "Person", Attributes: map[string]any{"name": "ok"}},
		},
	}

	rows := Flatten(page, "/people/v2/people", zap.NewNop())
	require.Len(t, rows, 1)
	assert.Equal(t, "6", rows[0]["Person_id"])
}

func TestFlattenIncludedCollisionLastWins(t *testing.T) {
	// Two included items of the same type inline into the same derived
	// columns; the one processed last overwrites the first. Regression
	// coverage for intentional (if surprising) behavior.
	page := &pco.ResourcePage{
		Data: []pco.Resource{{
			ID:   "1",
			Type: "Person",
			Relationships: map[string]pco.Relationship{
				"emails": {Data: []pco.ResourceIdentifier{
					{ID: "9001", Type: "Email"},
					{ID: "9002", Type: "Email"},
				}},
			},
		}},
		Included: []pco.Resource{
			{ID: "9001", Type: "Email", Attributes: map[string]any{"address": "first@example.com"}},
			{ID: "9002", Type: "Email", Attributes: map[string]any{"address": "second@example.com"}},
		},
	}

	rows := Flatten(page, "/people/v2/people", zap.NewNop())
	require.Len(t, rows, 1)
	assert.Equal(t, "second@example.com", rows[0]["Email_address"])
	assert.Equal(t, `["9001","9002"]`, rows[0]["emails_ids"])
}

func TestFlattenEmptyPage(t *testing.T) {
	assert.Empty(t, Flatten(&pco.ResourcePage{}, "/people/v2/people", zap.NewNop()))
	assert.Empty(t, Flatten(nil, "/people/v2/people", zap.NewNop()))
}
