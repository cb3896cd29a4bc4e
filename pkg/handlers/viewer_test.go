package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/steeplehq/steeple-engine/pkg/warehouse"
)

type stubTableReader struct {
	tables map[string][]map[string]any
}

func (s *stubTableReader) ListTables(ctx context.Context, schema string) ([]warehouse.TableInfo, error) {
	var infos []warehouse.TableInfo
	for name, rows := range s.tables {
		infos = append(infos, warehouse.TableInfo{Name: name, RowCount: int64(len(rows))})
	}
	return infos, nil
}

func (s *stubTableReader) TableRows(ctx context.Context, schema, table string, limit, offset int) ([]string, []map[string]any, int64, error) {
	rows, ok := s.tables[table]
	if !ok {
		return nil, nil, 0, fmt.Errorf("no such table")
	}
	return []string{"Person_id", "first_name"}, rows, int64(len(rows)), nil
}

func newViewerServer(t *testing.T) (*testEnv, *http.ServeMux) {
	t.Helper()
	env := newTestEnv(t)
	reader := &stubTableReader{tables: map[string][]map[string]any{
		"pc_people": {
			{"Person_id": int64(101), "first_name": "Ada"},
			{"Person_id": int64(102), "first_name": "Grace"},
		},
	}}
	handler := NewViewerHandler(reader, env.mw, zap.NewNop())
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return env, mux
}

func TestViewerListTables(t *testing.T) {
	env, mux := newViewerServer(t)
	_, _, token := env.seedAccount(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/viewer/tables", token))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tables []warehouse.TableInfo `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Tables, 1)
	assert.Equal(t, "pc_people", resp.Tables[0].Name)
	assert.Equal(t, int64(2), resp.Tables[0].RowCount)
}

func TestViewerTableRows(t *testing.T) {
	env, mux := newViewerServer(t)
	_, _, token := env.seedAccount(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/viewer/tables/pc_people?limit=50", token))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Columns []string         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
		Total   int64            `json:"total"`
		Limit   int              `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"Person_id", "first_name"}, resp.Columns)
	assert.Len(t, resp.Rows, 2)
	assert.Equal(t, int64(2), resp.Total)
	assert.Equal(t, 50, resp.Limit)
}

func TestViewerColumnFilter(t *testing.T) {
	env, mux := newViewerServer(t)
	_, _, token := env.seedAccount(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/viewer/tables/pc_people?columns=first_name", token))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Columns []string         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"first_name"}, resp.Columns)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, map[string]any{"first_name": "Ada"}, resp.Rows[0])
}

func TestViewerUnknownColumnIs400(t *testing.T) {
	env, mux := newViewerServer(t)
	_, _, token := env.seedAccount(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/viewer/tables/pc_people?columns=password", token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestViewerUnknownTableIs404(t *testing.T) {
	env, mux := newViewerServer(t)
	_, _, token := env.seedAccount(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/viewer/tables/secrets", token))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestViewerRequiresAuth(t *testing.T) {
	_, mux := newViewerServer(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/viewer/tables", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
