package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/steeplehq/steeple-engine/pkg/auth"
	"github.com/steeplehq/steeple-engine/pkg/warehouse"
)

// TableReader is the slice of the warehouse loader used by the data viewer.
type TableReader interface {
	ListTables(ctx context.Context, schema string) ([]warehouse.TableInfo, error)
	TableRows(ctx context.Context, schema, table string, limit, offset int) ([]string, []map[string]any, int64, error)
}

// ViewerHandler exposes read-only access to a tenant's destination tables.
type ViewerHandler struct {
	reader TableReader
	mw     *auth.Middleware
	logger *zap.Logger
}

// NewViewerHandler creates the viewer handler.
func NewViewerHandler(reader TableReader, mw *auth.Middleware, logger *zap.Logger) *ViewerHandler {
	return &ViewerHandler{reader: reader, mw: mw, logger: logger}
}

// RegisterRoutes registers viewer routes on the given mux.
func (h *ViewerHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/viewer/tables", h.mw.RequireAuth(h.Tables))
	mux.HandleFunc("GET /api/viewer/tables/{table}", h.mw.RequireAuth(h.Rows))
}

// Tables handles GET /api/viewer/tables.
func (h *ViewerHandler) Tables(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.TenantFrom(r.Context())

	tables, err := h.reader.ListTables(r.Context(), tenant.SchemaName)
	if err != nil {
		h.logger.Error("Failed to list tables", zap.String("schema", tenant.SchemaName), zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to list tables")
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

// Rows handles GET /api/viewer/tables/{table}?limit=&offset=&columns=. The
// table name is validated against ListTables before any query touches it.
func (h *ViewerHandler) Rows(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.TenantFrom(r.Context())
	table := r.PathValue("table")

	known, err := h.reader.ListTables(r.Context(), tenant.SchemaName)
	if err != nil {
		h.logger.Error("Failed to list tables", zap.String("schema", tenant.SchemaName), zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to read table")
		return
	}
	found := false
	for _, info := range known {
		if info.Name == table {
			found = true
			break
		}
	}
	if !found {
		_ = ErrorResponse(w, http.StatusNotFound, "table_not_found", "no such table")
		return
	}

	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	columns, rows, total, err := h.reader.TableRows(r.Context(), tenant.SchemaName, table, limit, offset)
	if err != nil {
		h.logger.Error("Failed to read table",
			zap.String("schema", tenant.SchemaName),
			zap.String("table", table),
			zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to read table")
		return
	}

	if raw := r.URL.Query().Get("columns"); raw != "" {
		selected, err := selectColumns(columns, raw)
		if err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "unknown_column", err.Error())
			return
		}
		columns = selected
		for i, row := range rows {
			projected := make(map[string]any, len(selected))
			for _, col := range selected {
				projected[col] = row[col]
			}
			rows[i] = projected
		}
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"columns": columns,
		"rows":    rows,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// selectColumns resolves a comma-separated column filter against the table's
// actual columns.
func selectColumns(columns []string, raw string) ([]string, error) {
	known := make(map[string]bool, len(columns))
	for _, col := range columns {
		known[col] = true
	}
	var selected []string
	for _, part := range strings.Split(raw, ",") {
		col := strings.TrimSpace(part)
		if col == "" {
			continue
		}
		if !known[col] {
			return nil, fmt.Errorf("unknown column %q", col)
		}
		selected = append(selected, col)
	}
	if len(selected) == 0 {
		return columns, nil
	}
	return selected, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
