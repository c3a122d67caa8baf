package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/pushkeep-io/pushkeep/internal/model"
)

// TableCreator is the subset of internal/tablestore.Store the admin API
// needs; a narrow interface keeps this package decoupled from gorm.
type TableCreator interface {
	Create(ctx context.Context, name, query string, columns []model.ColumnMeta) (model.TableId, error)
}

type TableHandler struct {
	store  TableCreator
	logger *zap.Logger
}

func NewTableHandler(store TableCreator, logger *zap.Logger) *TableHandler {
	return &TableHandler{store: store, logger: logger.Named("api.tables")}
}

type createTableRequest struct {
	Name    string             `json:"name"`
	Query   string             `json:"query"`
	Columns []model.ColumnMeta `json:"columns"`
}

// Create handles POST /v1/tables.
func (h *TableHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.Query == "" {
		errBadRequest(w, "name and query are required")
		return
	}

	id, err := h.store.Create(r.Context(), req.Name, req.Query, req.Columns)
	if err != nil {
		h.logger.Error("create table failed", zap.String("name", req.Name), zap.Error(err))
		errInternal(w)
		return
	}

	created(w, envelope{"table_id": int64(id)})
}
