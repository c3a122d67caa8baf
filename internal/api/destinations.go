package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/pushkeep-io/pushkeep/internal/model"
)

// DestinationCreator is the subset of internal/deststore.Store the admin
// API needs.
type DestinationCreator interface {
	Create(ctx context.Context, name, destType string, credentials, config string, formats []model.ResultType) (model.DestinationId, error)
}

type DestinationHandler struct {
	store  DestinationCreator
	logger *zap.Logger
}

func NewDestinationHandler(store DestinationCreator, logger *zap.Logger) *DestinationHandler {
	return &DestinationHandler{store: store, logger: logger.Named("api.destinations")}
}

type createDestinationRequest struct {
	Name             string              `json:"name"`
	Type             string              `json:"type"`
	Credentials      string              `json:"credentials,omitempty"`
	Config           string              `json:"config,omitempty"`
	SupportedFormats []model.ResultType `json:"supported_formats"`
}

// Create handles POST /v1/destinations.
func (h *DestinationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDestinationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.Type == "" || len(req.SupportedFormats) == 0 {
		errBadRequest(w, "name, type and at least one supported format are required")
		return
	}

	id, err := h.store.Create(r.Context(), req.Name, req.Type, req.Credentials, req.Config, req.SupportedFormats)
	if err != nil {
		h.logger.Error("create destination failed", zap.String("name", req.Name), zap.Error(err))
		errInternal(w)
		return
	}

	created(w, envelope{"destination_id": int64(id)})
}
