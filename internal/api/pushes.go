package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pushkeep-io/pushkeep/internal/controller"
	"github.com/pushkeep-io/pushkeep/internal/model"
	"github.com/pushkeep-io/pushkeep/internal/pusherr"
)

// PushHandler adapts HTTP requests directly onto
// internal/controller.Controller calls. It holds no lifecycle state of
// its own.
type PushHandler struct {
	controller *controller.Controller
	logger     *zap.Logger
}

func NewPushHandler(c *controller.Controller, logger *zap.Logger) *PushHandler {
	return &PushHandler{controller: c, logger: logger.Named("api.pushes")}
}

type startRequest struct {
	TableID         int64             `json:"table_id"`
	Columns         []model.ColumnMeta `json:"columns"`
	DestinationPath string            `json:"destination_path"`
	Format          string            `json:"format"`
	Limit           *uint64           `json:"limit,omitempty"`
}

type pushRecordView struct {
	Status    string  `json:"status"`
	StartedAt string  `json:"started_at"`
	Since     string  `json:"since"`
	Until     *string `json:"until,omitempty"`
	Cause     *string `json:"cause,omitempty"`
}

// Start handles POST /v1/destinations/{destId}/pushes.
func (h *PushHandler) Start(w http.ResponseWriter, r *http.Request) {
	destId, ok := parseDestId(w, r)
	if !ok {
		return
	}

	var req startRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cond := h.controller.Start(
		r.Context(),
		model.TableId(req.TableID),
		req.Columns,
		destId,
		model.ResourcePath(req.DestinationPath),
		model.ResultType(req.Format),
		req.Limit,
	)
	if !cond.OK() {
		writePushError(w, cond.Err())
		return
	}

	created(w, envelope{"table_id": req.TableID, "destination_id": int64(destId)})
}

type startManyRequest struct {
	Entries map[string]startRequest `json:"entries"` // keyed by table id, as a string (JSON object keys)
}

// StartMany handles POST /v1/destinations/{destId}/pushes/batch.
func (h *PushHandler) StartMany(w http.ResponseWriter, r *http.Request) {
	destId, found := parseDestId(w, r)
	if !found {
		return
	}

	var req startManyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Entries) == 0 {
		errBadRequest(w, "entries must be non-empty")
		return
	}

	entries := make(map[model.TableId]model.PushSpec, len(req.Entries))
	for key, e := range req.Entries {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			errBadRequest(w, "invalid table id key: "+key)
			return
		}
		entries[model.TableId(id)] = model.PushSpec{
			Columns:         e.Columns,
			DestinationPath: model.ResourcePath(e.DestinationPath),
			Format:          model.ResultType(e.Format),
			Limit:           e.Limit,
		}
	}

	failures := h.controller.StartMany(r.Context(), destId, entries)
	ok(w, envelope{"failures": failureMap(failures)})
}

// Cancel handles DELETE /v1/destinations/{destId}/pushes/{tableId}.
func (h *PushHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	destId, ok1 := parseDestId(w, r)
	if !ok1 {
		return
	}
	tableId, ok2 := parseTableId(w, r)
	if !ok2 {
		return
	}

	cond := h.controller.Cancel(r.Context(), tableId, destId)
	if !cond.OK() {
		writePushError(w, cond.Err())
		return
	}
	noContent(w)
}

type cancelManyRequest struct {
	TableIDs []int64 `json:"table_ids"`
}

// CancelMany handles POST /v1/destinations/{destId}/pushes/cancel.
func (h *PushHandler) CancelMany(w http.ResponseWriter, r *http.Request) {
	destId, ok := parseDestId(w, r)
	if !ok {
		return
	}

	var req cancelManyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.TableIDs) == 0 {
		errBadRequest(w, "table_ids must be non-empty")
		return
	}

	ids := make([]model.TableId, len(req.TableIDs))
	for i, id := range req.TableIDs {
		ids[i] = model.TableId(id)
	}

	failures := h.controller.CancelMany(r.Context(), destId, ids)
	writeJSON(w, http.StatusOK, envelope{"data": envelope{"failures": failureMap(failures)}})
}

// CancelAll handles POST /v1/pushes/cancel-all.
func (h *PushHandler) CancelAll(w http.ResponseWriter, r *http.Request) {
	h.controller.CancelAll()
	noContent(w)
}

// Status handles GET /v1/destinations/{destId}/pushes.
func (h *PushHandler) Status(w http.ResponseWriter, r *http.Request) {
	destId, ok := parseDestId(w, r)
	if !ok {
		return
	}

	records, pErr := h.controller.DestinationStatus(r.Context(), destId)
	if pErr != nil {
		writePushError(w, pErr)
		return
	}

	out := make(map[string]pushRecordView, len(records))
	for tableId, rec := range records {
		out[strconv.FormatInt(int64(tableId), 10)] = recordView(rec)
	}
	writeJSON(w, http.StatusOK, envelope{"data": out})
}

func recordView(rec model.PushRecord) pushRecordView {
	v := pushRecordView{
		Status:    rec.Status.Kind.String(),
		StartedAt: rec.StartedAt.UTC().Format(rfc3339Milli),
		Since:     rec.Status.Since.UTC().Format(rfc3339Milli),
	}
	if rec.Status.Terminal() {
		until := rec.Status.Until.UTC().Format(rfc3339Milli)
		v.Until = &until
	}
	if rec.Status.Cause != nil {
		v.Cause = &rec.Status.Cause.Message
	}
	return v
}

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"

func failureMap(failures map[model.TableId]*pusherr.PushError) map[string]string {
	out := make(map[string]string, len(failures))
	for tableId, err := range failures {
		out[strconv.FormatInt(int64(tableId), 10)] = err.Error()
	}
	return out
}

func writePushError(w http.ResponseWriter, err *pusherr.PushError) {
	switch err.Kind {
	case pusherr.KindDestinationNotFound, pusherr.KindTableNotFound:
		errNotFound(w, err.Error())
	case pusherr.KindFormatNotSupported:
		errUnprocessable(w, err.Error())
	case pusherr.KindPushAlreadyRunning:
		errConflict(w, err.Error())
	default:
		errInternal(w)
	}
}

func parseDestId(w http.ResponseWriter, r *http.Request) (model.DestinationId, bool) {
	raw := chi.URLParam(r, "destId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		errBadRequest(w, "invalid destination id")
		return 0, false
	}
	return model.DestinationId(id), true
}

func parseTableId(w http.ResponseWriter, r *http.Request) (model.TableId, bool) {
	raw := chi.URLParam(r, "tableId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		errBadRequest(w, "invalid table id")
		return 0, false
	}
	return model.TableId(id), true
}
