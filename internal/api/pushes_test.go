package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pushkeep-io/pushkeep/internal/model"
	"github.com/pushkeep-io/pushkeep/internal/pusherr"
)

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestParseDestIdValidAndInvalid(t *testing.T) {
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "destId", "42")
	rec := httptest.NewRecorder()
	id, ok := parseDestId(rec, req)
	if !ok || id != 42 {
		t.Fatalf("parseDestId = (%v, %v), want (42, true)", id, ok)
	}

	req = withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "destId", "not-a-number")
	rec = httptest.NewRecorder()
	if _, ok := parseDestId(rec, req); ok {
		t.Fatal("expected parseDestId to reject a non-numeric id")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestParseTableIdValidAndInvalid(t *testing.T) {
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "tableId", "7")
	rec := httptest.NewRecorder()
	id, ok := parseTableId(rec, req)
	if !ok || id != 7 {
		t.Fatalf("parseTableId = (%v, %v), want (7, true)", id, ok)
	}
}

func TestWritePushErrorMapsKindsToStatusCodes(t *testing.T) {
	cases := []struct {
		err  *pusherr.PushError
		want int
	}{
		{pusherr.NewTableNotFound(1), http.StatusNotFound},
		{pusherr.NewDestinationNotFound(1), http.StatusNotFound},
		{pusherr.NewFormatNotSupported(model.DestinationTypeId{Name: "local"}, "xml"), http.StatusUnprocessableEntity},
		{pusherr.NewPushAlreadyRunning(1, 2), http.StatusConflict},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		writePushError(rec, c.err)
		if rec.Code != c.want {
			t.Errorf("kind %v: status = %d, want %d", c.err.Kind, rec.Code, c.want)
		}
	}
}

func TestFailureMapFormatsKeysAsDecimalStrings(t *testing.T) {
	failures := map[model.TableId]*pusherr.PushError{
		5: pusherr.NewTableNotFound(5),
	}
	out := failureMap(failures)
	if _, ok := out["5"]; !ok {
		t.Fatalf("expected key \"5\" in %v", out)
	}
}

func TestRecordViewOmitsUntilAndCauseForRunning(t *testing.T) {
	rec := model.PushRecord{
		Status: model.RunningStatus(time.Now()),
	}
	v := recordView(rec)
	if v.Until != nil {
		t.Fatalf("expected no Until for a running status, got %v", *v.Until)
	}
	if v.Cause != nil {
		t.Fatalf("expected no Cause for a running status, got %v", *v.Cause)
	}
}
