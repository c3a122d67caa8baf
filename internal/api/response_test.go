package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOkWritesDataEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	ok(rec, envelope{"foo": "bar"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	data, ok := body["data"].(map[string]any)
	if !ok || data["foo"] != "bar" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestErrNotFoundWritesErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	errNotFound(rec, "table missing")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "table missing") {
		t.Fatalf("body missing message: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "not_found") {
		t.Fatalf("body missing code: %s", rec.Body.String())
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","bogus":1}`))
	rec := httptest.NewRecorder()

	var dst struct {
		Name string `json:"name"`
	}
	if decodeJSON(rec, req, &dst) {
		t.Fatal("expected decodeJSON to reject an unknown field")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDecodeJSONAcceptsValidBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	rec := httptest.NewRecorder()

	var dst struct {
		Name string `json:"name"`
	}
	if !decodeJSON(rec, req, &dst) {
		t.Fatalf("expected decodeJSON to succeed, got status %d", rec.Code)
	}
	if dst.Name != "x" {
		t.Fatalf("Name = %q, want x", dst.Name)
	}
}
