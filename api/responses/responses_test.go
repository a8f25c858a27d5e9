package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	pkgerrors "github.com/javery-app/javery-backend/pkg/errors"
	"github.com/javery-app/javery-backend/pkg/logger"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorPayload {
	t.Helper()
	var body struct {
		Error ErrorPayload `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestWriteSuccessEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteCreated(w, map[string]string{"orderId": "o1"})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json got %q", ct)
	}
	var envelope map[string]any
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	want := map[string]any{"data": map[string]any{"orderId": "o1"}}
	if !reflect.DeepEqual(envelope, want) {
		t.Fatalf("unexpected envelope: %v", envelope)
	}
}

func TestWriteErrorStateConflictCarriesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot move from pending to completed").
		WithDetails(map[string]string{"from": "pending", "to": "completed"})
	WriteError(context.Background(), logger.Nop(), w, err)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", w.Code)
	}
	apiErr := decodeError(t, w)
	if apiErr.Code != "STATE_CONFLICT" || apiErr.Message != "order cannot move from pending to completed" {
		t.Fatalf("unexpected error payload: %+v", apiErr)
	}
	want := map[string]any{"from": "pending", "to": "completed"}
	if !reflect.DeepEqual(apiErr.Details, want) {
		t.Fatalf("unexpected details: %v", apiErr.Details)
	}
}

func TestWriteErrorHidesInternalMessages(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("dial tcp 10.0.0.1: refused"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", w.Code)
	}
	apiErr := decodeError(t, w)
	if apiErr.Code != "INTERNAL_ERROR" || apiErr.Message != "internal server error" {
		t.Fatalf("internal message leaked: %+v", apiErr)
	}
	if apiErr.Details != nil {
		t.Fatalf("expected no details got %v", apiErr.Details)
	}
}

func TestWriteErrorNotFoundDropsDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeNotFound, "order not found").WithDetails(map[string]string{"id": "o1"})
	WriteError(context.Background(), nil, w, err)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}
	apiErr := decodeError(t, w)
	if apiErr.Message != "order not found" {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
	if apiErr.Details != nil {
		t.Fatalf("expected details dropped got %v", apiErr.Details)
	}
}
