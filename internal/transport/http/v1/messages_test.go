package v1

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRoot(t *testing.T) {
	_, e, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["message"] != "hello world" {
		t.Fatalf("unexpected response: %v", resp)
	}
}

func TestPostMessage(t *testing.T) {
	_, e, db := newTestHandler(t)

	rec := postJSON(t, e, "/message", map[string]string{"content": "hello"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	msg, err := db.GetMessage(t.Context(), resp.ID)
	if err != nil || msg == nil {
		t.Fatalf("message not stored: %v", err)
	}
	if len(msg.Events) != 1 || msg.Events[0].Role != "user" || msg.Events[0].Content.String() != "hello" {
		t.Fatalf("unexpected stored events: %+v", msg.Events)
	}

	rec = postJSON(t, e, "/message", map[string]string{"content": "again", "previous_id": resp.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestPostMessageValidation(t *testing.T) {
	_, e, _ := newTestHandler(t)

	rec := postJSON(t, e, "/message", map[string]string{"content": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
