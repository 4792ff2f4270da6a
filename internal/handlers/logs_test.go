package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cauldronwatch"
	"cauldronwatch/internal/service"
)

func TestLogsHandler_ListAndValidation(t *testing.T) {
	auth := &mockAuth{parseID: 99}
	now := time.Now().UTC().Truncate(time.Second)
	events := []cauldronwatch.SyncEvent{
		{EventID: "e1", OccurredAt: now, Type: "BOOTSTRAP", Description: "startup sequence completed"},
		{EventID: "e2", OccurredAt: now.Add(1 * time.Second), Type: "DRAIN", Description: "cauldron c1 drained"},
	}
	logs := &mockEventLog{resp: events}
	s := &service.Service{
		Authorization: auth,
		EventLog:      logs,
	}
	r := newTestRouter(s, newTestStore())

	// Missing/invalid 'from' → 400
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/logs/?from=notatime", nil)
	for k, vv := range authHeader("valid") {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 invalid 'from', got %d", w.Code)
	}

	// Valid range and type (lowercase type should be normalized to upper in service call)
	w = httptest.NewRecorder()
	q := "/api/v1/logs/?from=" + now.Format(time.RFC3339) + "&to=" + now.Add(2*time.Second).Format(time.RFC3339) + "&type=drain"
	req = httptest.NewRequest(http.MethodGet, q, nil)
	for k, vv := range authHeader("valid") {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("logs status=%d, body=%s", w.Code, w.Body.String())
	}
	var out struct {
		Count  int                       `json:"count"`
		Events []cauldronwatch.SyncEvent `json:"events"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Count != 2 || len(out.Events) != 2 {
		t.Fatalf("unexpected response: %+v", out)
	}
	if logs.lastType != "DRAIN" {
		t.Fatalf("expected lastType DRAIN, got %q", logs.lastType)
	}

	// Date-only 'to' becomes end-of-day inclusive
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/logs/?to=2026-08-23", nil)
	for k, vv := range authHeader("valid") {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("logs status=%d, body=%s", w.Code, w.Body.String())
	}
	wantTo := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC).Add(24*time.Hour - time.Nanosecond)
	if !logs.lastTo.Equal(wantTo) {
		t.Fatalf("date-only 'to': got %v, want %v", logs.lastTo, wantTo)
	}
}
