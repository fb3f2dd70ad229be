package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGetJSON(t *testing.T) {
	t.Parallel()

	m := NewMockHTTPClient().AddResponse(http.StatusOK, `{"state":"accumulating","progress":0.4}`)
	var got struct {
		State    string  `json:"state"`
		Progress float64 `json:"progress"`
	}
	if err := GetJSON(context.Background(), m, "http://wake.local/api/status", &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got.State != "accumulating" || got.Progress != 0.4 {
		t.Errorf("got %+v", got)
	}
	if len(m.Requests) != 1 || m.Requests[0].Header.Get("Accept") != "application/json" {
		t.Errorf("unexpected requests: %+v", m.Requests)
	}
}

func TestGetJSON_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		client  *MockHTTPClient
		wantMsg string
	}{
		{"error body", NewMockHTTPClient().AddResponse(http.StatusNotFound, `{"error":"no such session"}`), "no such session"},
		{"plain failure", NewMockHTTPClient().AddResponse(http.StatusBadGateway, "upstream"), "502 Bad Gateway"},
		{"bad json", NewMockHTTPClient().AddResponse(http.StatusOK, "{"), "decode"},
		{"transport", NewMockHTTPClient().AddErrorResponse(errors.New("connection refused")), "connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v map[string]interface{}
			err := GetJSON(context.Background(), tt.client, "http://wake.local/api/x", &v)
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %v, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestGetJSON_RealClient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"path": r.URL.Path})
	}))
	defer srv.Close()

	var got map[string]string
	if err := GetJSON(context.Background(), srv.Client(), srv.URL+"/api/sessions", &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got["path"] != "/api/sessions" {
		t.Errorf("path = %q", got["path"])
	}
}
