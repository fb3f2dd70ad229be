// Package testutil holds HTTP test helpers shared by handler tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// DecodeJSON decodes body into v, failing the test on error.
func DecodeJSON(t testing.TB, body io.Reader, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

// NewTestRequest creates a request that looks like it came from loopback, so
// debug routes accept it too.
func NewTestRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
