package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// HTTPClient is the part of *http.Client the API client uses.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// maxErrorBody caps how much of a failed response is read for the message.
const maxErrorBody = 4096

// GetJSON fetches url and decodes a JSON body into v. Non-2xx responses
// become errors carrying the server's ErrorBody message when there is one.
func GetJSON(ctx context.Context, c HTTPClient, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var eb ErrorBody
		if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
			return fmt.Errorf("GET %s: %s: %s", url, resp.Status, eb.Error)
		}
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("GET %s: decode: %w", url, err)
	}
	return nil
}

// MockHTTPClient returns queued responses and records requests.
type MockHTTPClient struct {
	mu        sync.Mutex
	Requests  []*http.Request
	responses []mockResponse
}

type mockResponse struct {
	status int
	body   string
	err    error
}

// NewMockHTTPClient creates an empty mock. Unqueued requests get 200 with an
// empty body.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse queues a canned response.
func (m *MockHTTPClient) AddResponse(status int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{status: status, body: body})
	return m
}

// AddErrorResponse queues a transport error.
func (m *MockHTTPClient) AddErrorResponse(err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{err: err})
	return m
}

// Do records req and returns the next queued response.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	r := mockResponse{status: http.StatusOK}
	if len(m.responses) > 0 {
		r = m.responses[0]
		m.responses = m.responses[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		StatusCode: r.status,
		Status:     fmt.Sprintf("%d %s", r.status, http.StatusText(r.status)),
		Body:       io.NopCloser(bytes.NewBufferString(r.body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}
