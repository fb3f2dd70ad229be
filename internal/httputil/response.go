// Package httputil holds the JSON and server-sent-event helpers shared by the
// HTTP API and its command-line client.
package httputil

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode json response: %v", err)
	}
}

// WriteJSONError writes an ErrorBody with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg})
}

// BadRequest writes a 400 response.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

// NotFound writes a 404 response.
func NotFound(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusNotFound, msg)
}

// InternalServerError writes a 500 response.
func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusInternalServerError, msg)
}

// EventStream writes server-sent events to a single client.
type EventStream struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewEventStream sets the SSE headers and sends an initial comment so the
// client sees the connection open. It fails if w cannot flush.
func NewEventStream(w http.ResponseWriter) (*EventStream, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // disable nginx buffering

	if _, err := w.Write([]byte(": ping\n\n")); err != nil {
		return nil, err
	}
	f.Flush()
	return &EventStream{w: w, f: f}, nil
}

// Send writes one named event with a JSON payload.
func (s *EventStream) Send(event string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}
