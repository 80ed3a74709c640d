// File: internal/relay/sse.go

// Package relay exposes the orchestrator over a server-sent-event stream:
// one POST starts a run, and every fragment and directive is flushed to the
// client in production order until the closing marker.
package relay

import (
	"fmt"
	"net/http"
	"sync"
)

// Stream frame markers.
const (
	frameStreamStart = "stream_start"
	frameDone        = "[DONE]"
)

// SSEWriter frames run output as server-sent events. Every frame is flushed
// immediately; nothing buffers until the end of the run. Writes are
// serialized so the orchestrator and relay can emit concurrently.
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares the response for event streaming. The underlying
// writer must support flushing; buffering proxies in between would defeat
// live output.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

func (s *SSEWriter) writeFrame(payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "data: %s\n\n", payload)
	s.flusher.Flush()
}

// Start opens the stream.
func (s *SSEWriter) Start() {
	s.writeFrame(frameStreamStart)
}

// Fragment forwards one raw model token chunk.
func (s *SSEWriter) Fragment(text string) {
	s.writeFrame(text)
}

// Directive forwards one decoded directive's wire JSON.
func (s *SSEWriter) Directive(payload []byte) {
	s.writeFrame(string(payload))
}

// Error emits the single failure frame sent before the stream closes.
func (s *SSEWriter) Error(message string) {
	s.writeFrame("Error: " + message)
}

// Done closes the stream.
func (s *SSEWriter) Done() {
	s.writeFrame(frameDone)
}
