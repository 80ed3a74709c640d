// File: internal/relay/sse_test.go
package relay

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEWriter_FrameFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, err := NewSSEWriter(rec)
	require.NoError(t, err)

	sse.Start()
	sse.Fragment("token")
	sse.Directive([]byte(`{"type":"terminal","role":"ai","command":"pwd","isachieved":false}`))
	sse.Error("something broke")
	sse.Done()

	expected := "data: stream_start\n\n" +
		"data: token\n\n" +
		"data: {\"type\":\"terminal\",\"role\":\"ai\",\"command\":\"pwd\",\"isachieved\":false}\n\n" +
		"data: Error: something broke\n\n" +
		"data: [DONE]\n\n"
	assert.Equal(t, expected, rec.Body.String())
}

func TestSSEWriter_SetsStreamingHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	_, err := NewSSEWriter(rec)
	require.NoError(t, err)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
}

func TestSSEWriter_RequiresFlusher(t *testing.T) {
	// http.ResponseWriter without Flusher support is rejected up front.
	var w nonFlushingResponseWriter
	_, err := NewSSEWriter(&w)
	require.Error(t, err)
}

type nonFlushingResponseWriter struct {
	header int
}

func (w *nonFlushingResponseWriter) Header() http.Header        { return http.Header{} }
func (w *nonFlushingResponseWriter) Write(b []byte) (int, error) { return len(b), nil }
func (w *nonFlushingResponseWriter) WriteHeader(statusCode int)  { w.header = statusCode }
