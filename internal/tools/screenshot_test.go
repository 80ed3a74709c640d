// File: internal/tools/screenshot_test.go
package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "already absolute", in: "https://example.com/page", want: "https://example.com/page"},
		{name: "missing scheme gets https", in: "example.com", want: "https://example.com"},
		{name: "whitespace trimmed", in: "  example.com  ", want: "https://example.com"},
		{name: "empty is rejected", in: "", wantErr: true},
		{name: "file scheme is rejected", in: "file:///etc/passwd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeURL(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "My Site", extractTitle(`<html><head><title>My Site</title></head><body></body></html>`))
	assert.Equal(t, "", extractTitle(`<html><head></head><body>no title</body></html>`))
	// Malformed markup still yields a best-effort parse.
	assert.Equal(t, "Broken", extractTitle(`<title>Broken</title><div><p>`))
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "example.com", hostOf("https://example.com/some/page"))
	assert.Equal(t, "localhost-8080", hostOf("http://localhost:8080"))
	assert.Equal(t, "page", hostOf("not a url"))
}
