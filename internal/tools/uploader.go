// File: internal/tools/uploader.go
package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/loom/api/schemas"
	"github.com/xkilldash9x/loom/internal/config"
)

// HTTPUploader stores captured assets by PUTting them to a blob endpoint and
// returns the public URL they are served from.
type HTTPUploader struct {
	cfg        config.UploadConfig
	httpClient *http.Client
	log        *zap.Logger
}

func NewHTTPUploader(cfg config.UploadConfig, logger *zap.Logger) *HTTPUploader {
	return &HTTPUploader{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logger.Named("tools.uploader"),
	}
}

func (u *HTTPUploader) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	target := strings.TrimSuffix(u.cfg.Endpoint, "/") + "/" + strings.TrimPrefix(name, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("upload of %s rejected with status %d: %s", name, resp.StatusCode, string(body))
	}

	publicBase := u.cfg.PublicBaseURL
	if publicBase == "" {
		publicBase = u.cfg.Endpoint
	}
	assetURL := strings.TrimSuffix(publicBase, "/") + "/" + strings.TrimPrefix(name, "/")

	u.log.Debug("Uploaded asset", zap.String("name", name), zap.Int("bytes", len(data)))
	return assetURL, nil
}

var _ schemas.Uploader = (*HTTPUploader)(nil)
