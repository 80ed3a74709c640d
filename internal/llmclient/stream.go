// File: internal/llmclient/stream.go
package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/loom/api/schemas"
)

const (
	// streamChannelBuffer absorbs bursts from the API without blocking the
	// reader goroutine on a slow consumer.
	streamChannelBuffer = 100

	streamScannerInitialBuffer = 64 * 1024
	streamScannerMaxBuffer     = 1024 * 1024
)

// GenerateStream sends the request to the streaming endpoint and relays text
// fragments as they arrive. Both returned channels are closed when the stream
// ends; a clean finish closes the error channel without a send. Transient
// failures are retried only before the first fragment has been delivered —
// once output has flowed, a mid-stream failure surfaces on the error channel.
func (c *GeminiClient) GenerateStream(ctx context.Context, req schemas.GenerationRequest) (<-chan schemas.Fragment, <-chan error) {
	fragments := make(chan schemas.Fragment, streamChannelBuffer)
	errCh := make(chan error, 1)

	payload := c.buildRequestPayload(req, nil)
	body, err := json.Marshal(payload)
	if err != nil {
		errCh <- fmt.Errorf("failed to marshal request payload: %w", err)
		close(fragments)
		close(errCh)
		return fragments, errCh
	}

	go func() {
		defer close(fragments)
		defer close(errCh)

		delivered := false
		operation := func() error {
			sent, err := c.streamOnce(ctx, body, fragments)
			delivered = delivered || sent
			if err != nil && delivered {
				// Output already reached the consumer; replaying the request
				// would duplicate it.
				return backoff.Permanent(err)
			}
			return err
		}

		if err := backoff.Retry(operation, c.newBackOff(ctx)); err != nil {
			select {
			case errCh <- err:
			case <-ctx.Done():
			}
		}
	}()

	return fragments, errCh
}

// streamOnce performs one streaming round trip, forwarding each chunk's text.
// It reports whether any fragment reached the consumer.
func (c *GeminiClient) streamOnce(ctx context.Context, body []byte, fragments chan<- schemas.Fragment) (bool, error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return false, backoff.Permanent(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.streamURL(), bytes.NewReader(body))
	if err != nil {
		return false, backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("Network error during streaming request", zap.Error(err))
		return false, fmt.Errorf("failed to execute streaming request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return false, c.handleAPIError(resp.StatusCode, respBody)
	}

	delivered := false
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, streamScannerInitialBuffer), streamScannerMaxBuffer)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk GeminiResponsePayload
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Warn("Skipping malformed stream chunk", zap.Error(err))
			continue
		}
		if len(chunk.Candidates) == 0 {
			continue
		}

		for _, part := range chunk.Candidates[0].Content.Parts {
			if part.Text == "" {
				continue
			}
			select {
			case fragments <- schemas.Fragment{Text: part.Text}:
				delivered = true
			case <-ctx.Done():
				return delivered, backoff.Permanent(ctx.Err())
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return delivered, fmt.Errorf("stream read failed: %w", err)
	}
	return delivered, nil
}
