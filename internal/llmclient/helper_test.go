// File: internal/llmclient/helper_test.go
package llmclient

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/loom/api/schemas"
	"github.com/xkilldash9x/loom/internal/config"
)

// getValidLLMConfig returns a baseline model config pointed at a test server.
func getValidLLMConfig(endpoint string) config.LLMModelConfig {
	return config.LLMModelConfig{
		Provider:   config.ProviderGemini,
		Model:      "gemini-test-model",
		APIKey:     "test-api-key",
		Endpoint:   endpoint,
		APITimeout: 5 * time.Second,
		MaxRetries: 2,
	}
}

// setupGeminiClient wires a client against the given test server and captures
// its logs for assertion.
func setupGeminiClient(t *testing.T, server *httptest.Server) (*GeminiClient, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	client, err := NewGeminiClient(getValidLLMConfig(server.URL), logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, logs
}

// MockLLMClient is a testify mock over schemas.LLMClient, shared by router
// tests and higher-level packages.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) GenerateStream(ctx context.Context, req schemas.GenerationRequest) (<-chan schemas.Fragment, <-chan error) {
	args := m.Called(ctx, req)
	return args.Get(0).(<-chan schemas.Fragment), args.Get(1).(<-chan error)
}

func (m *MockLLMClient) GenerateWithTools(ctx context.Context, req schemas.GenerationRequest, tools []schemas.ToolDeclaration) (*schemas.ToolTurnResponse, error) {
	args := m.Called(ctx, req, tools)
	if resp := args.Get(0); resp != nil {
		return resp.(*schemas.ToolTurnResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLLMClient) SubmitToolResults(ctx context.Context, req schemas.GenerationRequest, tools []schemas.ToolDeclaration, calls []schemas.ToolCall, results []schemas.ToolResult) (*schemas.ToolTurnResponse, error) {
	args := m.Called(ctx, req, tools, calls, results)
	if resp := args.Get(0); resp != nil {
		return resp.(*schemas.ToolTurnResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ schemas.LLMClient = (*MockLLMClient)(nil)
