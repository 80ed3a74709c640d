// File: internal/llmclient/gemini_client_test.go
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/loom/api/schemas"
	"github.com/xkilldash9x/loom/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func simpleTextResponse(text string) string {
	// Single-line JSON so the payload also fits on one SSE "data:" line.
	return fmt.Sprintf(`{"candidates": [{"content": {"parts": [{"text": %q}], "role": "model"}, "finishReason": "STOP"}], "usageMetadata": {"promptTokenCount": 10, "candidatesTokenCount": 5, "totalTokenCount": 15}}`, text)
}

func TestNewGeminiClient_RequiresAPIKey(t *testing.T) {
	cfg := getValidLLMConfig("http://localhost")
	cfg.APIKey = ""
	_, err := NewGeminiClient(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API Key")
}

func TestGenerate_Success(t *testing.T) {
	var gotPayload GeminiRequestPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test-model:generateContent", r.URL.Path)
		assert.Equal(t, "test-api-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		fmt.Fprint(w, simpleTextResponse("hello from the model"))
	}))
	defer server.Close()

	client, _ := setupGeminiClient(t, server)

	text, err := client.Generate(context.Background(), schemas.GenerationRequest{
		SystemPrompt: "you are a test",
		History: []schemas.ConversationTurn{
			{Role: schemas.RoleUser, Text: "earlier question"},
			{Role: schemas.RoleAgent, Text: "earlier answer"},
		},
		UserPrompt: "current question",
		Options:    schemas.GenerationOptions{ForceJSONFormat: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello from the model", text)

	// History maps onto alternating user/model turns with the current prompt last.
	require.Len(t, gotPayload.Contents, 3)
	assert.Equal(t, "user", gotPayload.Contents[0].Role)
	assert.Equal(t, "model", gotPayload.Contents[1].Role)
	assert.Equal(t, "current question", gotPayload.Contents[2].Parts[0].Text)
	require.NotNil(t, gotPayload.SystemInstruction)
	assert.Equal(t, "you are a test", gotPayload.SystemInstruction.Parts[0].Text)
	assert.Equal(t, "application/json", gotPayload.GenerationConfig.ResponseMimeType)
}

func TestGenerate_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, simpleTextResponse("recovered"))
	}))
	defer server.Close()

	client, _ := setupGeminiClient(t, server)

	text, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerate_PermanentErrorDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": {"message": "invalid request"}}`)
	}))
	defer server.Close()

	client, _ := setupGeminiClient(t, server)

	_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerate_RetryCeilingExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, _ := setupGeminiClient(t, server)

	_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.Error(t, err)
	// MaxRetries 2 means one initial attempt plus two retries.
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerate_SafetyBlockIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"candidates": [{"content": {"parts": [], "role": "model"}, "finishReason": "SAFETY"}]}`)
	}))
	defer server.Close()

	client, _ := setupGeminiClient(t, server)

	_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateStream_DeliversFragmentsInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test-model:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"first ", "second ", "third"} {
			fmt.Fprintf(w, "data: %s\n\n", simpleTextResponse(chunk))
		}
	}))
	defer server.Close()

	client, _ := setupGeminiClient(t, server)

	fragments, errCh := client.GenerateStream(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})

	var got string
	for f := range fragments {
		got += f.Text
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, "first second third", got)
}

func TestGenerateStream_RetriesBeforeFirstFragment(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", simpleTextResponse("after retry"))
	}))
	defer server.Close()

	client, _ := setupGeminiClient(t, server)

	fragments, errCh := client.GenerateStream(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})

	var got string
	for f := range fragments {
		got += f.Text
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, "after retry", got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerateStream_SurfacesErrorOnChannel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client, _ := setupGeminiClient(t, server)

	fragments, errCh := client.GenerateStream(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	for range fragments {
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestGenerateStream_CancellationStopsDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 500; i++ {
			fmt.Fprintf(w, "data: %s\n\n", simpleTextResponse("chunk"))
			flusher.Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(time.Millisecond):
			}
		}
	}))
	defer server.Close()

	client, _ := setupGeminiClient(t, server)

	fragments, errCh := client.GenerateStream(ctx, schemas.GenerationRequest{UserPrompt: "hi"})
	<-fragments
	cancel()

	// Both channels must close so the reader goroutine does not leak.
	for range fragments {
	}
	<-errCh
}

func TestGenerateWithTools_ParsesFunctionCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload GeminiRequestPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload.Tools, 1)
		assert.Equal(t, "capture_page", payload.Tools[0].FunctionDeclarations[0].Name)

		fmt.Fprint(w, `{"candidates": [{"content": {"parts": [
			{"text": "Capturing the page now."},
			{"functionCall": {"name": "capture_page", "args": {"url": "https://example.com"}}}
		], "role": "model"}, "finishReason": "STOP"}]}`)
	}))
	defer server.Close()

	client, _ := setupGeminiClient(t, server)

	turn, err := client.GenerateWithTools(context.Background(), schemas.GenerationRequest{UserPrompt: "clone example.com"}, []schemas.ToolDeclaration{
		{Name: "capture_page", Description: "Capture a page screenshot", Parameters: json.RawMessage(`{"type":"object"}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, "Capturing the page now.", turn.Text)
	require.Len(t, turn.ToolCalls, 1)
	assert.Equal(t, "capture_page", turn.ToolCalls[0].Name)
	assert.JSONEq(t, `{"url": "https://example.com"}`, string(turn.ToolCalls[0].Args))
}

func TestSubmitToolResults_AppendsFunctionTurns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload GeminiRequestPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		// Last two turns: the model's call restated, then the function result.
		require.GreaterOrEqual(t, len(payload.Contents), 3)
		modelTurn := payload.Contents[len(payload.Contents)-2]
		functionTurn := payload.Contents[len(payload.Contents)-1]
		assert.Equal(t, "model", modelTurn.Role)
		require.NotNil(t, modelTurn.Parts[0].FunctionCall)
		assert.Equal(t, "function", functionTurn.Role)
		require.NotNil(t, functionTurn.Parts[0].FunctionResponse)
		assert.Equal(t, "capture_page", functionTurn.Parts[0].FunctionResponse.Name)

		fmt.Fprint(w, simpleTextResponse("got the screenshot"))
	}))
	defer server.Close()

	client, _ := setupGeminiClient(t, server)

	tools := []schemas.ToolDeclaration{{Name: "capture_page", Description: "Capture a page screenshot"}}
	calls := []schemas.ToolCall{{Name: "capture_page", Args: json.RawMessage(`{"url":"https://example.com"}`)}}
	results := []schemas.ToolResult{{Name: "capture_page", Content: "https://cdn.example.com/shot.png"}}

	turn, err := client.SubmitToolResults(context.Background(), schemas.GenerationRequest{UserPrompt: "clone example.com"}, tools, calls, results)
	require.NoError(t, err)
	assert.Equal(t, "got the screenshot", turn.Text)
	assert.Empty(t, turn.ToolCalls)
}

func TestGenerate_LogsTokenUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, simpleTextResponse("ok"))
	}))
	defer server.Close()

	client, logs := setupGeminiClient(t, server)

	_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.NoError(t, err)

	entries := logs.FilterMessage("LLM generation complete (Gemini)").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, 15, fields["total_tokens"])
}

func TestResolveModel_AppliesSharedKey(t *testing.T) {
	router := config.LLMRouterConfig{
		APIKey: "shared-key",
		Models: map[string]config.LLMModelConfig{
			"gemini-2.5-flash": {Provider: config.ProviderGemini},
		},
	}
	mc, err := router.ResolveModel("gemini-2.5-flash")
	require.NoError(t, err)
	assert.Equal(t, "shared-key", mc.APIKey)
	assert.Equal(t, "gemini-2.5-flash", mc.Model)

	_, err = router.ResolveModel("unknown-model")
	require.Error(t, err)
}
