// File: internal/llmclient/tools.go
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/xkilldash9x/loom/api/schemas"
)

// GenerateWithTools sends the request with the given function declarations
// attached. The response carries any text the model produced alongside the
// function calls it requested; the caller executes them and feeds the results
// back through SubmitToolResults.
func (c *GeminiClient) GenerateWithTools(ctx context.Context, req schemas.GenerationRequest, tools []schemas.ToolDeclaration) (*schemas.ToolTurnResponse, error) {
	payload := c.buildRequestPayload(req, tools)
	return c.toolRoundTrip(ctx, payload)
}

// SubmitToolResults continues a tool turn: the model's function calls are
// re-stated as a model turn, the execution results follow as a function-role
// turn, and the model produces its next response.
func (c *GeminiClient) SubmitToolResults(ctx context.Context, req schemas.GenerationRequest, tools []schemas.ToolDeclaration, calls []schemas.ToolCall, results []schemas.ToolResult) (*schemas.ToolTurnResponse, error) {
	payload := c.buildRequestPayload(req, tools)

	callParts := make([]GeminiPart, 0, len(calls))
	for _, call := range calls {
		callParts = append(callParts, GeminiPart{
			FunctionCall: &GeminiFunctionCall{Name: call.Name, Args: call.Args},
		})
	}
	payload.Contents = append(payload.Contents, GeminiContent{
		Role:  "model",
		Parts: callParts,
	})

	resultParts := make([]GeminiPart, 0, len(results))
	for _, result := range results {
		response := map[string]interface{}{"content": result.Content}
		if result.IsError {
			response = map[string]interface{}{"error": result.Content}
		}
		resultParts = append(resultParts, GeminiPart{
			FunctionResponse: &GeminiFunctionResponse{Name: result.Name, Response: response},
		})
	}
	payload.Contents = append(payload.Contents, GeminiContent{
		Role:  "function",
		Parts: resultParts,
	})

	return c.toolRoundTrip(ctx, payload)
}

func (c *GeminiClient) toolRoundTrip(ctx context.Context, payload GeminiRequestPayload) (*schemas.ToolTurnResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	var turn *schemas.ToolTurnResponse
	operation := func() error {
		respPayload, err := c.doRequest(ctx, c.generateURL(), body)
		if err != nil {
			return err
		}
		parsed, err := parseToolTurn(respPayload)
		if err != nil {
			return err
		}
		turn = parsed
		return nil
	}

	if err := backoff.Retry(operation, c.newBackOff(ctx)); err != nil {
		return nil, err
	}
	return turn, nil
}

// parseToolTurn splits a candidate's parts into accumulated text and the
// function calls the model requested.
func parseToolTurn(payload *GeminiResponsePayload) (*schemas.ToolTurnResponse, error) {
	if len(payload.Candidates) == 0 {
		return nil, backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
	}

	turn := &schemas.ToolTurnResponse{}
	for _, part := range payload.Candidates[0].Content.Parts {
		if part.Text != "" {
			turn.Text += part.Text
		}
		if part.FunctionCall != nil {
			turn.ToolCalls = append(turn.ToolCalls, schemas.ToolCall{
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		}
	}
	return turn, nil
}
