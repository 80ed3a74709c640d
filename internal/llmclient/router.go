// File: internal/llmclient/router.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/loom/api/schemas"
)

// LLMRouter dispatches each request to the client registered for its tier. A
// request with an unknown tier falls back to the powerful client.
type LLMRouter struct {
	clients map[schemas.ModelTier]schemas.LLMClient
	logger  *zap.Logger
}

// NewLLMRouter builds a router over the given tier clients. Both tiers must be
// populated.
func NewLLMRouter(clients map[schemas.ModelTier]schemas.LLMClient, logger *zap.Logger) (*LLMRouter, error) {
	for _, tier := range []schemas.ModelTier{schemas.TierFast, schemas.TierPowerful} {
		if clients[tier] == nil {
			return nil, fmt.Errorf("no client registered for tier %q", tier)
		}
	}
	return &LLMRouter{
		clients: clients,
		logger:  logger.Named("llm_router"),
	}, nil
}

func (r *LLMRouter) resolve(tier schemas.ModelTier) schemas.LLMClient {
	if client, ok := r.clients[tier]; ok {
		return client
	}
	r.logger.Warn("Unknown model tier, falling back to powerful", zap.String("tier", string(tier)))
	return r.clients[schemas.TierPowerful]
}

func (r *LLMRouter) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	return r.resolve(req.Tier).Generate(ctx, req)
}

func (r *LLMRouter) GenerateStream(ctx context.Context, req schemas.GenerationRequest) (<-chan schemas.Fragment, <-chan error) {
	return r.resolve(req.Tier).GenerateStream(ctx, req)
}

func (r *LLMRouter) GenerateWithTools(ctx context.Context, req schemas.GenerationRequest, tools []schemas.ToolDeclaration) (*schemas.ToolTurnResponse, error) {
	return r.resolve(req.Tier).GenerateWithTools(ctx, req, tools)
}

func (r *LLMRouter) SubmitToolResults(ctx context.Context, req schemas.GenerationRequest, tools []schemas.ToolDeclaration, calls []schemas.ToolCall, results []schemas.ToolResult) (*schemas.ToolTurnResponse, error) {
	return r.resolve(req.Tier).SubmitToolResults(ctx, req, tools, calls, results)
}

// Close shuts down every distinct underlying client once.
func (r *LLMRouter) Close() error {
	var firstErr error
	seen := make(map[schemas.LLMClient]bool)
	for _, client := range r.clients {
		if seen[client] {
			continue
		}
		seen[client] = true
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ schemas.LLMClient = (*LLMRouter)(nil)
