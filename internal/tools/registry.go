// File: internal/tools/registry.go

// Package tools implements the side-effecting capabilities the model can
// request during a run: page capture, image search, syntax checking and
// asset upload.
package tools

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/loom/api/schemas"
)

// maxConcurrentCalls bounds how many tool calls from one model turn run at
// the same time.
const maxConcurrentCalls = 4

// Registry holds the tools available to a node, keyed by declared name.
type Registry struct {
	tools map[string]schemas.Tool
	log   *zap.Logger
}

func NewRegistry(logger *zap.Logger, available ...schemas.Tool) *Registry {
	r := &Registry{
		tools: make(map[string]schemas.Tool, len(available)),
		log:   logger.Named("tools"),
	}
	for _, t := range available {
		r.tools[t.Declaration().Name] = t
	}
	return r
}

// Declarations returns every registered tool's declaration for attachment to
// a model request.
func (r *Registry) Declarations() []schemas.ToolDeclaration {
	decls := make([]schemas.ToolDeclaration, 0, len(r.tools))
	for _, t := range r.tools {
		decls = append(decls, t.Declaration())
	}
	return decls
}

// Execute runs one requested call. Failures become error-flagged results so
// the model can react; they never abort the run.
func (r *Registry) Execute(ctx context.Context, call schemas.ToolCall) schemas.ToolResult {
	tool, ok := r.tools[call.Name]
	if !ok {
		err := &ToolExecutionError{Tool: call.Name, Err: fmt.Errorf("unknown tool")}
		r.log.Warn("Model requested unregistered tool", zap.String("tool", call.Name))
		return schemas.ToolResult{Name: call.Name, Content: err.Error(), IsError: true}
	}

	content, err := tool.Call(ctx, call.Args)
	if err != nil {
		execErr := &ToolExecutionError{Tool: call.Name, Err: err}
		r.log.Warn("Tool execution failed", zap.String("tool", call.Name), zap.Error(err))
		return schemas.ToolResult{Name: call.Name, Content: execErr.Error(), IsError: true}
	}

	return schemas.ToolResult{Name: call.Name, Content: content}
}

// ExecuteAll runs a batch of requested calls concurrently, bounded so a page
// capture and an image search can overlap without saturating the host.
// Results keep the order of the requested calls.
func (r *Registry) ExecuteAll(ctx context.Context, calls []schemas.ToolCall) []schemas.ToolResult {
	results := make([]schemas.ToolResult, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCalls)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = r.Execute(gctx, call)
			return nil
		})
	}
	// Execute never returns an error; failures are error-flagged results.
	_ = g.Wait()

	return results
}
