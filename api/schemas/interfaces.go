package schemas

import (
	"context"
)

// -- Store Interface --

// Store defines the persistent storage contract for threads, messages, plans
// and generated artifacts. This abstraction keeps the orchestrator independent
// of the specific database implementation.
type Store interface {
	// LoadThread resolves a thread's resumable state: the thread record, the
	// bounded recent history window, the latest plan, and the current file
	// inventory. A missing thread id creates a fresh thread.
	LoadThread(ctx context.Context, threadID, projectID, ownerID string) (*ThreadState, error)
	// AppendMessage records one immutable conversation turn.
	AppendMessage(ctx context.Context, msg Message) error
	// SavePlan replaces the thread's plan. Plans supersede, never merge.
	SavePlan(ctx context.Context, plan BuildPlan) error
	// UpsertFile writes one generated file by (project, path). An existing
	// record's content is replaced in place; at most one live record exists
	// per key.
	UpsertFile(ctx context.Context, projectID, path, content string) error
	// ListFiles returns the full artifact inventory for a project.
	ListFiles(ctx context.Context, projectID string) ([]ProjectFile, error)
}

// -- LLM Interfaces --

// Fragment is one streamed chunk of model output, forwarded to the client in
// production order.
type Fragment struct {
	Text string
}

// LLMClient is the model invocation contract. Implementations must retry
// transient failures internally up to a fixed ceiling and classify everything
// else as permanent.
type LLMClient interface {
	// Generate performs a blocking completion and returns the full text.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// GenerateStream performs a streaming completion. Fragments arrive in
	// order on the first channel; a terminal error (or nil on clean close)
	// arrives on the second. Both channels close when the call finishes.
	GenerateStream(ctx context.Context, req GenerationRequest) (<-chan Fragment, <-chan error)
	// GenerateWithTools offers the declared tools to the model. The response
	// carries either final text or the tool calls the caller must execute and
	// resubmit via SubmitToolResults.
	GenerateWithTools(ctx context.Context, req GenerationRequest, tools []ToolDeclaration) (*ToolTurnResponse, error)
	// SubmitToolResults continues a tool turn with executed results and
	// returns the model's follow-up (which may request further tool calls).
	SubmitToolResults(ctx context.Context, req GenerationRequest, tools []ToolDeclaration, calls []ToolCall, results []ToolResult) (*ToolTurnResponse, error)
	// Close releases any held resources.
	Close() error
}

// -- Tool Interfaces --

// Tool is one capability a node handler may let the model invoke
// (web image search, page snapshot, syntax lint).
type Tool interface {
	// Declaration advertises the tool to the model.
	Declaration() ToolDeclaration
	// Call executes the tool with the model-supplied arguments. Failures are
	// returned as errors and surfaced to the model as synthetic results.
	Call(ctx context.Context, args []byte) (string, error)
}

// Uploader persists a captured asset and returns a URL the generated
// application can reference. Signing/storage specifics live outside the core.
type Uploader interface {
	Upload(ctx context.Context, name string, contentType string, data []byte) (string, error)
}

// -- Orchestrator Interfaces --

// EventSink receives the orchestrator's output stream. Fragments are raw
// model text forwarded as produced; Directives are fully decoded wire
// payloads. Implementations must preserve ordering and must not block
// unboundedly.
type EventSink interface {
	Fragment(text string)
	Directive(payload []byte)
}

// Runner executes one build turn for a thread, streaming output to the sink
// until the state machine reaches its terminal state. A second concurrent run
// for the same thread id must be rejected.
type Runner interface {
	Run(ctx context.Context, input RunInput, sink EventSink) error
}

// RunInput is the client request that starts one orchestrator run.
type RunInput struct {
	ThreadID  string
	ProjectID string
	OwnerID   string
	Message   string
	Images    []string
}

// -- Memory Interfaces --

// MemoryRecall retrieves long-term context snippets relevant to the current
// input. Failures degrade to no recall; they never abort a run.
type MemoryRecall interface {
	Recall(ctx context.Context, threadID, query string, limit int) ([]string, error)
	Remember(ctx context.Context, threadID, text string) error
}
