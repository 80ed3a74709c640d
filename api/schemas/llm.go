package schemas

import (
	"encoding/json"
)

// -- LLM Schemas --

// ModelTier selects which model class serves a request. Routing and feature
// suggestions run on the fast tier; planning and coding on the powerful tier.
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierPowerful ModelTier = "powerful"
)

// ConversationTurn is one prior turn supplied as model context.
type ConversationTurn struct {
	Role MessageRole `json:"role"`
	Text string      `json:"text"`
}

// GenerationOptions tunes a single generation call.
type GenerationOptions struct {
	Temperature     float32
	ForceJSONFormat bool
}

// GenerationRequest is the assembled input for one model invocation: the
// phase's role instructions, the bounded history window, and the current turn.
type GenerationRequest struct {
	SystemPrompt string
	History      []ConversationTurn
	UserPrompt   string
	Tier         ModelTier
	Options      GenerationOptions
}

// ToolDeclaration describes one callable tool advertised to the model.
// Parameters is a JSON schema object.
type ToolDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is the model's request to invoke a declared tool.
type ToolCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolResult is the outcome of executing a ToolCall, fed back to the model as
// a follow-up turn. Tool failures are reported here as synthetic results so
// the model can react, not swallowed.
type ToolResult struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ToolTurnResponse is the adapter's answer to a tool-enabled invocation:
// either final text, or one or more tool calls the caller must execute and
// resubmit.
type ToolTurnResponse struct {
	Text      string
	ToolCalls []ToolCall
}
