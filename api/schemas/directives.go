package schemas

// -- Directive Schemas --

// NodeKind names one phase of the build state machine. The Router's wire-level
// nextNode field carries these exact values.
type NodeKind string

const (
	NodeRouter           NodeKind = "router"
	NodeAssetCollector   NodeKind = "assetCollector"
	NodeExaminer         NodeKind = "examiner"
	NodeFrontendCoder    NodeKind = "frontendCoder"
	NodeBackendCoder     NodeKind = "backendCoder"
	NodeTerminalExecutor NodeKind = "terminalExecutor"
	NodeFeatureSuggester NodeKind = "featureSuggester"
	// NodeDone is the implicit terminal state. It is never a valid routing
	// target on the wire; any unrecognized nextNode collapses to it.
	NodeDone NodeKind = "done"
)

// RoutableNodes is the closed set of nodes the Router may dispatch to.
var RoutableNodes = map[NodeKind]bool{
	NodeAssetCollector:   true,
	NodeExaminer:         true,
	NodeFrontendCoder:    true,
	NodeBackendCoder:     true,
	NodeTerminalExecutor: true,
	NodeFeatureSuggester: true,
}

// DirectiveType is the wire discriminant carried in every client-visible
// directive's "type" field.
type DirectiveType string

const (
	DirectiveExplanation DirectiveType = "explanation"
	DirectiveRouting     DirectiveType = "routing" // internal only, never emitted to the client
	DirectiveAsset       DirectiveType = "web"
	DirectivePlan        DirectiveType = "examiner"
	DirectiveCode        DirectiveType = "coding"
	DirectiveTerminal    DirectiveType = "terminal"
	DirectiveFeatures    DirectiveType = "feat_sugges"
)

// Directive is the closed tagged union a node handler must produce per
// invocation. Exactly one concrete variant exists per DirectiveType; decoding
// validates required fields eagerly and never yields a partially-filled value.
type Directive interface {
	// Kind returns the wire discriminant of the concrete variant.
	Kind() DirectiveType
}

// Explanation is free conversational text shown to the user. It is also the
// Router's terminal reply when nothing needs to be built this turn.
type Explanation struct {
	Type DirectiveType `json:"type"`
	Role string        `json:"role"`
	Data string        `json:"data"`
}

// Routing is the Router's dispatch decision. It is the single variant that is
// never wrapped in delimiters in raw model output and never reaches the client.
type Routing struct {
	NextNode    NodeKind `json:"nextNode"`
	UserMessage string   `json:"userMessage"`
}

// Asset describes the one reference asset collected for a build: either a
// captured page snapshot or a topical inspiration image.
type Asset struct {
	Type   DirectiveType `json:"type"`
	Role   string        `json:"role"`
	Action string        `json:"action"`
	URL    string        `json:"url"`
}

// Plan is the Examiner's structured build plan. PlanID is a short identifier
// the coder phases echo back so artifacts stay correlated to the plan that
// produced them.
type Plan struct {
	Type   DirectiveType `json:"type"`
	Role   string        `json:"role"`
	Data   string        `json:"data"`
	URL    string        `json:"url"`
	PlanID string        `json:"planId"`
}

// Code carries exactly one complete generated file. NextFile names the file
// the coder intends to produce on its next turn; IsAchieved signals the
// model's own view of phase completion (the orchestrator cross-checks it
// against the plan's file manifest before trusting it).
type Code struct {
	Type       DirectiveType `json:"type"`
	Role       string        `json:"role"`
	File       string        `json:"file"`
	Content    string        `json:"code"`
	NextFile   string        `json:"nextFile"`
	IsAchieved bool          `json:"isachieved"`
}

// Terminal carries exactly one shell command for the client-side sandbox to
// run. Never more than one command per directive.
type Terminal struct {
	Type       DirectiveType `json:"type"`
	Role       string        `json:"role"`
	Command    string        `json:"command"`
	IsAchieved bool          `json:"isachieved"`
}

// FeatureSuggestion is a short prioritized list of post-deployment
// enhancement ideas.
type FeatureSuggestion struct {
	Type DirectiveType `json:"type"`
	Role string        `json:"role"`
	Data string        `json:"data"`
}

func (d *Explanation) Kind() DirectiveType       { return DirectiveExplanation }
func (d *Routing) Kind() DirectiveType           { return DirectiveRouting }
func (d *Asset) Kind() DirectiveType             { return DirectiveAsset }
func (d *Plan) Kind() DirectiveType              { return DirectivePlan }
func (d *Code) Kind() DirectiveType              { return DirectiveCode }
func (d *Terminal) Kind() DirectiveType          { return DirectiveTerminal }
func (d *FeatureSuggestion) Kind() DirectiveType { return DirectiveFeatures }

// RoleAI is the fixed role tag every client-visible directive carries.
const RoleAI = "ai"
