package schemas

import (
	"time"
)

// -- Conversation Schemas --

// MessageRole identifies who produced a conversation message.
type MessageRole string

const (
	RoleUser  MessageRole = "user"
	RoleAgent MessageRole = "agent"
)

// Message is one immutable conversation turn. Ordering is insertion order and
// is semantically meaningful: the latest message drives the next node.
type Message struct {
	ID        string      `json:"id"`
	ThreadID  string      `json:"thread_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Images    []string    `json:"images,omitempty"`
	Sequence  int64       `json:"sequence"`
	CreatedAt time.Time   `json:"created_at"`
}

// Thread identifies one ongoing build conversation. It is created on the
// first user input for a project and persists for the project's lifetime.
type Thread struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BuildPlan is the persisted form of the Examiner's output. A later Examiner
// run supersedes it entirely; plans are never merged.
type BuildPlan struct {
	ThreadID  string    `json:"thread_id"`
	PlanID    string    `json:"plan_id"`
	Text      string    `json:"text"`
	AssetURL  string    `json:"asset_url"`
	CreatedAt time.Time `json:"created_at"`
}

// ProjectFile is one generated artifact, uniquely keyed by (project, path).
// A code directive for an existing path replaces content in place.
type ProjectFile struct {
	ProjectID  string    `json:"project_id"`
	Path       string    `json:"path"`
	Content    string    `json:"content"`
	ModifiedAt time.Time `json:"modified_at"`
}

// FileManifest is the explicit completion checklist for the coding phases:
// every path the plan implies, checked off as files are persisted. The
// model's self-reported completion flag is only honored once Remaining is
// empty.
type FileManifest struct {
	Paths map[string]bool `json:"paths"` // path -> persisted
}

// NewFileManifest builds a manifest from the plan's declared file layout.
func NewFileManifest(paths []string) *FileManifest {
	m := &FileManifest{Paths: make(map[string]bool, len(paths))}
	for _, p := range paths {
		if p != "" {
			m.Paths[p] = false
		}
	}
	return m
}

// MarkDone checks a path off. Unknown paths are recorded as done so files the
// plan did not anticipate never block completion.
func (m *FileManifest) MarkDone(path string) {
	if m.Paths == nil {
		m.Paths = make(map[string]bool)
	}
	m.Paths[path] = true
}

// Remaining returns the paths not yet persisted, in no particular order.
func (m *FileManifest) Remaining() []string {
	var out []string
	for p, done := range m.Paths {
		if !done {
			out = append(out, p)
		}
	}
	return out
}

// Complete reports whether every manifest entry has been persisted.
func (m *FileManifest) Complete() bool {
	for _, done := range m.Paths {
		if !done {
			return false
		}
	}
	return true
}

// ThreadState is the resumable working state one orchestrator run operates
// on: the bounded recent history window, the latest plan, and the current
// artifact inventory. It is rebuilt from the store at the start of every run;
// there is no process-wide conversation state.
type ThreadState struct {
	Thread   Thread
	History  []Message // most recent window, oldest first
	Plan     *BuildPlan
	Files    []ProjectFile
	Manifest *FileManifest
}

// HistoryWindow is the fixed number of recent messages loaded per run to keep
// prompt size controlled.
const HistoryWindow = 10
