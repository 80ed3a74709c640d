// File: internal/agent/session.go
package agent

import (
	"strings"

	"github.com/xkilldash9x/loom/api/schemas"
)

// session is the per-run context object: everything a node handler needs,
// loaded once from the checkpoint store and mutated as directives apply.
// Nothing in here outlives the run; persistent effects go through the store.
type session struct {
	thread  schemas.Thread
	history []schemas.ConversationTurn
	plan    *schemas.BuildPlan
	files   []schemas.ProjectFile

	// manifest is the explicit completion checklist derived from the plan's
	// file layout. Nil until a plan exists.
	manifest *schemas.FileManifest

	// userMessage is the text driving the current node. The router may
	// replace it with the forwarded form from its routing directive.
	userMessage string
	images      []string

	// lastAssetAction/lastAssetURL describe the asset secured this run, fed
	// to the examiner.
	lastAssetAction string
	lastAssetURL    string

	// codingAchieved latches once the coding phases report completion and the
	// manifest agrees. It never regresses within a run.
	codingAchieved bool
}

func newSession(state *schemas.ThreadState, input schemas.RunInput) *session {
	history := make([]schemas.ConversationTurn, 0, len(state.History))
	for _, msg := range state.History {
		role := schemas.RoleUser
		if msg.Role == schemas.RoleAgent {
			role = schemas.RoleAgent
		}
		history = append(history, schemas.ConversationTurn{Role: role, Text: msg.Content})
	}

	sess := &session{
		thread:      state.Thread,
		history:     history,
		plan:        state.Plan,
		files:       state.Files,
		userMessage: input.Message,
		images:      input.Images,
	}

	if state.Plan != nil {
		sess.manifest = manifestFromPlan(state.Plan.Text)
		for _, f := range state.Files {
			sess.manifest.MarkDone(f.Path)
		}
	}
	return sess
}

// recordTurn appends a turn to the in-run history so later nodes in the same
// run see earlier output.
func (s *session) recordTurn(role schemas.MessageRole, text string) {
	s.history = append(s.history, schemas.ConversationTurn{Role: role, Text: text})
	if len(s.history) > schemas.HistoryWindow {
		s.history = s.history[len(s.history)-schemas.HistoryWindow:]
	}
}

// applyFile updates the in-run file inventory after an upsert: replace on
// matching path, append otherwise.
func (s *session) applyFile(path, content string) {
	for i := range s.files {
		if s.files[i].Path == path {
			s.files[i].Content = content
			return
		}
	}
	s.files = append(s.files, schemas.ProjectFile{
		ProjectID: s.thread.ProjectID,
		Path:      path,
		Content:   content,
	})
}

// recordAsset captures the collected asset for the planning phase.
func (s *session) recordAsset(asset *schemas.Asset) {
	s.lastAssetAction = asset.Action
	s.lastAssetURL = asset.URL
}

// assetContext describes the asset on hand, falling back to the stored
// plan's asset for resumed threads.
func (s *session) assetContext() (action, url string) {
	if s.lastAssetURL != "" {
		return s.lastAssetAction, s.lastAssetURL
	}
	if s.plan != nil && s.plan.AssetURL != "" {
		return "previously collected asset", s.plan.AssetURL
	}
	return "(no asset collected)", "(none)"
}

// missingFiles is the manifest's outstanding checklist, empty when no plan
// has declared a layout yet.
func (s *session) missingFiles() []string {
	if s.manifest == nil {
		return nil
	}
	return s.manifest.Remaining()
}

// codingComplete is the explicit completion predicate for the coder phases:
// the model's self-reported flag alone never completes a build while the
// manifest still lists missing files. Once latched it never regresses.
func (s *session) codingComplete(selfReported bool) bool {
	if s.codingAchieved {
		return true
	}
	if s.manifest != nil && len(s.manifest.Paths) > 0 {
		if s.manifest.Complete() && selfReported {
			s.codingAchieved = true
		}
	} else if selfReported {
		s.codingAchieved = true
	}
	return s.codingAchieved
}

// manifestFromPlan extracts the declared file layout from plan text: lines
// prefixed "- " whose remainder looks like a file path.
func manifestFromPlan(planText string) *schemas.FileManifest {
	var paths []string
	for _, line := range strings.Split(planText, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "- ") {
			continue
		}
		candidate := strings.TrimSpace(strings.TrimPrefix(trimmed, "- "))
		if isFilePath(candidate) {
			paths = append(paths, candidate)
		}
	}
	return schemas.NewFileManifest(paths)
}

// isFilePath accepts layout entries that name a concrete file: no spaces, an
// extension on the final segment. Folder-only entries are not checklist
// items.
func isFilePath(candidate string) bool {
	if candidate == "" || strings.ContainsAny(candidate, " \t") {
		return false
	}
	base := candidate
	if idx := strings.LastIndex(candidate, "/"); idx >= 0 {
		base = candidate[idx+1:]
	}
	dot := strings.LastIndex(base, ".")
	return dot > 0 && dot < len(base)-1
}

// nodeForPath classifies a plan file path as frontend or backend work, used
// when a coder hands off by declaring the counterpart's file as next.
func nodeForPath(path string) schemas.NodeKind {
	lower := strings.ToLower(path)
	for _, marker := range []string{"server/", "backend/", "api/", "routes/", "controllers/", "models/", "db/"} {
		if strings.HasPrefix(lower, marker) || strings.Contains(lower, "/"+marker) {
			return schemas.NodeBackendCoder
		}
	}
	base := lower
	if idx := strings.LastIndex(lower, "/"); idx >= 0 {
		base = lower[idx+1:]
	}
	switch base {
	case "server.js", "server.ts", "app.py", "main.py", "database.js", "db.js":
		return schemas.NodeBackendCoder
	}
	return schemas.NodeFrontendCoder
}
