// File: internal/agent/session_test.go
package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/loom/api/schemas"
)

func TestManifestFromPlan(t *testing.T) {
	plan := `We will build a todo app.
Stack: HTML, CSS, vanilla JS.
Layout:
- index.html
- css/styles.css
- js/app.js
- assets (folder for images)
- a narrative step that is not a file
Should I continue with this plan?`

	manifest := manifestFromPlan(plan)
	remaining := manifest.Remaining()
	require.Len(t, remaining, 3)
	assert.Contains(t, remaining, "index.html")
	assert.Contains(t, remaining, "css/styles.css")
	assert.Contains(t, remaining, "js/app.js")

	manifest.MarkDone("index.html")
	manifest.MarkDone("css/styles.css")
	assert.False(t, manifest.Complete())
	manifest.MarkDone("js/app.js")
	assert.True(t, manifest.Complete())
}

func TestNodeForPath(t *testing.T) {
	tests := []struct {
		path string
		want schemas.NodeKind
	}{
		{"index.html", schemas.NodeFrontendCoder},
		{"css/styles.css", schemas.NodeFrontendCoder},
		{"server/index.js", schemas.NodeBackendCoder},
		{"backend/db.sql", schemas.NodeBackendCoder},
		{"src/api/tasks.js", schemas.NodeBackendCoder},
		{"server.js", schemas.NodeBackendCoder},
		{"app.py", schemas.NodeBackendCoder},
		{"js/app.js", schemas.NodeFrontendCoder},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nodeForPath(tt.path), "path %s", tt.path)
	}
}

func TestCodingCompleteNeverRegresses(t *testing.T) {
	sess := &session{manifest: schemas.NewFileManifest([]string{"index.html"})}

	assert.False(t, sess.codingComplete(true), "manifest still open")
	sess.manifest.MarkDone("index.html")
	assert.True(t, sess.codingComplete(true))

	// A later turn with a different hint and a false flag cannot regress it.
	assert.True(t, sess.codingComplete(false))
}

func TestCodingCompleteWithoutManifestTrustsFlag(t *testing.T) {
	sess := &session{}
	assert.False(t, sess.codingComplete(false))
	assert.True(t, sess.codingComplete(true))
	assert.True(t, sess.codingComplete(false))
}

func TestSessionHistoryWindowBounded(t *testing.T) {
	state := &schemas.ThreadState{Thread: schemas.Thread{ID: "t1"}}
	sess := newSession(state, schemas.RunInput{ThreadID: "t1", Message: "hi"})

	for i := 0; i < schemas.HistoryWindow*2; i++ {
		sess.recordTurn(schemas.RoleAgent, "turn")
	}
	assert.Len(t, sess.history, schemas.HistoryWindow)
}

func TestSessionResumesManifestFromStoredState(t *testing.T) {
	state := &schemas.ThreadState{
		Thread: schemas.Thread{ID: "t1", ProjectID: "p1"},
		Plan: &schemas.BuildPlan{
			Text: "Plan.\n- index.html\n- app.js\nShould I continue with this plan?",
		},
		Files: []schemas.ProjectFile{{ProjectID: "p1", Path: "index.html", Content: "<html></html>"}},
	}
	sess := newSession(state, schemas.RunInput{ThreadID: "t1", Message: "continue"})

	require.NotNil(t, sess.manifest)
	assert.Equal(t, []string{"app.js"}, sess.missingFiles())
}
