// File: internal/agent/agent_test.go
package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/loom/api/schemas"
	"github.com/xkilldash9x/loom/internal/config"
	"github.com/xkilldash9x/loom/internal/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubCapture struct{ url string }

func (s *stubCapture) Declaration() schemas.ToolDeclaration {
	return schemas.ToolDeclaration{Name: "capture_page", Description: "stub"}
}

func (s *stubCapture) Call(ctx context.Context, args []byte) (string, error) {
	return s.url, nil
}

type stubSearch struct{ url string }

func (s *stubSearch) Declaration() schemas.ToolDeclaration {
	return schemas.ToolDeclaration{Name: "search_image", Description: "stub"}
}

func (s *stubSearch) Call(ctx context.Context, args []byte) (string, error) {
	return s.url, nil
}

func newTestAgent(t *testing.T, llm *scriptedLLM, store *memStore) *Agent {
	t.Helper()
	registry := tools.NewRegistry(zap.NewNop(),
		&stubCapture{url: "https://cdn.example.com/shot.png"},
		&stubSearch{url: "https://images.example.com/idea.png"},
	)
	return New(store, llm, registry, config.AgentConfig{MaxTurns: 24}, zap.NewNop())
}

func runInput(message string) schemas.RunInput {
	return schemas.RunInput{ThreadID: "t1", ProjectID: "p1", OwnerID: "owner", Message: message}
}

func TestRun_CloneSiteFlow(t *testing.T) {
	// Full build-intake pass: route, capture the referenced site, plan.
	planText := "We will clone the landing page.\n" +
		"Stack: HTML, CSS, JS.\n" +
		"- index.html\n" +
		"- styles.css\n" +
		"- app.js\n" +
		"Should I continue with this plan?"
	planJSON, _ := json.Marshal(planText)

	llm := &scriptedLLM{
		responses: []string{
			`{"nextNode": "assetCollector", "userMessage": "clone example.com"}`,
			wrapBlock(`{"type": "web", "role": "ai", "action": "will mirror the captured layout", "url": "https://cdn.example.com/shot.png"}`) + "\n" +
				wrapBlock(`{"type": "examiner", "role": "ai", "data": `+string(planJSON)+`, "url": "https://cdn.example.com/shot.png", "planId": "x9k2m1"}`),
		},
		toolTurns: []*schemas.ToolTurnResponse{
			{ToolCalls: []schemas.ToolCall{{Name: "capture_page", Args: json.RawMessage(`{"url":"https://example.com"}`)}}},
			{Text: wrapBlock(`{"type": "web", "role": "ai", "action": "captured screenshot of example.com", "url": "https://cdn.example.com/shot.png"}`)},
		},
	}
	store := newMemStore()
	agent := newTestAgent(t, llm, store)
	sink := &captureSink{}

	err := agent.Run(context.Background(), runInput("clone example.com"), sink)
	require.NoError(t, err)

	directives := sink.directivePayloads()
	require.Len(t, directives, 3)
	assert.Contains(t, directives[0], "captured screenshot of example.com")
	assert.Contains(t, directives[1], "will mirror the captured layout")
	assert.Contains(t, directives[2], `"planId":"x9k2m1"`)
	assert.Contains(t, directives[2], "Should I continue with this plan?")

	saved, ok := store.plans["t1"]
	require.True(t, ok, "plan must be persisted")
	assert.Equal(t, "x9k2m1", saved.PlanID)
	assert.Equal(t, "https://cdn.example.com/shot.png", saved.AssetURL)
}

func TestRun_InspirationFlowUsesSearch(t *testing.T) {
	planText := "A clicker game.\n- index.html\nShould I continue with this plan?"
	planJSON, _ := json.Marshal(planText)

	llm := &scriptedLLM{
		responses: []string{
			`{"nextNode": "assetCollector", "userMessage": "make a clicker game"}`,
			wrapBlock(`{"type": "web", "role": "ai", "action": "using the inspiration image for tone", "url": "https://images.example.com/idea.png"}`) + "\n" +
				wrapBlock(`{"type": "examiner", "role": "ai", "data": `+string(planJSON)+`, "url": "https://images.example.com/idea.png", "planId": "q7w8e9"}`),
		},
		toolTurns: []*schemas.ToolTurnResponse{
			{ToolCalls: []schemas.ToolCall{{Name: "search_image", Args: json.RawMessage(`{"query":"clicker game"}`)}}},
			{Text: wrapBlock(`{"type": "web", "role": "ai", "action": "took inspiration for clicker game", "url": "https://images.example.com/idea.png"}`)},
		},
	}
	agent := newTestAgent(t, llm, newMemStore())
	sink := &captureSink{}

	err := agent.Run(context.Background(), runInput("make a clicker game"), sink)
	require.NoError(t, err)

	directives := sink.directivePayloads()
	require.NotEmpty(t, directives)
	assert.Contains(t, directives[0], "took inspiration for clicker game")
	assert.NotContains(t, directives[0], "captured screenshot")
}

func TestRun_RouterExplanationIsTerminal(t *testing.T) {
	llm := &scriptedLLM{
		responses: []string{
			wrapBlock(`{"type": "explanation", "role": "ai", "data": "I build web apps. Tell me what to make!"}`),
		},
	}
	agent := newTestAgent(t, llm, newMemStore())
	sink := &captureSink{}

	err := agent.Run(context.Background(), runInput("what can you do?"), sink)
	require.NoError(t, err)

	directives := sink.directivePayloads()
	require.Len(t, directives, 1)
	assert.Contains(t, directives[0], "I build web apps")
}

func TestRun_UnknownNextNodeEndsRun(t *testing.T) {
	llm := &scriptedLLM{
		responses: []string{
			`{"nextNode": "deployer", "userMessage": "ship it"}`,
		},
	}
	agent := newTestAgent(t, llm, newMemStore())
	sink := &captureSink{}

	err := agent.Run(context.Background(), runInput("ship it"), sink)
	require.NoError(t, err)
	assert.Empty(t, sink.directivePayloads())
}

func TestRun_DecodeFailureEmitsFallback(t *testing.T) {
	llm := &scriptedLLM{
		responses: []string{
			"sure, I'll get right on that!", // no routing object, no block
		},
	}
	agent := newTestAgent(t, llm, newMemStore())
	sink := &captureSink{}

	err := agent.Run(context.Background(), runInput("build me something"), sink)
	require.NoError(t, err)

	directives := sink.directivePayloads()
	require.Len(t, directives, 1)
	assert.Contains(t, directives[0], decodeFallbackMessage)
}

func TestRun_CoderLoopCompletesManifest(t *testing.T) {
	store := newMemStore()
	store.plan = &schemas.BuildPlan{
		ThreadID: "t1",
		PlanID:   "a1b2c3",
		Text:     "Plan.\n- index.html\n- app.js\nShould I continue with this plan?",
		AssetURL: "https://cdn.example.com/shot.png",
	}

	llm := &scriptedLLM{
		responses: []string{
			`{"nextNode": "frontendCoder", "userMessage": "yes, continue"}`,
			wrapBlock(`{"type": "coding", "role": "ai", "file": "index.html", "code": "<html><body></body></html>", "nextFile": "app.js", "isachieved": false}`),
			wrapBlock(`{"type": "coding", "role": "ai", "file": "app.js", "code": "console.log('hi')", "nextFile": "", "isachieved": true}`),
		},
	}
	agent := newTestAgent(t, llm, store)
	sink := &captureSink{}

	err := agent.Run(context.Background(), runInput("yes, continue"), sink)
	require.NoError(t, err)

	require.Len(t, store.files["p1"], 2)
	assert.Equal(t, "<html><body></body></html>", store.files["p1"]["index.html"])
	assert.Equal(t, "console.log('hi')", store.files["p1"]["app.js"])

	directives := sink.directivePayloads()
	require.Len(t, directives, 2)
}

func TestRun_CoderLintFailureTriggersRepairTurn(t *testing.T) {
	// A syntactically broken file is persisted but immediately rewritten: the
	// checker's finding is fed back and the node loops in place.
	store := newMemStore()
	store.plan = &schemas.BuildPlan{
		ThreadID: "t1",
		PlanID:   "a1b2c3",
		Text:     "Plan.\n- app.js\nShould I continue with this plan?",
	}

	llm := &scriptedLLM{
		responses: []string{
			`{"nextNode": "frontendCoder", "userMessage": "yes, continue"}`,
			wrapBlock(`{"type": "coding", "role": "ai", "file": "app.js", "code": "function broken( { return }", "nextFile": "", "isachieved": true}`),
			wrapBlock(`{"type": "coding", "role": "ai", "file": "app.js", "code": "function run() {}", "nextFile": "", "isachieved": true}`),
		},
	}
	registry := tools.NewRegistry(zap.NewNop())
	agent := New(store, llm, registry, config.AgentConfig{MaxTurns: 24}, zap.NewNop(),
		WithSyntaxChecker(tools.NewSyntaxChecker(true)))
	sink := &captureSink{}

	err := agent.Run(context.Background(), runInput("yes, continue"), sink)
	require.NoError(t, err)

	// Both coder turns ran; the corrected content is what survives.
	require.Len(t, llm.requests, 3)
	assert.Equal(t, "function run() {}", store.files["p1"]["app.js"])
	assert.Contains(t, llm.requests[2].UserPrompt, "fails syntax checking")
}

func TestRun_UpsertReplacesExistingFile(t *testing.T) {
	// The thread already holds index.html; re-emitting the path replaces it.
	store := newMemStore()
	store.plan = &schemas.BuildPlan{
		ThreadID: "t1",
		PlanID:   "a1b2c3",
		Text:     "Plan.\n- index.html\nShould I continue with this plan?",
	}
	require.NoError(t, store.UpsertFile(context.Background(), "p1", "index.html", "old content"))

	llm := &scriptedLLM{
		responses: []string{
			`{"nextNode": "frontendCoder", "userMessage": "tweak the header"}`,
			wrapBlock(`{"type": "coding", "role": "ai", "file": "index.html", "code": "new content", "nextFile": "", "isachieved": true}`),
		},
	}
	agent := newTestAgent(t, llm, store)

	err := agent.Run(context.Background(), runInput("tweak the header"), &captureSink{})
	require.NoError(t, err)

	require.Len(t, store.files["p1"], 1, "exactly one record per (project, path)")
	assert.Equal(t, "new content", store.files["p1"]["index.html"])
}

func TestRun_SelfReportedCompletionNeedsManifest(t *testing.T) {
	// The model claims completion while the manifest still lists app.js; the
	// orchestrator keeps the coder loop going.
	store := newMemStore()
	store.plan = &schemas.BuildPlan{
		ThreadID: "t1",
		PlanID:   "a1b2c3",
		Text:     "Plan.\n- index.html\n- app.js\nShould I continue with this plan?",
	}

	llm := &scriptedLLM{
		responses: []string{
			`{"nextNode": "frontendCoder", "userMessage": "yes"}`,
			wrapBlock(`{"type": "coding", "role": "ai", "file": "index.html", "code": "<html></html>", "nextFile": "app.js", "isachieved": true}`),
			wrapBlock(`{"type": "coding", "role": "ai", "file": "app.js", "code": "console.log(1)", "nextFile": "", "isachieved": true}`),
		},
	}
	agent := newTestAgent(t, llm, store)

	err := agent.Run(context.Background(), runInput("yes"), &captureSink{})
	require.NoError(t, err)
	assert.Len(t, store.files["p1"], 2, "both manifest files must exist before the run completes")
}

func TestRun_TerminalEmitsOneCommandAndPauses(t *testing.T) {
	store := newMemStore()
	store.plan = &schemas.BuildPlan{ThreadID: "t1", PlanID: "a1b2c3", Text: "Plan."}

	llm := &scriptedLLM{
		responses: []string{
			`{"nextNode": "terminalExecutor", "userMessage": "npm ERR! missing script: start"}`,
			wrapBlock(`{"type": "terminal", "role": "ai", "command": "cat package.json", "isachieved": false}`),
		},
	}
	agent := newTestAgent(t, llm, store)
	sink := &captureSink{}

	err := agent.Run(context.Background(), runInput("npm ERR! missing script: start"), sink)
	require.NoError(t, err)

	directives := sink.directivePayloads()
	require.Len(t, directives, 1, "exactly one command per turn")
	assert.Contains(t, directives[0], "cat package.json")
}

func TestRun_FeatureSuggesterIsTerminal(t *testing.T) {
	store := newMemStore()
	store.plan = &schemas.BuildPlan{ThreadID: "t1", PlanID: "a1b2c3", Text: "Plan."}

	llm := &scriptedLLM{
		responses: []string{
			`{"nextNode": "featureSuggester", "userMessage": "what else could I add?"}`,
			wrapBlock(`{"type": "feat_sugges", "role": "ai", "data": "1. Dark mode\n2. Sound effects"}`),
		},
	}
	agent := newTestAgent(t, llm, store)
	sink := &captureSink{}

	err := agent.Run(context.Background(), runInput("what else could I add?"), sink)
	require.NoError(t, err)

	directives := sink.directivePayloads()
	require.Len(t, directives, 1)
	assert.Contains(t, directives[0], "Dark mode")
}

func TestRun_StreamsFragmentsBeforeDirectives(t *testing.T) {
	llm := &scriptedLLM{
		responses: []string{
			wrapBlock(`{"type": "explanation", "role": "ai", "data": "hello there"}`),
		},
	}
	agent := newTestAgent(t, llm, newMemStore())
	sink := &captureSink{}

	require.NoError(t, agent.Run(context.Background(), runInput("hi"), sink))

	// Raw token fragments are forwarded as produced; the buffered whole is
	// what got decoded.
	assert.Contains(t, sink.allFragments(), "hello there")
}

func TestRun_SecondConcurrentRunRejected(t *testing.T) {
	release := make(chan struct{})
	llm := &scriptedLLM{
		responses:   []string{wrapBlock(`{"type": "explanation", "role": "ai", "data": "done"}`)},
		blockStream: release,
	}
	agent := newTestAgent(t, llm, newMemStore())

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- agent.Run(context.Background(), runInput("slow request"), &captureSink{})
	}()

	// Wait until the first run holds the thread lock.
	require.Eventually(t, func() bool {
		llm.mu.Lock()
		defer llm.mu.Unlock()
		return len(llm.requests) > 0
	}, time.Second, 5*time.Millisecond)

	err := agent.Run(context.Background(), runInput("second request"), &captureSink{})
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(release)
	require.NoError(t, <-firstDone)
}

func TestRun_CancelledContextAbortsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llm := &scriptedLLM{responses: []string{"unused"}}
	agent := newTestAgent(t, llm, newMemStore())

	err := agent.Run(ctx, runInput("anything"), &captureSink{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_TurnCeilingStopsRunawayLoops(t *testing.T) {
	// A coder that never finishes and never declares a next file loops on
	// itself until the ceiling trips.
	store := newMemStore()
	store.plan = &schemas.BuildPlan{
		ThreadID: "t1", PlanID: "a1b2c3",
		Text: "Plan.\n- index.html\n- never-written.js\nShould I continue with this plan?",
	}

	responses := []string{`{"nextNode": "frontendCoder", "userMessage": "go"}`}
	for i := 0; i < 10; i++ {
		responses = append(responses,
			wrapBlock(`{"type": "coding", "role": "ai", "file": "index.html", "code": "<html></html>", "nextFile": "", "isachieved": false}`))
	}

	llm := &scriptedLLM{responses: responses}
	registry := tools.NewRegistry(zap.NewNop())
	agent := New(store, llm, registry, config.AgentConfig{MaxTurns: 5}, zap.NewNop())

	err := agent.Run(context.Background(), runInput("go"), &captureSink{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded 5 node executions")
}
