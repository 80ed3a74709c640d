// File: internal/agent/nodes.go
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/loom/api/schemas"
	"github.com/xkilldash9x/loom/internal/prompt"
	"github.com/xkilldash9x/loom/internal/protocol"
)

// maxToolRounds bounds nested tool-call sub-turns within one node execution.
const maxToolRounds = 4

// runRouter classifies the user's intent. A routing directive selects the
// next node; an explanation directive is a terminal conversational reply.
func (a *Agent) runRouter(ctx context.Context, sess *session, sink schemas.EventSink) (schemas.NodeKind, error) {
	var recalled []string
	if a.memory != nil {
		snippets, err := a.memory.Recall(ctx, sess.thread.ID, sess.userMessage, a.cfg.Memory.TopK)
		if err == nil {
			recalled = snippets
		}
	}

	raw, err := a.streamTurn(ctx, sink, schemas.GenerationRequest{
		SystemPrompt: prompt.Router(recalled),
		History:      sess.history,
		UserPrompt:   sess.userMessage,
		Tier:         schemas.TierFast,
	})
	if err != nil {
		return schemas.NodeDone, err
	}

	directives, err := protocol.Decode(raw, schemas.NodeRouter)
	if err != nil {
		return schemas.NodeDone, err
	}

	switch d := directives[0].(type) {
	case *schemas.Routing:
		if !schemas.RoutableNodes[d.NextNode] {
			// Unknown target is a terminal decision, not a crash.
			a.log.Warn("Router chose unknown node, ending run", zap.String("next_node", string(d.NextNode)))
			return schemas.NodeDone, nil
		}
		if d.UserMessage != "" {
			sess.userMessage = d.UserMessage
		}
		a.rememberTurn(ctx, sess)
		return d.NextNode, nil

	case *schemas.Explanation:
		a.rememberTurn(ctx, sess)
		return schemas.NodeDone, a.emitDirective(ctx, sess, sink, d)

	default:
		return schemas.NodeDone, fmt.Errorf("router produced unexpected directive %q", d.Kind())
	}
}

// runAssetCollector secures exactly one supporting asset through the page
// capture or image search tools, then hands off to planning.
func (a *Agent) runAssetCollector(ctx context.Context, sess *session, sink schemas.EventSink) (schemas.NodeKind, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: prompt.AssetCollector(),
		History:      sess.history,
		UserPrompt:   sess.userMessage,
		Tier:         schemas.TierPowerful,
	}
	declarations := a.registry.Declarations()

	turn, err := a.llm.GenerateWithTools(ctx, req, declarations)
	if err != nil {
		return schemas.NodeDone, err
	}

	for round := 0; len(turn.ToolCalls) > 0; round++ {
		if round >= maxToolRounds {
			return schemas.NodeDone, fmt.Errorf("asset collection exceeded %d tool rounds", maxToolRounds)
		}
		results := a.registry.ExecuteAll(ctx, turn.ToolCalls)
		turn, err = a.llm.SubmitToolResults(ctx, req, declarations, turn.ToolCalls, results)
		if err != nil {
			return schemas.NodeDone, err
		}
	}

	directives, err := protocol.Decode(turn.Text, schemas.NodeAssetCollector)
	if err != nil {
		return schemas.NodeDone, err
	}
	asset := directives[0].(*schemas.Asset)

	if err := a.emitDirective(ctx, sess, sink, asset); err != nil {
		return schemas.NodeDone, err
	}
	sess.recordAsset(asset)
	return schemas.NodeExaminer, nil
}

// runExaminer produces the two-part planning output and pauses the run for
// the user's confirmation.
func (a *Agent) runExaminer(ctx context.Context, sess *session, sink schemas.EventSink) (schemas.NodeKind, error) {
	action, url := sess.assetContext()

	raw, err := a.streamTurn(ctx, sink, schemas.GenerationRequest{
		SystemPrompt: prompt.Examiner(action, url),
		History:      sess.history,
		UserPrompt:   sess.userMessage,
		Tier:         schemas.TierPowerful,
	})
	if err != nil {
		return schemas.NodeDone, err
	}

	directives, err := protocol.Decode(raw, schemas.NodeExaminer)
	if err != nil {
		return schemas.NodeDone, err
	}
	asset := directives[0].(*schemas.Asset)
	planDirective := directives[1].(*schemas.Plan)

	plan := schemas.BuildPlan{
		ThreadID:  sess.thread.ID,
		PlanID:    planDirective.PlanID,
		Text:      planDirective.Data,
		AssetURL:  planDirective.URL,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.SavePlan(ctx, plan); err != nil {
		return schemas.NodeDone, err
	}
	sess.plan = &plan
	sess.manifest = manifestFromPlan(plan.Text)
	for _, f := range sess.files {
		sess.manifest.MarkDone(f.Path)
	}

	if err := a.emitDirective(ctx, sess, sink, asset); err != nil {
		return schemas.NodeDone, err
	}
	return schemas.NodeDone, a.emitDirective(ctx, sess, sink, planDirective)
}

// runCoder produces one complete file, persists it, and decides whether to
// loop, hand off to the counterpart coder, or finish.
func (a *Agent) runCoder(ctx context.Context, kind schemas.NodeKind, sess *session, sink schemas.EventSink) (schemas.NodeKind, error) {
	raw, err := a.streamTurn(ctx, sink, schemas.GenerationRequest{
		SystemPrompt: prompt.Coder(kind, sess.plan, sess.files, sess.missingFiles()),
		History:      sess.history,
		UserPrompt:   sess.userMessage,
		Tier:         schemas.TierPowerful,
	})
	if err != nil {
		return schemas.NodeDone, err
	}

	directives, err := protocol.Decode(raw, kind)
	if err != nil {
		return schemas.NodeDone, err
	}
	code := directives[0].(*schemas.Code)

	var lintErr error
	if a.checker != nil {
		if lintErr = a.checker.Check(ctx, code.File, code.Content); lintErr != nil {
			// Persist anyway; the user sees the file while the repair turn
			// below rewrites it.
			a.log.Warn("Generated file failed syntax check", zap.String("path", code.File), zap.Error(lintErr))
		}
	}

	if err := a.store.UpsertFile(ctx, sess.thread.ProjectID, code.File, code.Content); err != nil {
		return schemas.NodeDone, err
	}
	sess.applyFile(code.File, code.Content)
	if sess.manifest != nil {
		sess.manifest.MarkDone(code.File)
	}

	if err := a.emitDirective(ctx, sess, sink, code); err != nil {
		return schemas.NodeDone, err
	}

	if lintErr != nil {
		// A broken file is never silently accepted: loop in place with the
		// checker's finding so the model rewrites it.
		sess.userMessage = fmt.Sprintf("The file %s you just wrote fails syntax checking: %v. Rewrite the complete corrected file.", code.File, lintErr)
		return kind, nil
	}

	if sess.codingComplete(code.IsAchieved) {
		return schemas.NodeDone, nil
	}
	if code.NextFile != "" {
		return nodeForPath(code.NextFile), nil
	}
	return kind, nil
}

// runTerminal emits exactly one command. The command's output arrives as the
// next user message, so the run always pauses here; the self-loop happens
// across runs, not within one.
func (a *Agent) runTerminal(ctx context.Context, sess *session, sink schemas.EventSink) (schemas.NodeKind, error) {
	raw, err := a.streamTurn(ctx, sink, schemas.GenerationRequest{
		SystemPrompt: prompt.Terminal(sess.plan),
		History:      sess.history,
		UserPrompt:   sess.userMessage,
		Tier:         schemas.TierPowerful,
	})
	if err != nil {
		return schemas.NodeDone, err
	}

	directives, err := protocol.Decode(raw, schemas.NodeTerminalExecutor)
	if err != nil {
		return schemas.NodeDone, err
	}
	return schemas.NodeDone, a.emitDirective(ctx, sess, sink, directives[0])
}

func (a *Agent) runFeatureSuggester(ctx context.Context, sess *session, sink schemas.EventSink) (schemas.NodeKind, error) {
	raw, err := a.streamTurn(ctx, sink, schemas.GenerationRequest{
		SystemPrompt: prompt.FeatureSuggester(sess.plan),
		History:      sess.history,
		UserPrompt:   sess.userMessage,
		Tier:         schemas.TierFast,
	})
	if err != nil {
		return schemas.NodeDone, err
	}

	directives, err := protocol.Decode(raw, schemas.NodeFeatureSuggester)
	if err != nil {
		return schemas.NodeDone, err
	}
	return schemas.NodeDone, a.emitDirective(ctx, sess, sink, directives[0])
}

// streamTurn runs one streaming model invocation, forwarding every fragment
// to the sink as it arrives and returning the buffered whole for decoding.
func (a *Agent) streamTurn(ctx context.Context, sink schemas.EventSink, req schemas.GenerationRequest) (string, error) {
	fragments, errCh := a.llm.GenerateStream(ctx, req)

	var buf strings.Builder
	for fragment := range fragments {
		sink.Fragment(fragment.Text)
		buf.WriteString(fragment.Text)
	}
	if err := <-errCh; err != nil {
		return "", err
	}
	return buf.String(), nil
}

// rememberTurn stores the user's message in long-term memory. Failures only
// log; memory never blocks a run.
func (a *Agent) rememberTurn(ctx context.Context, sess *session) {
	if a.memory == nil || strings.TrimSpace(sess.userMessage) == "" {
		return
	}
	if err := a.memory.Remember(ctx, sess.thread.ID, sess.userMessage); err != nil {
		a.log.Warn("Failed to store memory", zap.Error(err))
	}
}
