// File: internal/agent/agent.go

// Package agent implements the build orchestrator: a state machine that
// drives the model through specialized phases (routing, asset collection,
// planning, coding, command execution, feature suggestion), validates every
// response against the directive protocol, and persists results as it goes.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/loom/api/schemas"
	"github.com/xkilldash9x/loom/internal/config"
	"github.com/xkilldash9x/loom/internal/protocol"
	"github.com/xkilldash9x/loom/internal/tools"
)

const defaultMaxTurns = 24

// Agent executes build runs. One Agent serves all threads; per-thread
// sequencing is enforced internally.
type Agent struct {
	store    schemas.Store
	llm      schemas.LLMClient
	registry *tools.Registry
	checker  *tools.SyntaxChecker
	memory   schemas.MemoryRecall
	cfg      config.AgentConfig
	log      *zap.Logger

	mu          sync.Mutex
	threadLocks map[string]*sync.Mutex
}

// Option customizes an Agent beyond its required collaborators.
type Option func(*Agent)

// WithSyntaxChecker attaches source validation for generated files.
func WithSyntaxChecker(checker *tools.SyntaxChecker) Option {
	return func(a *Agent) { a.checker = checker }
}

// WithMemory attaches long-term recall for the routing phase.
func WithMemory(recall schemas.MemoryRecall) Option {
	return func(a *Agent) { a.memory = recall }
}

func New(store schemas.Store, llm schemas.LLMClient, registry *tools.Registry, cfg config.AgentConfig, logger *zap.Logger, opts ...Option) *Agent {
	a := &Agent{
		store:       store,
		llm:         llm,
		registry:    registry,
		checker:     tools.NewSyntaxChecker(false),
		memory:      nil,
		cfg:         cfg,
		log:         logger.Named("agent"),
		threadLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes one orchestrator run for the thread: load the checkpoint,
// start at the router, and execute nodes until a terminal state. Directives
// and raw text fragments are forwarded to the sink in production order.
// A second concurrent run on the same thread returns ErrRunInProgress.
func (a *Agent) Run(ctx context.Context, input schemas.RunInput, sink schemas.EventSink) (err error) {
	lock := a.lockFor(input.ThreadID)
	if !lock.TryLock() {
		return ErrRunInProgress
	}
	defer lock.Unlock()

	defer func() {
		if r := recover(); r != nil {
			a.log.Error("Run panicked", zap.String("thread_id", input.ThreadID), zap.Any("panic", r))
			err = fmt.Errorf("internal error during run: %v", r)
		}
	}()

	state, err := a.store.LoadThread(ctx, input.ThreadID, input.ProjectID, input.OwnerID)
	if err != nil {
		return err
	}

	if err := a.store.AppendMessage(ctx, schemas.Message{
		ID:       uuid.NewString(),
		ThreadID: input.ThreadID,
		Role:     schemas.RoleUser,
		Content:  input.Message,
		Images:   input.Images,
	}); err != nil {
		return err
	}

	sess := newSession(state, input)
	node := schemas.NodeRouter
	maxTurns := a.cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}

	for turn := 0; node != schemas.NodeDone; turn++ {
		if turn >= maxTurns {
			return fmt.Errorf("run exceeded %d node executions without completing", maxTurns)
		}
		if ctx.Err() != nil {
			// Client gone: abandon outstanding work instead of producing
			// unconsumed output.
			return ctx.Err()
		}

		started := time.Now()
		next, execErr := a.executeNode(ctx, node, sess, sink)
		a.log.Info("Node executed",
			zap.String("thread_id", input.ThreadID),
			zap.String("node", string(node)),
			zap.String("next", string(next)),
			zap.Duration("duration", time.Since(started)),
			zap.Error(execErr),
		)

		if execErr != nil {
			var decodeErr *protocol.DecodeError
			if errors.As(execErr, &decodeErr) {
				return a.emitDecodeFallback(ctx, sess, sink, decodeErr)
			}
			return execErr
		}
		node = next
	}
	return nil
}

func (a *Agent) executeNode(ctx context.Context, node schemas.NodeKind, sess *session, sink schemas.EventSink) (schemas.NodeKind, error) {
	switch node {
	case schemas.NodeRouter:
		return a.runRouter(ctx, sess, sink)
	case schemas.NodeAssetCollector:
		return a.runAssetCollector(ctx, sess, sink)
	case schemas.NodeExaminer:
		return a.runExaminer(ctx, sess, sink)
	case schemas.NodeFrontendCoder, schemas.NodeBackendCoder:
		return a.runCoder(ctx, node, sess, sink)
	case schemas.NodeTerminalExecutor:
		return a.runTerminal(ctx, sess, sink)
	case schemas.NodeFeatureSuggester:
		return a.runFeatureSuggester(ctx, sess, sink)
	default:
		return schemas.NodeDone, fmt.Errorf("no handler for node %q", node)
	}
}

// emitDecodeFallback surfaces a generic in-character reply for an undecodable
// model response and ends the run cleanly. The offending raw text stays in
// the logs, never on the wire.
func (a *Agent) emitDecodeFallback(ctx context.Context, sess *session, sink schemas.EventSink, decodeErr *protocol.DecodeError) error {
	a.log.Warn("Model output failed directive decoding",
		zap.String("thread_id", sess.thread.ID),
		zap.Error(decodeErr),
	)

	fallback := &schemas.Explanation{
		Type: schemas.DirectiveExplanation,
		Role: schemas.RoleAI,
		Data: decodeFallbackMessage,
	}
	return a.emitDirective(ctx, sess, sink, fallback)
}

// emitDirective serializes a directive to the wire, forwards it, and records
// it as an agent message in both the checkpoint store and the in-run history.
func (a *Agent) emitDirective(ctx context.Context, sess *session, sink schemas.EventSink, d schemas.Directive) error {
	payload, err := protocol.MarshalWire(d)
	if err != nil {
		return err
	}
	sink.Directive(payload)

	if err := a.store.AppendMessage(ctx, schemas.Message{
		ID:       uuid.NewString(),
		ThreadID: sess.thread.ID,
		Role:     schemas.RoleAgent,
		Content:  string(payload),
	}); err != nil {
		return err
	}
	sess.recordTurn(schemas.RoleAgent, string(payload))
	return nil
}

func (a *Agent) lockFor(threadID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.threadLocks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		a.threadLocks[threadID] = lock
	}
	return lock
}

var _ schemas.Runner = (*Agent)(nil)
