// File: internal/agent/helper_test.go
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/loom/api/schemas"
)

// scriptedLLM replays canned responses in order. Streaming responses are
// split into small fragments to exercise the relay path.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	toolTurns []*schemas.ToolTurnResponse
	requests  []schemas.GenerationRequest

	// blockStream, when set, holds the first stream open until released.
	blockStream chan struct{}
}

func (s *scriptedLLM) nextResponse() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.responses) == 0 {
		return "", fmt.Errorf("scripted LLM exhausted")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedLLM) recordRequest(req schemas.GenerationRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
}

func (s *scriptedLLM) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	s.recordRequest(req)
	return s.nextResponse()
}

func (s *scriptedLLM) GenerateStream(ctx context.Context, req schemas.GenerationRequest) (<-chan schemas.Fragment, <-chan error) {
	s.recordRequest(req)
	fragments := make(chan schemas.Fragment, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(fragments)
		defer close(errCh)

		if s.blockStream != nil {
			select {
			case <-s.blockStream:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}

		resp, err := s.nextResponse()
		if err != nil {
			errCh <- err
			return
		}
		for len(resp) > 0 {
			n := 12
			if n > len(resp) {
				n = len(resp)
			}
			fragments <- schemas.Fragment{Text: resp[:n]}
			resp = resp[n:]
		}
	}()
	return fragments, errCh
}

func (s *scriptedLLM) GenerateWithTools(ctx context.Context, req schemas.GenerationRequest, tools []schemas.ToolDeclaration) (*schemas.ToolTurnResponse, error) {
	s.recordRequest(req)
	return s.nextToolTurn()
}

func (s *scriptedLLM) SubmitToolResults(ctx context.Context, req schemas.GenerationRequest, tools []schemas.ToolDeclaration, calls []schemas.ToolCall, results []schemas.ToolResult) (*schemas.ToolTurnResponse, error) {
	return s.nextToolTurn()
}

func (s *scriptedLLM) nextToolTurn() (*schemas.ToolTurnResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.toolTurns) == 0 {
		return nil, fmt.Errorf("scripted LLM tool turns exhausted")
	}
	turn := s.toolTurns[0]
	s.toolTurns = s.toolTurns[1:]
	return turn, nil
}

func (s *scriptedLLM) Close() error { return nil }

var _ schemas.LLMClient = (*scriptedLLM)(nil)

// memStore is an in-memory schemas.Store for orchestrator tests.
type memStore struct {
	mu       sync.Mutex
	messages map[string][]schemas.Message
	plans    map[string]schemas.BuildPlan
	files    map[string]map[string]string // projectID -> path -> content

	// preloaded state returned by LoadThread.
	plan         *schemas.BuildPlan
	initialFiles []schemas.ProjectFile
}

func newMemStore() *memStore {
	return &memStore{
		messages: make(map[string][]schemas.Message),
		plans:    make(map[string]schemas.BuildPlan),
		files:    make(map[string]map[string]string),
	}
}

func (m *memStore) LoadThread(ctx context.Context, threadID, projectID, ownerID string) (*schemas.ThreadState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.messages[threadID]
	if len(history) > schemas.HistoryWindow {
		history = history[len(history)-schemas.HistoryWindow:]
	}

	files := append([]schemas.ProjectFile(nil), m.initialFiles...)
	for path, content := range m.files[projectID] {
		files = append(files, schemas.ProjectFile{ProjectID: projectID, Path: path, Content: content})
	}

	return &schemas.ThreadState{
		Thread:  schemas.Thread{ID: threadID, ProjectID: projectID, OwnerID: ownerID, CreatedAt: time.Now()},
		History: history,
		Plan:    m.plan,
		Files:   files,
	}, nil
}

func (m *memStore) AppendMessage(ctx context.Context, msg schemas.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ThreadID] = append(m.messages[msg.ThreadID], msg)
	return nil
}

func (m *memStore) SavePlan(ctx context.Context, plan schemas.BuildPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.ThreadID] = plan
	return nil
}

func (m *memStore) UpsertFile(ctx context.Context, projectID, path, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files[projectID] == nil {
		m.files[projectID] = make(map[string]string)
	}
	m.files[projectID][path] = content
	return nil
}

func (m *memStore) ListFiles(ctx context.Context, projectID string) ([]schemas.ProjectFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var files []schemas.ProjectFile
	for path, content := range m.files[projectID] {
		files = append(files, schemas.ProjectFile{ProjectID: projectID, Path: path, Content: content})
	}
	return files, nil
}

var _ schemas.Store = (*memStore)(nil)

// captureSink records everything forwarded to the client in order.
type captureSink struct {
	mu         sync.Mutex
	fragments  []string
	directives []string
}

func (c *captureSink) Fragment(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fragments = append(c.fragments, text)
}

func (c *captureSink) Directive(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.directives = append(c.directives, string(payload))
}

func (c *captureSink) allFragments() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out string
	for _, f := range c.fragments {
		out += f
	}
	return out
}

func (c *captureSink) directivePayloads() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.directives...)
}

var _ schemas.EventSink = (*captureSink)(nil)

func wrapBlock(payload string) string {
	return "___start___\n" + payload + "\n___end___"
}
