package contract

import (
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
)

// AgentID is the stable identifier of an agent descriptor inside the
// roster arena. Handoff edges reference IDs, never live descriptors, so
// the graph cannot form ownership cycles.
type AgentID string

const (
	AgentSupervisor   AgentID = "supervisor"
	AgentPharmacist   AgentID = "pharmacist"
	AgentPsychologist AgentID = "psychologist"
)

// AgentDescriptor describes one agent: its display name, prompt text,
// the tools it may invoke, and the agents it may hand control to.
// Descriptors are immutable after roster construction.
type AgentDescriptor struct {
	ID           AgentID
	Name         string
	Instructions string
	Tools        []*schema.ToolInfo
	Handoffs     []AgentID
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// TranscriptMessage is one entry of the conversation given to a
// generation run.
type TranscriptMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type EventKind string

const (
	EventAgentActivated EventKind = "agent_activated"
	EventTextDelta      EventKind = "text_delta"
	EventToolResult     EventKind = "tool_result"
	EventTerminal       EventKind = "terminal"
)

type TerminalReason string

const (
	TerminalCompleted TerminalReason = "completed"
	TerminalError     TerminalReason = "error"
	TerminalCancelled TerminalReason = "cancelled"
)

// RawEvent is one event of a generation run. Only the fields for the
// event's Kind are set; consumers must ignore kinds they do not
// recognize so the engine can grow new event types.
type RawEvent struct {
	Kind EventKind

	// EventAgentActivated
	Agent string

	// EventTextDelta
	Delta string

	// EventToolResult
	Tool ToolResult

	// EventTerminal
	Reason TerminalReason
	Err    string
}

// ToolRequest is a tool invocation decided by the generation engine.
type ToolRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult reports a tool invocation back into the run. Failures are
// carried in Error as a value; a failing tool never aborts the turn.
type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ClientToolCall is an instruction queued for the presentation layer,
// e.g. a theme switch. It is delivered after the snapshot stream ends.
type ClientToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// RunContext carries per-run mutable state shared with tool executors:
// the thread the run belongs to and the client-facing instructions
// queued by utility tools. Safe for concurrent use.
type RunContext struct {
	ThreadID string

	mu          sync.Mutex
	clientCalls []ClientToolCall
}

func NewRunContext(threadID string) *RunContext {
	return &RunContext{ThreadID: threadID}
}

func (rc *RunContext) QueueClientCall(call ClientToolCall) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.clientCalls = append(rc.clientCalls, call)
}

// ClientCalls returns a copy of the queued client instructions.
func (rc *RunContext) ClientCalls() []ClientToolCall {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]ClientToolCall, len(rc.clientCalls))
	copy(out, rc.clientCalls)
	return out
}

// RunRequest is everything the generation engine needs to start a run:
// the entry agent, the handoff graph reachable from it, and the turn's
// transcript. InjectedContext, when non-empty, is prepended as a
// synthetic system-level note, not as a user utterance.
type RunRequest struct {
	Root            *AgentDescriptor
	Agents          map[AgentID]*AgentDescriptor
	Transcript      []TranscriptMessage
	InjectedContext string
	Run             *RunContext
}

// Resolve returns the descriptor for id from the request's reachable
// graph.
func (r RunRequest) Resolve(id AgentID) (*AgentDescriptor, bool) {
	d, ok := r.Agents[id]
	return d, ok && d != nil
}

// Now is aliased so fakes can pin timestamps in tests.
type Now func() time.Time
