package contract

import "context"

// EventSource is a pull-based view of one generation run. Next blocks
// until an event is available and returns io.EOF once the stream is
// exhausted. Close abandons the run; pending engine work is cancelled
// and no further events are delivered.
type EventSource interface {
	Next(ctx context.Context) (RawEvent, error)
	Close()
}

// Engine is the opaque generation capability. StartRun either returns a
// live event source or a single terminal error; once started, a run is
// never retried by this core.
type Engine interface {
	StartRun(ctx context.Context, req RunRequest) (EventSource, error)
}

// ToolGateway executes one utility tool invocation synchronously inside
// a generation run. Tool failures come back as ToolResult.Error values;
// the error return is reserved for broken invocations (unknown agent,
// nil run context) that indicate a programming bug.
type ToolGateway interface {
	Execute(ctx context.Context, run *RunContext, agent AgentID, req ToolRequest) (ToolResult, error)
}
