// Package chatnode holds the pure steps of the turn-handling graph.
// Each node takes the shared graph state, does one thing, and passes
// the state on; the chat service wires them into an eino graph.
package chatnode

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/careloop/healthcoach/agent/contract"
	runx "github.com/careloop/healthcoach/agent/run"
	widgetx "github.com/careloop/healthcoach/agent/widget"
)

var ErrInvalidThread = errors.New("thread id is empty")

type GraphInput struct {
	ThreadID string
	// Message is the user utterance for this turn. When empty the turn
	// replays the thread's latest item instead.
	Message string
}

type GraphOutput struct {
	// Stream is nil for an empty turn.
	Stream *widgetx.Stream
	Run    *contractx.RunContext
	Empty  bool
}

type GraphState struct {
	ThreadID string
	Message  string
	Now      time.Time

	// Empty marks a turn that produces no run: there is nothing to
	// respond to, e.g. the thread's latest item is a tool completion.
	Empty bool
	Facts string

	Run    *runx.Run
	RunCtx *contractx.RunContext
}

func ValidateTurn(in GraphInput, nowFn contractx.Now) (*GraphState, error) {
	threadID := strings.TrimSpace(in.ThreadID)
	if threadID == "" {
		return nil, ErrInvalidThread
	}

	return &GraphState{
		ThreadID: threadID,
		Message:  strings.TrimSpace(in.Message),
		Now:      nowFn().UTC(),
	}, nil
}
