package chatnode

import (
	"context"
	"fmt"

	contractx "github.com/careloop/healthcoach/agent/contract"
	threadx "github.com/careloop/healthcoach/agent/thread"
)

// ResolveInput decides what this turn responds to. A fresh message is
// recorded on the thread; an absent message falls back to the thread's
// latest item, and the turn is empty when that item is missing or is
// not a user utterance.
func ResolveInput(ctx context.Context, in *GraphState, threads *threadx.Store) (*GraphState, error) {
	if in.Message != "" {
		if _, err := threads.AddUserMessage(ctx, in.ThreadID, in.Message); err != nil {
			return nil, fmt.Errorf("%w: record user message: %v", contractx.ErrValidation, err)
		}
		return in, nil
	}

	latest, ok := threads.Latest(ctx, in.ThreadID)
	if !ok || latest.Kind != threadx.KindUserMessage {
		in.Empty = true
	}
	return in, nil
}
