package chatnode

import (
	"context"

	contractx "github.com/careloop/healthcoach/agent/contract"
	rosterx "github.com/careloop/healthcoach/agent/roster"
	runx "github.com/careloop/healthcoach/agent/run"
	threadx "github.com/careloop/healthcoach/agent/thread"
)

// StartRun launches the generation run for the turn through the
// routing coordinator. The transcript already contains the resolved
// user message, recorded by ResolveInput.
func StartRun(ctx context.Context, in *GraphState, coordinator *runx.Coordinator, registry *rosterx.Registry, threads *threadx.Store) (*GraphState, error) {
	if in.Empty {
		return in, nil
	}

	root := registry.Root()
	runCtx := contractx.NewRunContext(in.ThreadID)

	run, err := coordinator.StartRun(ctx, contractx.RunRequest{
		Root:            root,
		Agents:          registry.Reachable(root.ID),
		Transcript:      threads.Transcript(ctx, in.ThreadID),
		InjectedContext: in.Facts,
		Run:             runCtx,
	})
	if err != nil {
		return nil, err
	}

	in.Run = run
	in.RunCtx = runCtx
	return in, nil
}
