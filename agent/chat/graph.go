package chat

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/careloop/healthcoach/agent/nodes/chat"
)

func (s *Service) compileHandleTurnGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_turn",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateTurn(in, s.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_turn: %w", err)
	}

	if err := graph.AddLambdaNode("resolve_input",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ResolveInput(ctx, in, s.threads)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node resolve_input: %w", err)
	}

	if err := graph.AddLambdaNode("inject_facts",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.InjectFacts(ctx, in, s.medications)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node inject_facts: %w", err)
	}

	if err := graph.AddLambdaNode("start_run",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.StartRun(ctx, in, s.coordinator, s.registry, s.threads)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node start_run: %w", err)
	}

	if err := graph.AddLambdaNode("open_stream",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.OpenStream(in, s.registry.Background)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node open_stream: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_turn"},
		{"validate_turn", "resolve_input"},
		{"resolve_input", "inject_facts"},
		{"inject_facts", "start_run"},
		{"start_run", "open_stream"},
		{"open_stream", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("chat.handle_turn"))
	if err != nil {
		return nil, fmt.Errorf("compile turn graph: %w", err)
	}
	return runner, nil
}
