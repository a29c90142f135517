// Package engine adapts streamed OpenAI chat completions to the raw
// event stream the rest of the core consumes. The engine owns the
// handoff loop: hand-off tool calls switch the active agent and surface
// as discrete agent-activation events, utility tool calls execute
// synchronously through the tool gateway and feed their results back
// into the model's context.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v2"
	"github.com/rs/zerolog/log"

	contractx "github.com/careloop/healthcoach/agent/contract"
)

const defaultMaxTurns = 10

// Config selects the model and bounds the handoff/tool loop.
type Config struct {
	Model string `envconfig:"MODEL" split_words:"true" default:"gpt-4.1-mini"`
	// MaxTurns caps model round-trips within one run so an arbitrarily
	// long hand-off chain cannot spin forever.
	MaxTurns int `envconfig:"MAX_TURNS" split_words:"true" default:"10"`
}

// OpenAIEngine implements contract.Engine on top of the OpenAI SDK.
type OpenAIEngine struct {
	client   *openaisdk.Client
	tools    contractx.ToolGateway
	model    string
	maxTurns int
}

var _ contractx.Engine = (*OpenAIEngine)(nil)

func New(client *openaisdk.Client, tools contractx.ToolGateway, cfg Config) (*OpenAIEngine, error) {
	if client == nil {
		return nil, errors.New("openai client is required")
	}
	if tools == nil {
		return nil, errors.New("tool gateway is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("model is required")
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &OpenAIEngine{
		client:   client,
		tools:    tools,
		model:    model,
		maxTurns: maxTurns,
	}, nil
}

// StartRun validates the request and launches the run's producer
// goroutine. Start failures surface as one terminal error; after that
// the caller only sees the event stream.
func (e *OpenAIEngine) StartRun(ctx context.Context, req contractx.RunRequest) (contractx.EventSource, error) {
	if req.Root == nil {
		return nil, fmt.Errorf("%w: root agent is required", contractx.ErrRunStart)
	}
	if len(req.Transcript) == 0 {
		return nil, fmt.Errorf("%w: transcript is empty", contractx.ErrRunStart)
	}
	if req.Run == nil {
		req.Run = contractx.NewRunContext("")
	}

	src := newRunSource(ctx)
	go e.run(src.ctx, req, src)
	return src, nil
}

func (e *OpenAIEngine) run(ctx context.Context, req contractx.RunRequest, src *runSource) {
	defer src.finish()

	active := req.Root
	if !src.emit(ctx, contractx.RawEvent{Kind: contractx.EventAgentActivated, Agent: active.Name}) {
		return
	}

	messages := initialMessages(active, req)

	for turn := 0; turn < e.maxTurns; turn++ {
		tools, err := runTools(active)
		if err != nil {
			src.emit(ctx, terminalError(err))
			return
		}

		stream := e.client.Chat.Completions.NewStreaming(ctx, openaisdk.ChatCompletionNewParams{
			Model:    openaisdk.ChatModel(e.model),
			Messages: messages,
			Tools:    tools,
		})

		var acc openaisdk.ChatCompletionAccumulator
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !src.emit(ctx, contractx.RawEvent{Kind: contractx.EventTextDelta, Delta: delta}) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			src.emit(ctx, terminalFor(ctx, err))
			return
		}
		if len(acc.Choices) == 0 {
			src.emit(ctx, terminalError(fmt.Errorf("%w: empty completion", contractx.ErrSchemaViolation)))
			return
		}

		final := acc.Choices[0].Message
		if len(final.ToolCalls) == 0 {
			src.emit(ctx, contractx.RawEvent{Kind: contractx.EventTerminal, Reason: contractx.TerminalCompleted})
			return
		}

		messages = append(messages, final.ToParam())
		handedOff := false

		for _, call := range final.ToolCalls {
			name := strings.TrimSpace(call.Function.Name)
			if target, ok := handoffTarget(active, req, name); ok {
				messages = append(messages, openaisdk.ToolMessage(
					fmt.Sprintf("Transferred to %s. Continue the conversation as %s.", target.Name, target.Name),
					call.ID,
				))
				active = target
				handedOff = true
				if !src.emit(ctx, contractx.RawEvent{Kind: contractx.EventAgentActivated, Agent: target.Name}) {
					return
				}
				continue
			}

			result := e.executeTool(ctx, req, active, name, call.Function.Arguments)
			if !src.emit(ctx, contractx.RawEvent{Kind: contractx.EventToolResult, Tool: result}) {
				return
			}
			payload, err := json.Marshal(result)
			if err != nil {
				payload = []byte(fmt.Sprintf(`{"tool":%q,"error":"unencodable result"}`, name))
			}
			messages = append(messages, openaisdk.ToolMessage(string(payload), call.ID))
		}

		if handedOff {
			// The leading system message always carries the active
			// agent's instructions.
			messages[0] = openaisdk.SystemMessage(active.Instructions)
		}
	}

	src.emit(ctx, terminalError(fmt.Errorf("%w: run exceeded %d turns", contractx.ErrRunFailed, e.maxTurns)))
}

func (e *OpenAIEngine) executeTool(ctx context.Context, req contractx.RunRequest, active *contractx.AgentDescriptor, name, rawArgs string) contractx.ToolResult {
	args := map[string]any{}
	if trimmed := strings.TrimSpace(rawArgs); trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
			return contractx.ToolResult{Tool: name, Error: "invalid tool arguments"}
		}
	}

	result, err := e.tools.Execute(ctx, req.Run, active.ID, contractx.ToolRequest{Tool: name, Args: args})
	if err != nil {
		// A gateway error is a wiring bug; report it into the run as a
		// failure value so the agent can apologize instead of dying.
		log.Error().Err(err).Str("tool", name).Msg("tool gateway error")
		return contractx.ToolResult{Tool: name, Error: "tool execution failed"}
	}
	return result
}

// HandoffToolName is the pseudo-tool the model calls to transfer
// control, e.g. to_pharmacist.
func HandoffToolName(id contractx.AgentID) string {
	return "to_" + string(id)
}

func handoffTarget(active *contractx.AgentDescriptor, req contractx.RunRequest, toolName string) (*contractx.AgentDescriptor, bool) {
	for _, id := range active.Handoffs {
		if toolName != HandoffToolName(id) {
			continue
		}
		target, ok := req.Resolve(id)
		return target, ok
	}
	return nil, false
}

func initialMessages(active *contractx.AgentDescriptor, req contractx.RunRequest) []openaisdk.ChatCompletionMessageParamUnion {
	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(req.Transcript)+2)
	messages = append(messages, openaisdk.SystemMessage(active.Instructions))
	if note := strings.TrimSpace(req.InjectedContext); note != "" {
		messages = append(messages, openaisdk.SystemMessage(note))
	}
	for _, msg := range req.Transcript {
		switch msg.Role {
		case contractx.RoleAssistant:
			messages = append(messages, openaisdk.AssistantMessage(msg.Content))
		case contractx.RoleSystem:
			messages = append(messages, openaisdk.SystemMessage(msg.Content))
		default:
			messages = append(messages, openaisdk.UserMessage(msg.Content))
		}
	}
	return messages
}

func terminalError(err error) contractx.RawEvent {
	return contractx.RawEvent{
		Kind:   contractx.EventTerminal,
		Reason: contractx.TerminalError,
		Err:    err.Error(),
	}
}

func terminalFor(ctx context.Context, err error) contractx.RawEvent {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return contractx.RawEvent{
			Kind:   contractx.EventTerminal,
			Reason: contractx.TerminalCancelled,
			Err:    err.Error(),
		}
	}
	return terminalError(err)
}
