package engine

import (
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"
	openaisdk "github.com/openai/openai-go/v2"

	contractx "github.com/careloop/healthcoach/agent/contract"
)

// runTools builds the OpenAI tool declarations for the active agent:
// its own catalog plus one handoff pseudo-tool per transfer target.
func runTools(active *contractx.AgentDescriptor) ([]openaisdk.ChatCompletionToolUnionParam, error) {
	out := make([]openaisdk.ChatCompletionToolUnionParam, 0, len(active.Tools)+len(active.Handoffs))

	for _, info := range active.Tools {
		if info == nil || info.Name == "" {
			continue
		}
		tool, err := toOpenAITool(info)
		if err != nil {
			return nil, fmt.Errorf("declare tool %s: %w", info.Name, err)
		}
		out = append(out, tool)
	}

	for _, id := range active.Handoffs {
		out = append(out, openaisdk.ChatCompletionFunctionTool(openaisdk.FunctionDefinitionParam{
			Name:        HandoffToolName(id),
			Description: openaisdk.String(fmt.Sprintf("Hand the conversation off to the %s agent.", id)),
			Parameters: openaisdk.FunctionParameters{
				"type":       "object",
				"properties": map[string]any{},
			},
		}))
	}

	return out, nil
}

func toOpenAITool(info *schema.ToolInfo) (openaisdk.ChatCompletionToolUnionParam, error) {
	fn := openaisdk.FunctionDefinitionParam{
		Name:        info.Name,
		Description: openaisdk.String(info.Desc),
	}

	if info.ParamsOneOf != nil {
		openAPISchema, err := info.ParamsOneOf.ToOpenAPIV3()
		if err != nil {
			return openaisdk.ChatCompletionToolUnionParam{}, fmt.Errorf("render params schema: %w", err)
		}
		if openAPISchema != nil {
			raw, err := json.Marshal(openAPISchema)
			if err != nil {
				return openaisdk.ChatCompletionToolUnionParam{}, fmt.Errorf("encode params schema: %w", err)
			}
			params := openaisdk.FunctionParameters{}
			if err := json.Unmarshal(raw, &params); err != nil {
				return openaisdk.ChatCompletionToolUnionParam{}, fmt.Errorf("decode params schema: %w", err)
			}
			fn.Parameters = params
		}
	}

	return openaisdk.ChatCompletionFunctionTool(fn), nil
}
