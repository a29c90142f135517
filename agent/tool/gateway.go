package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/careloop/healthcoach/agent/contract"
	medicationx "github.com/careloop/healthcoach/agent/medication"
)

// HiddenRecorder records a system-internal transcript item. Satisfied
// by the thread store; tools use it to leave markers (e.g. a saved
// medication confirmation) that later turns never mistake for user
// input.
type HiddenRecorder interface {
	AddHidden(ctx context.Context, threadID, content string) error
}

// Gateway executes utility tools against the medicine cabinet and the
// thread transcript. It implements contract.ToolGateway.
type Gateway struct {
	medications medicationx.Store
	hidden      HiddenRecorder
}

var _ contractx.ToolGateway = (*Gateway)(nil)

func NewGateway(medications medicationx.Store, hidden HiddenRecorder) (*Gateway, error) {
	if medications == nil {
		return nil, errors.New("medication store is required")
	}
	return &Gateway{medications: medications, hidden: hidden}, nil
}

func (g *Gateway) Execute(ctx context.Context, run *contractx.RunContext, agent contractx.AgentID, req contractx.ToolRequest) (contractx.ToolResult, error) {
	if run == nil {
		return contractx.ToolResult{}, errors.New("run context is required")
	}
	if _, ok := allowedTools(agent)[req.Tool]; !ok {
		return contractx.ToolResult{
			Tool:  req.Tool,
			Error: fmt.Sprintf("tool=%s is unavailable for agent=%s", req.Tool, agent),
		}, nil
	}

	switch req.Tool {
	case ToolSaveMedication:
		return g.saveMedication(ctx, run, req)
	case ToolSwitchTheme:
		return g.switchTheme(run, req)
	case ToolListMedications:
		return g.listMedications(ctx, req)
	case ToolAddMedication:
		return g.addMedication(ctx, req)
	case ToolGetMedication:
		return g.getMedication(ctx, req)
	case ToolRemoveMedication:
		return g.removeMedication(ctx, req)
	default:
		return contractx.ToolResult{
			Tool:  req.Tool,
			Error: fmt.Sprintf("tool=%s is not implemented", req.Tool),
		}, nil
	}
}

func (g *Gateway) saveMedication(ctx context.Context, run *contractx.RunContext, req contractx.ToolRequest) (contractx.ToolResult, error) {
	name, errMsg := stringArg(req.Args, medicationNameArgName)
	if errMsg != "" {
		return contractx.ToolResult{Tool: req.Tool, Error: errMsg}, nil
	}

	saved, err := g.medications.Upsert(ctx, name)
	if err != nil {
		return contractx.ToolResult{Tool: req.Tool, Error: "failed to save medication"}, nil
	}

	if g.hidden != nil {
		marker := fmt.Sprintf("<MEDICATION_SAVED threadId=%q>%s</MEDICATION_SAVED>", run.ThreadID, saved.Name)
		if err := g.hidden.AddHidden(ctx, run.ThreadID, marker); err != nil {
			log.Warn().Err(err).Str("thread", run.ThreadID).Msg("failed to record saved-medication marker")
		}
	}

	return contractx.ToolResult{
		Tool: req.Tool,
		Result: map[string]any{
			"medication_name": saved.Name,
			"status":          "saved",
		},
	}, nil
}

func (g *Gateway) switchTheme(run *contractx.RunContext, req contractx.ToolRequest) (contractx.ToolResult, error) {
	raw, errMsg := stringArg(req.Args, "theme")
	if errMsg != "" {
		return contractx.ToolResult{Tool: req.Tool, Error: errMsg}, nil
	}

	theme, err := NormalizeColorScheme(raw)
	if err != nil {
		return contractx.ToolResult{Tool: req.Tool, Error: err.Error()}, nil
	}

	run.QueueClientCall(contractx.ClientToolCall{
		Name:      clientThemeToolName,
		Arguments: map[string]any{"theme": theme},
	})

	return contractx.ToolResult{
		Tool:   req.Tool,
		Result: map[string]any{"theme": theme},
	}, nil
}

func (g *Gateway) listMedications(ctx context.Context, req contractx.ToolRequest) (contractx.ToolResult, error) {
	medications, err := g.medications.List(ctx)
	if err != nil {
		return contractx.ToolResult{Tool: req.Tool, Error: "failed to retrieve medications"}, nil
	}
	return contractx.ToolResult{
		Tool: req.Tool,
		Result: map[string]any{
			"medications": medications,
			"count":       len(medications),
		},
	}, nil
}

func (g *Gateway) addMedication(ctx context.Context, req contractx.ToolRequest) (contractx.ToolResult, error) {
	name, errMsg := stringArg(req.Args, medicationNameArgName)
	if errMsg != "" {
		return contractx.ToolResult{Tool: req.Tool, Error: errMsg}, nil
	}

	added, err := g.medications.Upsert(ctx, name)
	if err != nil {
		return contractx.ToolResult{Tool: req.Tool, Error: "failed to add medication"}, nil
	}
	return contractx.ToolResult{
		Tool: req.Tool,
		Result: map[string]any{
			"medication_name": added.Name,
			"status":          "added",
			"created_at":      added.CreatedAt,
		},
	}, nil
}

func (g *Gateway) getMedication(ctx context.Context, req contractx.ToolRequest) (contractx.ToolResult, error) {
	name, errMsg := stringArg(req.Args, medicationNameArgName)
	if errMsg != "" {
		return contractx.ToolResult{Tool: req.Tool, Error: errMsg}, nil
	}

	med, err := g.medications.Get(ctx, name)
	if errors.Is(err, medicationx.ErrNotFound) {
		return contractx.ToolResult{
			Tool: req.Tool,
			Result: map[string]any{
				"found":   false,
				"message": fmt.Sprintf("Medication %q not found in medicine cabinet", medicationx.Normalize(name)),
			},
		}, nil
	}
	if err != nil {
		return contractx.ToolResult{Tool: req.Tool, Error: "failed to retrieve medication"}, nil
	}
	return contractx.ToolResult{
		Tool: req.Tool,
		Result: map[string]any{
			"found":      true,
			"medication": med,
		},
	}, nil
}

func (g *Gateway) removeMedication(ctx context.Context, req contractx.ToolRequest) (contractx.ToolResult, error) {
	name, errMsg := stringArg(req.Args, medicationNameArgName)
	if errMsg != "" {
		return contractx.ToolResult{Tool: req.Tool, Error: errMsg}, nil
	}

	removed, err := g.medications.Delete(ctx, name)
	if err != nil {
		return contractx.ToolResult{Tool: req.Tool, Error: "failed to remove medication"}, nil
	}
	if !removed {
		return contractx.ToolResult{
			Tool: req.Tool,
			Result: map[string]any{
				"medication_name": medicationx.Normalize(name),
				"status":          "not_found",
			},
		}, nil
	}
	return contractx.ToolResult{
		Tool: req.Tool,
		Result: map[string]any{
			"medication_name": medicationx.Normalize(name),
			"status":          "removed",
		},
	}, nil
}

// NormalizeColorScheme maps free-form theme requests onto light/dark.
func NormalizeColorScheme(value string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch {
	case normalized == "light" || normalized == "dark":
		return normalized, nil
	case strings.Contains(normalized, "dark"):
		return "dark", nil
	case strings.Contains(normalized, "light"):
		return "light", nil
	default:
		return "", errors.New("theme must be either 'light' or 'dark'")
	}
}

func stringArg(args map[string]any, key string) (string, string) {
	raw, ok := args[key]
	if !ok {
		return "", key + " is required"
	}
	value, ok := raw.(string)
	if !ok {
		return "", key + " must be a string"
	}
	if strings.TrimSpace(value) == "" {
		return "", key + " is empty"
	}
	return value, ""
}
