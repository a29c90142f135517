// Package tool declares the utility tools each agent may invoke and
// executes them synchronously inside a generation run. Tool failures
// are reported as values so a broken tool never aborts the turn.
package tool

import (
	"github.com/cloudwego/eino/schema"

	contractx "github.com/careloop/healthcoach/agent/contract"
)

const (
	ToolSaveMedication    = "save_medication"
	ToolSwitchTheme       = "switch_theme"
	ToolListMedications   = "list_medications"
	ToolAddMedication     = "add_medication"
	ToolGetMedication     = "get_medication"
	ToolRemoveMedication  = "remove_medication"
	clientThemeToolName   = "switch_theme"
	medicationNameArgName = "medication_name"
)

// InfosForAgent returns the tool declarations for one agent. The
// supervisor only carries the utility tools (fact capture, theme
// switch); the pharmacist carries the medicine-cabinet CRUD set; the
// psychologist has no tools.
func InfosForAgent(agent contractx.AgentID) []*schema.ToolInfo {
	switch agent {
	case contractx.AgentSupervisor:
		return []*schema.ToolInfo{
			{
				Name: ToolSaveMedication,
				Desc: "Record a medication when the user mentions taking, buying, or using any medication. Format the medication name properly (e.g., 'ibuprofen' -> 'Ibuprofen', 'vitamin d' -> 'Vitamin D'). Duplicates are prevented automatically, so this is safe to call each time a medication is mentioned.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					medicationNameArgName: {Type: schema.String, Desc: "Name of the medication to record", Required: true},
				}),
			},
			{
				Name: ToolSwitchTheme,
				Desc: "Switch the chat interface between light and dark color schemes. Accepts 'light' or 'dark' as the theme parameter.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"theme": {Type: schema.String, Desc: "Requested color scheme: light or dark", Required: true},
				}),
			},
		}
	case contractx.AgentPharmacist:
		return []*schema.ToolInfo{
			{
				Name: ToolListMedications,
				Desc: "List all medications in the patient's medicine cabinet. Use this to see what medications the patient currently has.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
			},
			{
				Name: ToolAddMedication,
				Desc: "Add a new medication to the patient's medicine cabinet. Use this when the patient mentions taking, buying, or using a new medication.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					medicationNameArgName: {Type: schema.String, Desc: "Name of the medication to add", Required: true},
				}),
			},
			{
				Name: ToolGetMedication,
				Desc: "Get information about a specific medication in the patient's medicine cabinet.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					medicationNameArgName: {Type: schema.String, Desc: "Name of the medication to look up", Required: true},
				}),
			},
			{
				Name: ToolRemoveMedication,
				Desc: "Remove a medication from the patient's medicine cabinet. Use this when the patient stops taking a medication.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					medicationNameArgName: {Type: schema.String, Desc: "Name of the medication to remove", Required: true},
				}),
			},
		}
	default:
		return nil
	}
}

func allowedTools(agent contractx.AgentID) map[string]struct{} {
	infos := InfosForAgent(agent)
	out := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		if info != nil && info.Name != "" {
			out[info.Name] = struct{}{}
		}
	}
	return out
}
