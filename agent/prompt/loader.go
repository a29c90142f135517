package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/supervisor.txt
	supervisorRaw string

	//go:embed template/pharmacist.txt
	pharmacistRaw string

	//go:embed template/psychologist.txt
	psychologistRaw string
)

// PromptSet holds the loaded instruction text for each agent.
type PromptSet struct {
	Supervisor   string
	Pharmacist   string
	Psychologist string
}

// LoadPromptSet returns the embedded instructions with surrounding
// whitespace trimmed. Safe to call concurrently.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Supervisor:   strings.TrimSpace(supervisorRaw),
		Pharmacist:   strings.TrimSpace(pharmacistRaw),
		Psychologist: strings.TrimSpace(psychologistRaw),
	}
}
