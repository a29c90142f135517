package roster

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Background is the light/dark color pair used to style one agent's
// display snapshots.
type Background struct {
	Light string `yaml:"light" json:"light"`
	Dark  string `yaml:"dark" json:"dark"`
}

func defaultBackgrounds() map[string]Background {
	return map[string]Background{
		PsychologistName: {Light: "#e6f0ff", Dark: "#1e3a8a"},
		PharmacistName:   {Light: "#e8f8f0", Dark: "#166534"},
		SupervisorName:   {Light: "#f3f4f6", Dark: "#374151"},
	}
}

// LoadBackgrounds reads per-agent color overrides from a YAML file
// mapping agent display name to a light/dark pair.
func LoadBackgrounds(path string) (map[string]Background, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backgrounds file: %w", err)
	}

	out := map[string]Background{}
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse backgrounds file: %w", err)
	}
	return out, nil
}
