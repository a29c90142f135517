// Package roster builds the static agent registry: an arena of agent
// descriptors referenced by stable ID, the handoff graph between them,
// and the per-agent display styling. The roster is immutable after
// construction; changing it means building a new one.
package roster

import (
	"fmt"

	contractx "github.com/careloop/healthcoach/agent/contract"
	promptx "github.com/careloop/healthcoach/agent/prompt"
	toolx "github.com/careloop/healthcoach/agent/tool"
)

const (
	SupervisorName   = "Supervisor"
	PharmacistName   = "Pharmacist"
	PsychologistName = "Psychologist"
)

// Registry is the immutable agent arena plus display-styling lookups.
type Registry struct {
	agents      map[contractx.AgentID]*contractx.AgentDescriptor
	root        contractx.AgentID
	backgrounds map[string]Background
	fallback    Background
}

// Option customizes registry construction.
type Option func(*Registry)

// WithBackgrounds overrides the per-agent display colors, keyed by
// agent display name. Unknown agent names still fall back to the
// supervisor's colors.
func WithBackgrounds(backgrounds map[string]Background) Option {
	return func(r *Registry) {
		for name, bg := range backgrounds {
			r.backgrounds[name] = bg
		}
	}
}

// New wires the three-agent health-coach roster: one supervisor that
// only triages, handing off to a pharmacist (medicine cabinet tools)
// and a psychologist (no tools).
func New(prompts promptx.PromptSet, opts ...Option) (*Registry, error) {
	pharmacist := &contractx.AgentDescriptor{
		ID:           contractx.AgentPharmacist,
		Name:         PharmacistName,
		Instructions: prompts.Pharmacist,
		Tools:        toolx.InfosForAgent(contractx.AgentPharmacist),
	}
	psychologist := &contractx.AgentDescriptor{
		ID:           contractx.AgentPsychologist,
		Name:         PsychologistName,
		Instructions: prompts.Psychologist,
	}
	supervisor := &contractx.AgentDescriptor{
		ID:           contractx.AgentSupervisor,
		Name:         SupervisorName,
		Instructions: prompts.Supervisor,
		Tools:        toolx.InfosForAgent(contractx.AgentSupervisor),
		Handoffs:     []contractx.AgentID{contractx.AgentPharmacist, contractx.AgentPsychologist},
	}

	r := &Registry{
		agents: map[contractx.AgentID]*contractx.AgentDescriptor{
			supervisor.ID:   supervisor,
			pharmacist.ID:   pharmacist,
			psychologist.ID: psychologist,
		},
		root:        supervisor.ID,
		backgrounds: defaultBackgrounds(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.fallback = r.backgrounds[SupervisorName]

	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) validate() error {
	for id, desc := range r.agents {
		if desc.Name == "" {
			return fmt.Errorf("%w: agent %q has no name", contractx.ErrValidation, id)
		}
		if desc.Instructions == "" {
			return fmt.Errorf("%w: agent %q has no instructions", contractx.ErrValidation, id)
		}
		for _, target := range desc.Handoffs {
			if _, ok := r.agents[target]; !ok {
				return fmt.Errorf("%w: agent %q hands off to unknown agent %q", contractx.ErrValidation, id, target)
			}
		}
	}
	if _, ok := r.agents[r.root]; !ok {
		return fmt.Errorf("%w: root agent %q is missing", contractx.ErrValidation, r.root)
	}
	return nil
}

// Root returns the entry-point descriptor for every turn.
func (r *Registry) Root() *contractx.AgentDescriptor {
	return r.agents[r.root]
}

// Get returns the descriptor for id.
func (r *Registry) Get(id contractx.AgentID) (*contractx.AgentDescriptor, bool) {
	desc, ok := r.agents[id]
	return desc, ok
}

// Reachable returns the arena restricted to agents reachable from root
// by handoff edges, root included. The walk is iterative, so cycles in
// a future roster would not recurse forever.
func (r *Registry) Reachable(root contractx.AgentID) map[contractx.AgentID]*contractx.AgentDescriptor {
	out := make(map[contractx.AgentID]*contractx.AgentDescriptor, len(r.agents))
	queue := []contractx.AgentID{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := out[id]; seen {
			continue
		}
		desc, ok := r.agents[id]
		if !ok {
			continue
		}
		out[id] = desc
		queue = append(queue, desc.Handoffs...)
	}
	return out
}

// Background returns the display colors for the named agent, falling
// back to the supervisor's colors for unknown names.
func (r *Registry) Background(agentName string) Background {
	if bg, ok := r.backgrounds[agentName]; ok {
		return bg
	}
	return r.fallback
}
