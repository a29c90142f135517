package chatnode

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	medicationx "github.com/careloop/healthcoach/agent/medication"
)

// InjectFacts loads the user's saved medications and phrases them as a
// context note for the run. A store failure downgrades the turn to an
// uninformed one instead of failing it.
func InjectFacts(ctx context.Context, in *GraphState, medications medicationx.Store) (*GraphState, error) {
	if in.Empty {
		return in, nil
	}

	meds, err := medications.List(ctx)
	if err != nil {
		log.Warn().Err(err).Str("thread_id", in.ThreadID).Msg("medication context unavailable for turn")
		return in, nil
	}
	if len(meds) == 0 {
		return in, nil
	}

	names := make([]string, 0, len(meds))
	for _, m := range meds {
		names = append(names, m.Name)
	}
	in.Facts = "You know the following medications about this user: " + strings.Join(names, "; ")
	return in, nil
}
