package chatnode

import (
	widgetx "github.com/careloop/healthcoach/agent/widget"
)

// OpenStream wraps the run's raw events in the snapshot aggregator the
// transport consumes.
func OpenStream(in *GraphState, style widgetx.Styler) (GraphOutput, error) {
	if in.Empty {
		return GraphOutput{Empty: true}, nil
	}

	return GraphOutput{
		Stream: widgetx.NewStream(in.Run, style),
		Run:    in.RunCtx,
	}, nil
}
