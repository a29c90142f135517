// Package widget reduces the raw event stream of a generation run into
// an ordered sequence of display snapshots. The reduction mirrors what
// the client renders: a colored card carrying the active agent's name
// and its accumulated text.
package widget

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	contractx "github.com/careloop/healthcoach/agent/contract"
	rosterx "github.com/careloop/healthcoach/agent/roster"
)

// Snapshot is one monotonic view of the in-progress response. Within a
// contiguous run of the same agent, Text of each snapshot is a
// prefix-extension of the previous one; a handoff only swaps the agent
// label and background, never the text.
type Snapshot struct {
	Agent      string            `json:"agent"`
	Text       string            `json:"text"`
	Background rosterx.Background `json:"background"`
}

// Styler resolves an agent name to its display colors.
type Styler func(agentName string) rosterx.Background

// Stream is the pull-based snapshot sequence for one run. The consumer
// drives it one snapshot at a time; nothing is buffered, so transport
// backpressure propagates straight to the generation engine.
//
// Next returns io.EOF once the run terminates. A terminal(error) event
// also ends the stream with io.EOF — every snapshot reconstructable
// from earlier events has already been delivered — and the cause is
// reported through Err so callers do not fabricate a success.
type Stream struct {
	source contractx.EventSource
	style  Styler

	agent   string
	text    string
	started bool
	done    bool
	reason  contractx.TerminalReason
	err     error
}

func NewStream(source contractx.EventSource, style Styler) *Stream {
	if style == nil {
		style = func(string) rosterx.Background { return rosterx.Background{} }
	}
	return &Stream{source: source, style: style}
}

func (s *Stream) snapshot() Snapshot {
	return Snapshot{
		Agent:      s.agent,
		Text:       s.text,
		Background: s.style(s.agent),
	}
}

// Next blocks until the next snapshot is due. The very first call
// returns an empty placeholder before any event is consumed, so a
// client can render a shell without waiting on the engine.
func (s *Stream) Next(ctx context.Context) (Snapshot, error) {
	if s.done {
		return Snapshot{}, io.EOF
	}
	if !s.started {
		s.started = true
		return s.snapshot(), nil
	}

	for {
		ev, err := s.source.Next(ctx)
		if err == io.EOF {
			// Engine ended without a terminal event; treat as completed.
			s.done = true
			s.reason = contractx.TerminalCompleted
			return Snapshot{}, io.EOF
		}
		if err != nil {
			s.done = true
			s.err = err
			return Snapshot{}, err
		}

		switch ev.Kind {
		case contractx.EventAgentActivated:
			if ev.Agent != "" && ev.Agent != s.agent {
				s.agent = ev.Agent
				return s.snapshot(), nil
			}
		case contractx.EventTextDelta:
			if ev.Delta != "" {
				s.text += ev.Delta
				return s.snapshot(), nil
			}
		case contractx.EventTerminal:
			s.done = true
			s.reason = ev.Reason
			if ev.Reason == contractx.TerminalError {
				s.err = fmt.Errorf("%w: %s", contractx.ErrRunFailed, ev.Err)
			}
			return Snapshot{}, io.EOF
		default:
			// Forward-compatible ignore: tool results and unknown kinds
			// produce no snapshot so identical frames never flood the client.
			log.Debug().Str("kind", string(ev.Kind)).Msg("ignoring raw event")
		}
	}
}

// Close abandons the underlying run.
func (s *Stream) Close() {
	s.done = true
	s.source.Close()
}

// Reason reports why the stream ended; empty until then.
func (s *Stream) Reason() contractx.TerminalReason {
	return s.reason
}

// Err reports the run failure behind a terminal(error) event, if any.
func (s *Stream) Err() error {
	return s.err
}

// Text is the response text accumulated so far. After the stream ends
// it is the full assistant message of the turn.
func (s *Stream) Text() string {
	return s.text
}
