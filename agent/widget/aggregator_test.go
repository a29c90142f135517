package widget

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"go.uber.org/goleak"

	contractx "github.com/careloop/healthcoach/agent/contract"
	rosterx "github.com/careloop/healthcoach/agent/roster"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sliceSource struct {
	events []contractx.RawEvent
	pos    int
	closed bool
}

func (s *sliceSource) Next(_ context.Context) (contractx.RawEvent, error) {
	if s.pos >= len(s.events) {
		return contractx.RawEvent{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

func (s *sliceSource) Close() { s.closed = true }

func testStyler(name string) rosterx.Background {
	if name == "" {
		return rosterx.Background{}
	}
	return rosterx.Background{Light: "#" + strings.ToLower(name)}
}

func drain(t *testing.T, s *Stream) []Snapshot {
	t.Helper()
	var out []Snapshot
	for {
		snap, err := s.Next(context.Background())
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		out = append(out, snap)
	}
}

func TestEndToEndScenario(t *testing.T) {
	t.Parallel()

	source := &sliceSource{events: []contractx.RawEvent{
		{Kind: contractx.EventAgentActivated, Agent: "Supervisor"},
		{Kind: contractx.EventAgentActivated, Agent: "Pharmacist"},
		{Kind: contractx.EventTextDelta, Delta: "Take "},
		{Kind: contractx.EventTextDelta, Delta: "ibuprofen."},
		{Kind: contractx.EventTerminal, Reason: contractx.TerminalCompleted},
	}}
	stream := NewStream(source, testStyler)

	snaps := drain(t, stream)
	want := []struct {
		agent string
		text  string
	}{
		{"", ""},
		{"Supervisor", ""},
		{"Pharmacist", ""},
		{"Pharmacist", "Take "},
		{"Pharmacist", "Take ibuprofen."},
	}
	if len(snaps) != len(want) {
		t.Fatalf("expected %d snapshots, got %d", len(want), len(snaps))
	}
	for i, w := range want {
		if snaps[i].Agent != w.agent || snaps[i].Text != w.text {
			t.Fatalf("snapshot %d = (%q,%q), want (%q,%q)", i, snaps[i].Agent, snaps[i].Text, w.agent, w.text)
		}
	}
	if stream.Reason() != contractx.TerminalCompleted {
		t.Fatalf("unexpected terminal reason: %s", stream.Reason())
	}

	// The stream stays ended.
	if _, err := stream.Next(context.Background()); err != io.EOF {
		t.Fatalf("expected io.EOF after terminal, got %v", err)
	}
}

func TestInitialPlaceholderPrecedesEvents(t *testing.T) {
	t.Parallel()

	stream := NewStream(&sliceSource{}, testStyler)
	first, err := stream.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Agent != "" || first.Text != "" {
		t.Fatalf("initial snapshot must be an empty shell, got (%q,%q)", first.Agent, first.Text)
	}
}

func TestEmptyDeltaAndUnknownEventsAreIgnored(t *testing.T) {
	t.Parallel()

	source := &sliceSource{events: []contractx.RawEvent{
		{Kind: contractx.EventTextDelta, Delta: ""},
		{Kind: contractx.EventToolResult, Tool: contractx.ToolResult{Tool: "save_medication"}},
		{Kind: contractx.EventKind("something_new")},
		{Kind: contractx.EventTextDelta, Delta: "hi"},
		{Kind: contractx.EventTerminal, Reason: contractx.TerminalCompleted},
	}}
	stream := NewStream(source, testStyler)

	snaps := drain(t, stream)
	// Initial placeholder plus the single non-empty delta.
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[1].Text != "hi" {
		t.Fatalf("unexpected text: %q", snaps[1].Text)
	}
}

func TestRepeatedActivationDoesNotEmit(t *testing.T) {
	t.Parallel()

	source := &sliceSource{events: []contractx.RawEvent{
		{Kind: contractx.EventAgentActivated, Agent: "Supervisor"},
		{Kind: contractx.EventAgentActivated, Agent: "Supervisor"},
		{Kind: contractx.EventTerminal, Reason: contractx.TerminalCompleted},
	}}
	stream := NewStream(source, testStyler)

	snaps := drain(t, stream)
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots (placeholder + one activation), got %d", len(snaps))
	}
}

func TestHandoffKeepsAccumulatedText(t *testing.T) {
	t.Parallel()

	source := &sliceSource{events: []contractx.RawEvent{
		{Kind: contractx.EventAgentActivated, Agent: "Supervisor"},
		{Kind: contractx.EventTextDelta, Delta: "Routing you"},
		{Kind: contractx.EventAgentActivated, Agent: "Psychologist"},
		{Kind: contractx.EventTextDelta, Delta: " now."},
		{Kind: contractx.EventTerminal, Reason: contractx.TerminalCompleted},
	}}
	stream := NewStream(source, testStyler)

	snaps := drain(t, stream)
	last := snaps[len(snaps)-1]
	if last.Agent != "Psychologist" || last.Text != "Routing you now." {
		t.Fatalf("handoff must keep text, got (%q,%q)", last.Agent, last.Text)
	}
}

func TestSnapshotMonotonicityPerSegment(t *testing.T) {
	t.Parallel()

	source := &sliceSource{events: []contractx.RawEvent{
		{Kind: contractx.EventAgentActivated, Agent: "Supervisor"},
		{Kind: contractx.EventTextDelta, Delta: "a"},
		{Kind: contractx.EventTextDelta, Delta: "b"},
		{Kind: contractx.EventAgentActivated, Agent: "Pharmacist"},
		{Kind: contractx.EventTextDelta, Delta: "c"},
		{Kind: contractx.EventTextDelta, Delta: "d"},
		{Kind: contractx.EventTerminal, Reason: contractx.TerminalCompleted},
	}}
	stream := NewStream(source, testStyler)

	snaps := drain(t, stream)
	for i := 1; i < len(snaps); i++ {
		if snaps[i].Agent != snaps[i-1].Agent {
			continue
		}
		if !strings.HasPrefix(snaps[i].Text, snaps[i-1].Text) {
			t.Fatalf("snapshot %d text %q is not a prefix-extension of %q", i, snaps[i].Text, snaps[i-1].Text)
		}
	}
}

func TestErrorTerminalFlushesPartialOutput(t *testing.T) {
	t.Parallel()

	source := &sliceSource{events: []contractx.RawEvent{
		{Kind: contractx.EventAgentActivated, Agent: "Pharmacist"},
		{Kind: contractx.EventTextDelta, Delta: "partial"},
		{Kind: contractx.EventTerminal, Reason: contractx.TerminalError, Err: "model timeout"},
	}}
	stream := NewStream(source, testStyler)

	var snaps []Snapshot
	for {
		snap, err := stream.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("terminal(error) must end with io.EOF, got %v", err)
		}
		snaps = append(snaps, snap)
	}

	if len(snaps) != 3 {
		t.Fatalf("expected all pre-error snapshots, got %d", len(snaps))
	}
	if snaps[2].Text != "partial" {
		t.Fatalf("partial output lost: %q", snaps[2].Text)
	}
	if !errors.Is(stream.Err(), contractx.ErrRunFailed) {
		t.Fatalf("expected ErrRunFailed, got %v", stream.Err())
	}
	if stream.Reason() != contractx.TerminalError {
		t.Fatalf("unexpected reason: %s", stream.Reason())
	}
}

func TestCloseAbandonsSource(t *testing.T) {
	t.Parallel()

	source := &sliceSource{events: []contractx.RawEvent{
		{Kind: contractx.EventTextDelta, Delta: "x"},
	}}
	stream := NewStream(source, testStyler)
	stream.Close()

	if !source.closed {
		t.Fatal("Close must propagate to the event source")
	}
	if _, err := stream.Next(context.Background()); err != io.EOF {
		t.Fatalf("closed stream must return io.EOF, got %v", err)
	}
}
