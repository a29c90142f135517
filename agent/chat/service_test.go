package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	contractx "github.com/careloop/healthcoach/agent/contract"
	medicationx "github.com/careloop/healthcoach/agent/medication"
	promptx "github.com/careloop/healthcoach/agent/prompt"
	rosterx "github.com/careloop/healthcoach/agent/roster"
	runx "github.com/careloop/healthcoach/agent/run"
	threadx "github.com/careloop/healthcoach/agent/thread"
	widgetx "github.com/careloop/healthcoach/agent/widget"
)

type scriptedSource struct {
	events []contractx.RawEvent
	pos    int
}

func (s *scriptedSource) Next(ctx context.Context) (contractx.RawEvent, error) {
	if s.pos >= len(s.events) {
		return contractx.RawEvent{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

func (s *scriptedSource) Close() {}

type fakeEngine struct {
	events   []contractx.RawEvent
	startErr error

	lastReq contractx.RunRequest
	starts  int
}

func (e *fakeEngine) StartRun(ctx context.Context, req contractx.RunRequest) (contractx.EventSource, error) {
	e.starts++
	e.lastReq = req
	if e.startErr != nil {
		return nil, e.startErr
	}
	return &scriptedSource{events: e.events}, nil
}

func newTestService(t *testing.T, engine *fakeEngine) (*Service, *threadx.Store, medicationx.Store) {
	t.Helper()

	threads := threadx.NewStore()
	medications := medicationx.NewMemoryStore()

	registry, err := rosterx.New(promptx.LoadPromptSet())
	if err != nil {
		t.Fatalf("roster.New: %v", err)
	}
	coordinator, err := runx.New(engine, runx.Config{})
	if err != nil {
		t.Fatalf("run.New: %v", err)
	}
	svc, err := New(threads, medications, coordinator, registry)
	if err != nil {
		t.Fatalf("chat.New: %v", err)
	}
	return svc, threads, medications
}

func drain(t *testing.T, turn *Turn) []widgetx.Snapshot {
	t.Helper()

	var snaps []widgetx.Snapshot
	for {
		snap, err := turn.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return snaps
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		snaps = append(snaps, snap)
	}
}

func completedRun(agent, text string) []contractx.RawEvent {
	return []contractx.RawEvent{
		{Kind: contractx.EventAgentActivated, Agent: agent},
		{Kind: contractx.EventTextDelta, Delta: text},
		{Kind: contractx.EventTerminal, Reason: contractx.TerminalCompleted},
	}
}

func TestHandleTurnStreamsAndRecordsAssistantMessage(t *testing.T) {
	engine := &fakeEngine{events: completedRun("Supervisor", "Hello there.")}
	svc, threads, _ := newTestService(t, engine)

	turn, err := svc.HandleTurn(context.Background(), "thread_1", "hi")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if turn.Empty() {
		t.Fatal("expected a non-empty turn")
	}

	snaps := drain(t, turn)
	if len(snaps) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snaps))
	}
	if snaps[0].Agent != "" || snaps[0].Text != "" {
		t.Fatalf("expected empty placeholder first, got %+v", snaps[0])
	}
	last := snaps[len(snaps)-1]
	if last.Agent != "Supervisor" || last.Text != "Hello there." {
		t.Fatalf("unexpected final snapshot %+v", last)
	}

	transcript := threads.Transcript(context.Background(), "thread_1")
	if len(transcript) != 2 {
		t.Fatalf("expected user and assistant entries, got %d", len(transcript))
	}
	if transcript[0].Role != contractx.RoleUser || transcript[0].Content != "hi" {
		t.Fatalf("unexpected user entry %+v", transcript[0])
	}
	if transcript[1].Role != contractx.RoleAssistant || transcript[1].Content != "Hello there." {
		t.Fatalf("unexpected assistant entry %+v", transcript[1])
	}
}

func TestHandleTurnInjectsMedicationContext(t *testing.T) {
	engine := &fakeEngine{events: completedRun("Supervisor", "Noted.")}
	svc, _, medications := newTestService(t, engine)

	for _, name := range []string{"Zinc", "Aspirin"} {
		if _, err := medications.Upsert(context.Background(), name); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	turn, err := svc.HandleTurn(context.Background(), "thread_1", "what do I take?")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	drain(t, turn)

	want := "You know the following medications about this user: Aspirin; Zinc"
	if engine.lastReq.InjectedContext != want {
		t.Fatalf("injected context = %q, want %q", engine.lastReq.InjectedContext, want)
	}
	if engine.lastReq.Root == nil || engine.lastReq.Root.ID != contractx.AgentSupervisor {
		t.Fatal("expected the supervisor as the run's root agent")
	}
	if len(engine.lastReq.Agents) != 3 {
		t.Fatalf("expected 3 reachable agents, got %d", len(engine.lastReq.Agents))
	}
}

func TestHandleTurnEmptyWhenNothingToRespondTo(t *testing.T) {
	engine := &fakeEngine{}
	svc, _, _ := newTestService(t, engine)

	turn, err := svc.HandleTurn(context.Background(), "thread_1", "")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if !turn.Empty() {
		t.Fatal("expected an empty turn for a thread with no items")
	}
	if _, err := turn.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF from empty turn, got %v", err)
	}
	if engine.starts != 0 {
		t.Fatalf("empty turn must not start a run, starts=%d", engine.starts)
	}
}

func TestHandleTurnEmptyAfterToolCompletion(t *testing.T) {
	engine := &fakeEngine{events: []contractx.RawEvent{
		{Kind: contractx.EventAgentActivated, Agent: "Supervisor"},
		{Kind: contractx.EventTerminal, Reason: contractx.TerminalCompleted},
	}}
	svc, threads, _ := newTestService(t, engine)

	turn, err := svc.HandleTurn(context.Background(), "thread_1", "switch to dark mode")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	// Simulate the theme tool queueing a client call during the run.
	turn.runCtx.QueueClientCall(contractx.ClientToolCall{
		Name:      "switch_theme",
		Arguments: map[string]any{"theme": "dark"},
	})
	drain(t, turn)

	calls := turn.ClientCalls()
	if len(calls) != 1 || calls[0].Name != "switch_theme" {
		t.Fatalf("unexpected client calls %+v", calls)
	}

	latest, ok := threads.Latest(context.Background(), "thread_1")
	if !ok || latest.Kind != threadx.KindToolCompletion {
		t.Fatalf("expected a tool completion as the latest item, got %+v", latest)
	}

	// The follow-up turn the client triggers after running the tool has
	// nothing new to respond to.
	followup, err := svc.HandleTurn(context.Background(), "thread_1", "")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if !followup.Empty() {
		t.Fatal("expected an empty follow-up turn after a tool completion")
	}
}

func TestHandleTurnRejectsBlankThreadID(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeEngine{})

	if _, err := svc.HandleTurn(context.Background(), "   ", "hi"); !errors.Is(err, ErrInvalidThread) {
		t.Fatalf("expected ErrInvalidThread, got %v", err)
	}
}

func TestHandleTurnSurfacesStartFailure(t *testing.T) {
	engine := &fakeEngine{startErr: errors.New("upstream down")}
	svc, _, _ := newTestService(t, engine)

	_, err := svc.HandleTurn(context.Background(), "thread_1", "hi")
	if !errors.Is(err, contractx.ErrRunStart) {
		t.Fatalf("expected ErrRunStart, got %v", err)
	}

	// The thread lock must be released on failure.
	engine.startErr = nil
	engine.events = completedRun("Supervisor", "Back up.")
	turn, err := svc.HandleTurn(context.Background(), "thread_1", "hi again")
	if err != nil {
		t.Fatalf("HandleTurn after failure: %v", err)
	}
	drain(t, turn)
}

func TestHandleTurnErrorTerminalLeavesNoAssistantMessage(t *testing.T) {
	engine := &fakeEngine{events: []contractx.RawEvent{
		{Kind: contractx.EventAgentActivated, Agent: "Supervisor"},
		{Kind: contractx.EventTextDelta, Delta: "partial"},
		{Kind: contractx.EventTerminal, Reason: contractx.TerminalError, Err: "model unavailable"},
	}}
	svc, threads, _ := newTestService(t, engine)

	turn, err := svc.HandleTurn(context.Background(), "thread_1", "hi")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	drain(t, turn)

	if turn.Err() == nil || !errors.Is(turn.Err(), contractx.ErrRunFailed) {
		t.Fatalf("expected ErrRunFailed, got %v", turn.Err())
	}
	if !strings.Contains(turn.Err().Error(), "model unavailable") {
		t.Fatalf("expected cause in error, got %v", turn.Err())
	}

	transcript := threads.Transcript(context.Background(), "thread_1")
	if len(transcript) != 1 {
		t.Fatalf("failed run must not record an assistant message, transcript=%+v", transcript)
	}
}

func TestTurnsOnSameThreadSerialize(t *testing.T) {
	engine := &fakeEngine{events: completedRun("Supervisor", "First.")}
	svc, _, _ := newTestService(t, engine)

	turn, err := svc.HandleTurn(context.Background(), "thread_1", "one")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	engine.events = completedRun("Supervisor", "Second.")

	second := make(chan struct{})
	go func() {
		defer close(second)
		t2, err := svc.HandleTurn(context.Background(), "thread_1", "two")
		if err == nil {
			t2.Close()
		}
	}()

	time.Sleep(50 * time.Millisecond)
	select {
	case <-second:
		t.Fatal("second turn must block until the first is drained")
	default:
	}

	drain(t, turn)
	<-second
}
