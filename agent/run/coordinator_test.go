package run

import (
	"context"
	"errors"
	"io"
	"testing"

	contractx "github.com/careloop/healthcoach/agent/contract"
)

type fakeSource struct {
	events []contractx.RawEvent
	pos    int
	closed bool
}

func (s *fakeSource) Next(ctx context.Context) (contractx.RawEvent, error) {
	if s.pos >= len(s.events) {
		return contractx.RawEvent{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

func (s *fakeSource) Close() { s.closed = true }

type fakeEngine struct {
	source contractx.EventSource
	err    error
	starts int
}

func (e *fakeEngine) StartRun(ctx context.Context, req contractx.RunRequest) (contractx.EventSource, error) {
	e.starts++
	if e.err != nil {
		return nil, e.err
	}
	return e.source, nil
}

func testRequest() contractx.RunRequest {
	return contractx.RunRequest{
		Root: &contractx.AgentDescriptor{ID: contractx.AgentSupervisor, Name: "Supervisor", Instructions: "route"},
		Transcript: []contractx.TranscriptMessage{
			{Role: contractx.RoleUser, Content: "hi"},
		},
	}
}

func TestStartRunPassesStreamThrough(t *testing.T) {
	src := &fakeSource{events: []contractx.RawEvent{
		{Kind: contractx.EventAgentActivated, Agent: "Supervisor"},
		{Kind: contractx.EventTextDelta, Delta: "hello"},
		{Kind: contractx.EventTerminal, Reason: contractx.TerminalCompleted},
	}}
	c, err := New(&fakeEngine{source: src}, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	run, err := c.StartRun(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	var kinds []contractx.EventKind
	for {
		ev, err := run.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 3 {
		t.Fatalf("expected 3 events, got %d", len(kinds))
	}

	run.Close()
	if !src.closed {
		t.Fatal("expected underlying source to be closed")
	}
}

func TestActiveAgentTracksActivations(t *testing.T) {
	src := &fakeSource{events: []contractx.RawEvent{
		{Kind: contractx.EventAgentActivated, Agent: "Supervisor"},
		{Kind: contractx.EventTextDelta, Delta: "routing"},
		{Kind: contractx.EventAgentActivated, Agent: "Pharmacist"},
	}}
	c, err := New(&fakeEngine{source: src}, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	run, err := c.StartRun(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if got := run.ActiveAgent(); got != "" {
		t.Fatalf("expected no active agent before events, got %q", got)
	}

	run.Next(context.Background())
	if got := run.ActiveAgent(); got != "Supervisor" {
		t.Fatalf("expected Supervisor, got %q", got)
	}
	run.Next(context.Background())
	if got := run.ActiveAgent(); got != "Supervisor" {
		t.Fatalf("text delta must not change the active agent, got %q", got)
	}
	run.Next(context.Background())
	if got := run.ActiveAgent(); got != "Pharmacist" {
		t.Fatalf("expected Pharmacist after handoff, got %q", got)
	}
}

func TestStartRunWrapsEngineFailure(t *testing.T) {
	c, err := New(&fakeEngine{err: errors.New("upstream down")}, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.StartRun(context.Background(), testRequest())
	if !errors.Is(err, contractx.ErrRunStart) {
		t.Fatalf("expected ErrRunStart, got %v", err)
	}
}

func TestStartRunRejectsMissingRoot(t *testing.T) {
	eng := &fakeEngine{source: &fakeSource{}}
	c, err := New(eng, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.StartRun(context.Background(), contractx.RunRequest{})
	if !errors.Is(err, contractx.ErrRunStart) {
		t.Fatalf("expected ErrRunStart, got %v", err)
	}
	if eng.starts != 0 {
		t.Fatalf("engine must not be reached on invalid requests, starts=%d", eng.starts)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	eng := &fakeEngine{err: errors.New("upstream down")}
	c, err := New(eng, Config{BreakerMaxFailures: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := c.StartRun(context.Background(), testRequest()); err == nil {
			t.Fatal("expected start failure")
		}
	}
	reached := eng.starts

	if _, err := c.StartRun(context.Background(), testRequest()); !errors.Is(err, contractx.ErrRunStart) {
		t.Fatalf("expected ErrRunStart from open breaker, got %v", err)
	}
	if eng.starts != reached {
		t.Fatalf("open breaker must not reach the engine, starts=%d", eng.starts)
	}
}
