// Package run starts generation runs and tracks which agent currently
// owns the turn. The coordinator never retries a started run; its only
// defenses are up front, where a circuit breaker makes a dead engine
// fail fast instead of queueing doomed starts.
package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	contractx "github.com/careloop/healthcoach/agent/contract"
)

// Config tunes the run-start circuit breaker.
type Config struct {
	BreakerMaxFailures uint32        `envconfig:"BREAKER_MAX_FAILURES" split_words:"true" default:"3"`
	BreakerTimeout     time.Duration `envconfig:"BREAKER_TIMEOUT" split_words:"true" default:"30s"`
}

// Coordinator wraps the generation engine behind the routing contract.
type Coordinator struct {
	engine  contractx.Engine
	breaker *gobreaker.CircuitBreaker
}

func New(engine contractx.Engine, cfg Config) (*Coordinator, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}

	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 3
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Coordinator{
		engine: engine,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "engine-run-start",
			Timeout: timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
		}),
	}, nil
}

// StartRun starts one generation run for the turn. A start failure is a
// single terminal error; event-level errors of a started run flow
// through the returned run untouched for the aggregator to judge.
func (c *Coordinator) StartRun(ctx context.Context, req contractx.RunRequest) (*Run, error) {
	if req.Root == nil {
		return nil, fmt.Errorf("%w: root agent is required", contractx.ErrRunStart)
	}

	out, err := c.breaker.Execute(func() (any, error) {
		return c.engine.StartRun(ctx, req)
	})
	if err != nil {
		if errors.Is(err, contractx.ErrRunStart) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", contractx.ErrRunStart, err)
	}

	source, ok := out.(contractx.EventSource)
	if !ok || source == nil {
		return nil, fmt.Errorf("%w: engine returned no event source", contractx.ErrRunStart)
	}

	return &Run{source: source}, nil
}

// Run is one in-flight generation run. It passes the raw event stream
// through unchanged while remembering the most recent agent activation.
type Run struct {
	source contractx.EventSource

	mu     sync.Mutex
	active string
}

var _ contractx.EventSource = (*Run)(nil)

func (r *Run) Next(ctx context.Context) (contractx.RawEvent, error) {
	ev, err := r.source.Next(ctx)
	if err != nil {
		return ev, err
	}
	if ev.Kind == contractx.EventAgentActivated && ev.Agent != "" {
		r.mu.Lock()
		r.active = ev.Agent
		r.mu.Unlock()
	}
	return ev, nil
}

func (r *Run) Close() {
	r.source.Close()
}

// ActiveAgent names the agent that currently owns the turn; empty until
// the first activation event.
func (r *Run) ActiveAgent() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
