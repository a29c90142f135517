package engine

import (
	"context"
	"io"
	"sync"

	contractx "github.com/careloop/healthcoach/agent/contract"
)

// runSource bridges the producer goroutine and the consumer with an
// unbuffered channel: the producer cannot outrun a slow consumer, so
// transport backpressure reaches all the way into the model stream.
type runSource struct {
	events chan contractx.RawEvent
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newRunSource(parent context.Context) *runSource {
	ctx, cancel := context.WithCancel(parent)
	return &runSource{
		events: make(chan contractx.RawEvent),
		ctx:    ctx,
		cancel: cancel,
	}
}

// emit delivers one event, reporting false when the run was abandoned.
func (s *runSource) emit(ctx context.Context, ev contractx.RawEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish is called exactly once by the producer when it stops.
func (s *runSource) finish() {
	close(s.events)
}

func (s *runSource) Next(ctx context.Context) (contractx.RawEvent, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return contractx.RawEvent{}, io.EOF
		}
		return ev, nil
	case <-ctx.Done():
		return contractx.RawEvent{}, ctx.Err()
	case <-s.ctx.Done():
		return contractx.RawEvent{}, s.ctx.Err()
	}
}

// Close abandons the run: the producer's context is cancelled and it
// exits at its next emit or stream read.
func (s *runSource) Close() {
	s.once.Do(s.cancel)
}
