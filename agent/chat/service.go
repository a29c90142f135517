// Package chat owns the turn lifecycle: it resolves what a turn
// responds to, starts the generation run, and hands the caller a
// consumable snapshot stream. Turns on the same thread are serialized;
// turns on different threads run concurrently.
package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/careloop/healthcoach/agent/contract"
	medicationx "github.com/careloop/healthcoach/agent/medication"
	nodex "github.com/careloop/healthcoach/agent/nodes/chat"
	rosterx "github.com/careloop/healthcoach/agent/roster"
	runx "github.com/careloop/healthcoach/agent/run"
	threadx "github.com/careloop/healthcoach/agent/thread"
	widgetx "github.com/careloop/healthcoach/agent/widget"
)

var ErrInvalidThread = nodex.ErrInvalidThread

type Service struct {
	threads     *threadx.Store
	medications medicationx.Store
	coordinator *runx.Coordinator
	registry    *rosterx.Registry

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now contractx.Now
}

func New(
	threads *threadx.Store,
	medications medicationx.Store,
	coordinator *runx.Coordinator,
	registry *rosterx.Registry,
) (*Service, error) {
	if threads == nil {
		return nil, errors.New("thread store is required")
	}
	if medications == nil {
		return nil, errors.New("medication store is required")
	}
	if coordinator == nil {
		return nil, errors.New("run coordinator is required")
	}
	if registry == nil {
		return nil, errors.New("agent registry is required")
	}

	s := &Service{
		threads:     threads,
		medications: medications,
		coordinator: coordinator,
		registry:    registry,
		locks:       make(map[string]*sync.Mutex),
		now:         time.Now,
	}

	graphRunner, err := s.compileHandleTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	s.graphRunner = graphRunner

	return s, nil
}

func (s *Service) threadLock(threadID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[threadID] = lock
	}
	return lock
}

// HandleTurn runs one conversational turn. The returned Turn holds the
// thread's lock until it is drained or closed, so two turns never
// interleave writes on the same thread.
func (s *Service) HandleTurn(ctx context.Context, threadID, message string) (*Turn, error) {
	key := strings.TrimSpace(threadID)
	if key == "" {
		return nil, ErrInvalidThread
	}

	lock := s.threadLock(key)
	lock.Lock()

	out, err := s.graphRunner.Invoke(ctx, nodex.GraphInput{
		ThreadID: threadID,
		Message:  message,
	})
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	if out.Empty {
		lock.Unlock()
		return &Turn{empty: true}, nil
	}

	return &Turn{
		svc:      s,
		threadID: key,
		stream:   out.Stream,
		runCtx:   out.Run,
		release:  lock.Unlock,
	}, nil
}

// Turn is one in-flight conversational turn. The caller drains it with
// Next until io.EOF, then reads ClientCalls and Err.
type Turn struct {
	svc      *Service
	threadID string
	stream   *widgetx.Stream
	runCtx   *contractx.RunContext
	empty    bool

	release func()
	once    sync.Once
}

// Empty reports a turn that produced no run and will stream nothing.
func (t *Turn) Empty() bool {
	return t.empty
}

func (t *Turn) Next(ctx context.Context) (widgetx.Snapshot, error) {
	if t.empty {
		return widgetx.Snapshot{}, io.EOF
	}

	snap, err := t.stream.Next(ctx)
	if err != nil {
		t.finish(ctx, err == io.EOF)
		return widgetx.Snapshot{}, err
	}
	return snap, nil
}

// finish records the turn's outcome on the thread exactly once and
// releases the thread lock. record is false when the turn was
// abandoned rather than drained.
func (t *Turn) finish(ctx context.Context, record bool) {
	t.once.Do(func() {
		defer t.release()
		if !record {
			return
		}

		if t.stream.Err() == nil {
			if text := t.stream.Text(); text != "" {
				if _, err := t.svc.threads.AddAssistantMessage(ctx, t.threadID, text); err != nil {
					log.Warn().Err(err).Str("thread_id", t.threadID).Msg("failed to record assistant message")
				}
			}
		}
		for _, call := range t.runCtx.ClientCalls() {
			if _, err := t.svc.threads.AddToolCompletion(ctx, t.threadID, call.Name); err != nil {
				log.Warn().Err(err).Str("thread_id", t.threadID).Msg("failed to record tool completion")
			}
		}
	})
}

// Close abandons the turn. Nothing is recorded on the thread.
func (t *Turn) Close() {
	if t.empty {
		return
	}
	t.stream.Close()
	t.finish(context.Background(), false)
}

// ClientCalls returns the client-facing instructions queued by utility
// tools during the run. Complete once the turn is drained.
func (t *Turn) ClientCalls() []contractx.ClientToolCall {
	if t.runCtx == nil {
		return nil
	}
	return t.runCtx.ClientCalls()
}

// Reason reports why the snapshot stream ended.
func (t *Turn) Reason() contractx.TerminalReason {
	if t.empty {
		return contractx.TerminalCompleted
	}
	return t.stream.Reason()
}

// Err reports the run failure behind an error terminal, if any.
func (t *Turn) Err() error {
	if t.empty {
		return nil
	}
	return t.stream.Err()
}
