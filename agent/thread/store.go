// Package thread keeps per-conversation transcripts in process memory.
// Transcripts are volatile by design; durable persistence belongs to an
// external collaborator behind the same shape.
package thread

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	contractx "github.com/careloop/healthcoach/agent/contract"
)

var ErrEmptyThreadID = errors.New("thread id is empty")

type ItemKind string

const (
	KindUserMessage      ItemKind = "user_message"
	KindAssistantMessage ItemKind = "assistant_message"
	// KindHiddenContext is a system-internal note (e.g. a saved-fact
	// confirmation) that must never be re-read as a user turn.
	KindHiddenContext ItemKind = "hidden_context"
	// KindToolCompletion marks a client tool round-trip; a turn whose
	// latest item is a completion marker produces no generation run.
	KindToolCompletion ItemKind = "tool_completion"
)

// Item is one transcript entry.
type Item struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Kind      ItemKind  `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is an in-memory, mutex-serialized transcript store.
type Store struct {
	mu    sync.Mutex
	items map[string][]Item
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		items: make(map[string][]Item, 8),
		now:   time.Now,
	}
}

func genItemID() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (s *Store) add(threadID string, kind ItemKind, content string) (Item, error) {
	if strings.TrimSpace(threadID) == "" {
		return Item{}, ErrEmptyThreadID
	}

	item := Item{
		ID:        genItemID(),
		ThreadID:  threadID,
		Kind:      kind,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}

	s.mu.Lock()
	s.items[threadID] = append(s.items[threadID], item)
	s.mu.Unlock()
	return item, nil
}

func (s *Store) AddUserMessage(_ context.Context, threadID, content string) (Item, error) {
	return s.add(threadID, KindUserMessage, content)
}

func (s *Store) AddAssistantMessage(_ context.Context, threadID, content string) (Item, error) {
	return s.add(threadID, KindAssistantMessage, content)
}

// AddHidden satisfies the tool gateway's HiddenRecorder.
func (s *Store) AddHidden(_ context.Context, threadID, content string) error {
	_, err := s.add(threadID, KindHiddenContext, content)
	return err
}

func (s *Store) AddToolCompletion(_ context.Context, threadID, content string) (Item, error) {
	return s.add(threadID, KindToolCompletion, content)
}

// Latest returns the most recently stored item for the thread.
func (s *Store) Latest(_ context.Context, threadID string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.items[threadID]
	if len(items) == 0 {
		return Item{}, false
	}
	return items[len(items)-1], true
}

// Items returns a copy of the thread's transcript in insertion order.
func (s *Store) Items(_ context.Context, threadID string) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.items[threadID]
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// Transcript renders the thread as generation-run input. User and
// assistant messages keep their roles; hidden context items become
// system notes; tool-completion markers are dropped entirely.
func (s *Store) Transcript(ctx context.Context, threadID string) []contractx.TranscriptMessage {
	items := s.Items(ctx, threadID)
	out := make([]contractx.TranscriptMessage, 0, len(items))
	for _, item := range items {
		switch item.Kind {
		case KindUserMessage:
			out = append(out, contractx.TranscriptMessage{Role: contractx.RoleUser, Content: item.Content})
		case KindAssistantMessage:
			out = append(out, contractx.TranscriptMessage{Role: contractx.RoleAssistant, Content: item.Content})
		case KindHiddenContext:
			out = append(out, contractx.TranscriptMessage{Role: contractx.RoleSystem, Content: item.Content})
		}
	}
	return out
}
