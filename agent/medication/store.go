package medication

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound  = errors.New("medication not found")
	ErrEmptyName = errors.New("medication name is empty")
)

// Medication is one deduplicated user-declared fact. Values are copies;
// the store never hands out mutable references.
type Medication struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Normalize is the dedup key function: surrounding whitespace is
// trimmed, case and internal spacing are preserved.
func Normalize(name string) string {
	return strings.TrimSpace(name)
}

// Store is the persistence contract for the medicine cabinet. Every
// operation is linearizable on its own; there are no cross-operation
// transactions. Implementations must be safe under arbitrary concurrent
// invocation.
type Store interface {
	// Upsert creates the medication if its normalized name is unknown and
	// returns the stored record either way. Re-adding an existing key
	// returns the original record with its original creation time.
	Upsert(ctx context.Context, rawName string) (Medication, error)
	// Get returns the medication for the normalized name or ErrNotFound.
	Get(ctx context.Context, rawName string) (Medication, error)
	// List returns all medications ordered by name ascending.
	List(ctx context.Context) ([]Medication, error)
	// Delete removes the medication and reports whether it existed.
	Delete(ctx context.Context, rawName string) (bool, error)
	// Clear removes everything and returns the prior count.
	Clear(ctx context.Context) (int, error)
}

// StoreOption customizes MemoryStore.
type StoreOption func(*MemoryStore)

// WithNow overrides the clock, mainly for tests.
func WithNow(now func() time.Time) StoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// MemoryStore keeps medications in process memory keyed by normalized
// name. A single mutex serializes all operations; the collection stays
// small enough that finer locking buys nothing.
type MemoryStore struct {
	mu          sync.Mutex
	medications map[string]Medication
	now         func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		medications: make(map[string]Medication, 8),
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStore) Upsert(_ context.Context, rawName string) (Medication, error) {
	name := Normalize(rawName)
	if name == "" {
		return Medication{}, ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.medications[name]; ok {
		return existing, nil
	}

	med := Medication{Name: name, CreatedAt: s.now().UTC()}
	s.medications[name] = med
	return med, nil
}

func (s *MemoryStore) Get(_ context.Context, rawName string) (Medication, error) {
	name := Normalize(rawName)
	if name == "" {
		return Medication{}, ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	med, ok := s.medications[name]
	if !ok {
		return Medication{}, ErrNotFound
	}
	return med, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Medication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Medication, 0, len(s.medications))
	for _, med := range s.medications {
		out = append(out, med)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, rawName string) (bool, error) {
	name := Normalize(rawName)
	if name == "" {
		return false, ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.medications[name]; !ok {
		return false, nil
	}
	delete(s.medications, name)
	return true, nil
}

func (s *MemoryStore) Clear(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.medications)
	s.medications = make(map[string]Medication, 8)
	return count, nil
}
