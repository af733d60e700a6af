package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/hyperjump/rfqrank/internal/models"
)

// StateStore holds live conversation state keyed by briefing.
type StateStore interface {
	// Get returns nil when the briefing has no live state.
	Get(ctx context.Context, briefingID string) (*models.ConversationState, error)
	Put(ctx context.Context, state *models.ConversationState) error
	Delete(ctx context.Context, briefingID string) error
}

// Sweeper is implemented by stores that cannot expire entries on their own.
type Sweeper interface {
	// Sweep removes states not updated since before and returns how many it removed.
	Sweep(ctx context.Context, before time.Time) (int, error)
}

// MemoryStateStore is a process-local StateStore. It stores copies, so callers
// never share state with it.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]*models.ConversationState
}

var (
	_ StateStore = (*MemoryStateStore)(nil)
	_ Sweeper    = (*MemoryStateStore)(nil)
)

// NewMemoryStateStore creates an empty store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]*models.ConversationState)}
}

func (m *MemoryStateStore) Get(_ context.Context, briefingID string) (*models.ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[briefingID].Clone(), nil
}

func (m *MemoryStateStore) Put(_ context.Context, state *models.ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.BriefingID] = state.Clone()
	return nil
}

func (m *MemoryStateStore) Delete(_ context.Context, briefingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, briefingID)
	return nil
}

func (m *MemoryStateStore) Sweep(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.states {
		if s.UpdatedAt.Before(before) {
			delete(m.states, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of live conversations.
func (m *MemoryStateStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
