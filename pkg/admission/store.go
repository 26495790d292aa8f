package admission

import (
	"context"
	"sort"
	"sync"
)

// List names one of the two address sets.
type List byte

const (
	// ListAllow is the allow set (whitelist).
	ListAllow List = 'a'

	// ListDeny is the deny set (blacklist).
	ListDeny List = 'd'
)

func (l List) String() string {
	switch l {
	case ListAllow:
		return "allow"
	case ListDeny:
		return "deny"
	default:
		return "unknown"
	}
}

// ListStore persists the allow and deny sets so operator and automatic
// decisions survive restarts.
//
// The controller is the only writer and already serializes calls, so
// implementations only need to be safe against concurrent Load.
type ListStore interface {
	// Load returns the persisted sets.
	Load(ctx context.Context) (allow, deny []string, err error)

	// Put adds addr to list.
	Put(ctx context.Context, list List, addr string) error

	// Delete removes addr from list. Deleting an absent entry is not an error.
	Delete(ctx context.Context, list List, addr string) error

	// Close releases the store.
	Close() error
}

// MemoryListStore keeps the sets in process memory only.
type MemoryListStore struct {
	mu    sync.Mutex
	lists map[List]map[string]struct{}
}

// NewMemoryListStore returns an empty MemoryListStore.
func NewMemoryListStore() *MemoryListStore {
	return &MemoryListStore{
		lists: map[List]map[string]struct{}{
			ListAllow: {},
			ListDeny:  {},
		},
	}
}

func (m *MemoryListStore) Load(ctx context.Context) ([]string, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return sortedKeys(m.lists[ListAllow]), sortedKeys(m.lists[ListDeny]), nil
}

func (m *MemoryListStore) Put(_ context.Context, list List, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lists[list][addr] = struct{}{}
	return nil
}

func (m *MemoryListStore) Delete(_ context.Context, list List, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.lists[list], addr)
	return nil
}

func (m *MemoryListStore) Close() error {
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
