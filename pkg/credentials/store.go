// Package credentials holds the user secrets and per-resource allow-lists
// consulted by the web adapter.
package credentials

import "strings"

// Store resolves digest secrets and resource allow-lists.
type Store interface {
	// Password returns the secret for user.
	Password(user string) (string, bool)

	// AllowedUsers returns the users allowed to fetch path. ok is false when
	// path has no allow-list, meaning it is public.
	AllowedUsers(path string) (users []string, ok bool)
}

// DefaultReservedNames are the path fragments that are never served.
var DefaultReservedNames = []string{"passwd", "permission"}

// IsReserved reports whether path references one of the reserved names.
func IsReserved(path string, names []string) bool {
	for _, n := range names {
		if n != "" && strings.Contains(path, n) {
			return true
		}
	}
	return false
}

// Allowed reports whether user may fetch path according to s.
func Allowed(s Store, path, user string) bool {
	users, ok := s.AllowedUsers(path)
	if !ok {
		return true
	}
	if user == "" {
		return false
	}
	for _, u := range users {
		if u == user {
			return true
		}
	}
	return false
}

// MemoryStore is a Store backed by plain maps. It must not be mutated after
// it is shared.
type MemoryStore struct {
	Passwords   map[string]string
	Permissions map[string][]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Passwords:   make(map[string]string),
		Permissions: make(map[string][]string),
	}
}

func (m *MemoryStore) Password(user string) (string, bool) {
	p, ok := m.Passwords[user]
	return p, ok
}

func (m *MemoryStore) AllowedUsers(path string) ([]string, bool) {
	u, ok := m.Permissions[path]
	return u, ok
}
