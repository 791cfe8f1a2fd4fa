package session

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Registry maps session ids to their stores. A session expires ttl after it
// was last opened; the least recently used ones are evicted beyond capacity.
type Registry struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, *Store]
}

func NewRegistry(capacity int, ttl time.Duration) *Registry {
	return &Registry{
		sessions: expirable.NewLRU[string, *Store](capacity, nil, ttl),
	}
}

// Open returns the store for sessionID, creating an empty one if needed.
func (r *Registry) Open(sessionID string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions.Get(sessionID); ok {
		r.sessions.Add(sessionID, s)
		return s, true
	}
	s := NewStore()
	r.sessions.Add(sessionID, s)
	return s, false
}

func (r *Registry) Lookup(sessionID string) (*Store, bool) {
	return r.sessions.Get(sessionID)
}

func (r *Registry) Remove(sessionID string) {
	r.sessions.Remove(sessionID)
}

// BoundTo returns every live store currently bound to userID.
func (r *Registry) BoundTo(userID string) []*Store {
	var out []*Store
	for _, s := range r.sessions.Values() {
		if s.UserID() == userID {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) Len() int {
	return r.sessions.Len()
}
