// Package session holds the in-memory, authoritative cart of each active
// session. Stores only ever replace their items; merging happens upstream.
package session

import (
	"slices"
	"sync"

	"github.com/fjod/go_cart/cartsync/internal/domain"
)

type Store struct {
	mu     sync.Mutex
	userID string
	epoch  uint64
	items  []domain.LineItem
	// checkout ids already deducted from items
	orders map[string]struct{}
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Items() []domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

func (s *Store) ReplaceAll(items []domain.LineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = slices.Clone(items)
}

func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Binding returns the bound user and an epoch that changes on every Bind and
// Detach.
func (s *Store) Binding() (string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.epoch
}

// Bind attaches userID to the session and replaces its items.
func (s *Store) Bind(userID string, items []domain.LineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bind(userID, items)
}

func (s *Store) bind(userID string, items []domain.LineItem) {
	s.userID = userID
	s.epoch++
	s.items = slices.Clone(items)
}

// Detach forgets the user but keeps the items until the next Bind.
func (s *Store) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = ""
	s.epoch++
}

// Txn is a locked view of a Store. It is only valid inside Do.
type Txn struct {
	s *Store
}

func (t *Txn) UserID() string { return t.s.userID }

func (t *Txn) Epoch() uint64 { return t.s.epoch }

func (t *Txn) Items() []domain.LineItem { return slices.Clone(t.s.items) }

func (t *Txn) ReplaceAll(items []domain.LineItem) { t.s.items = slices.Clone(items) }

func (t *Txn) Bind(userID string, items []domain.LineItem) { t.s.bind(userID, items) }

// MarkOrder records checkoutID as deducted from this session and reports
// whether it was new. An empty id is always new.
func (t *Txn) MarkOrder(checkoutID string) bool {
	if checkoutID == "" {
		return true
	}
	if _, ok := t.s.orders[checkoutID]; ok {
		return false
	}
	if t.s.orders == nil {
		t.s.orders = make(map[string]struct{})
	}
	t.s.orders[checkoutID] = struct{}{}
	return true
}

// Do runs fn while holding the store lock, so mutations of one session are
// applied strictly one after another. Replacements made by fn stay in place
// even when fn returns an error.
func (s *Store) Do(fn func(tx *Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Txn{s: s})
}
