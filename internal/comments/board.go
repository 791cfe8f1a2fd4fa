package comments

import (
	"sync"
)

// Board holds the comment trees of every product that received events.
type Board struct {
	mu    sync.RWMutex
	trees map[string]*Tree
}

func NewBoard() *Board {
	return &Board{trees: make(map[string]*Tree)}
}

func (b *Board) Apply(p Patch) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.trees[p.ProductID]
	if !ok {
		t = NewTree(nil)
	}
	if err := t.Apply(p); err != nil {
		return err
	}
	b.trees[p.ProductID] = t
	return nil
}

// Comments returns a copy of a product's thread; unknown products have none.
func (b *Board) Comments(productID string) []*Comment {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, ok := b.trees[productID]
	if !ok {
		return []*Comment{}
	}
	return t.Comments()
}
