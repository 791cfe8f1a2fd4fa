// Package comments keeps per-product comment threads in sync with the
// comment events pushed by the storefront's real-time channel.
package comments

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	ErrUnknownOp     = errors.New("unknown comment operation")
	ErrNodeNotFound  = errors.New("comment not found")
	ErrMissingNodeID = errors.New("comment id is required")
)

type Comment struct {
	ID        string     `json:"id"`
	ParentID  string     `json:"parent_id,omitempty"`
	Author    string     `json:"author"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
	Replies   []*Comment `json:"replies"`
}

func (c *Comment) clone() *Comment {
	if c == nil {
		return nil
	}
	out := *c
	out.Replies = cloneAll(c.Replies)
	return &out
}

func cloneAll(nodes []*Comment) []*Comment {
	out := make([]*Comment, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.clone())
	}
	return out
}

type Op int

const (
	OpCreate Op = iota + 1
	OpUpdate
	OpReply
	OpDelete
	OpDeleteMultiple
)

var opNames = map[Op]string{
	OpCreate:         "create",
	OpUpdate:         "update",
	OpReply:          "reply",
	OpDelete:         "delete",
	OpDeleteMultiple: "delete-multiple",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

func ParseOp(s string) (Op, error) {
	for op, name := range opNames {
		if name == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOp, s)
}

// Patch is one change to a product's comment tree. ParentID is used by
// replies, IDs by multi-delete, Comment by create, update and reply.
type Patch struct {
	Op        Op
	ProductID string
	ParentID  string
	IDs       []string
	Comment   *Comment
}

// Tree is the comment thread of one product. It is not safe for concurrent
// use; Board serializes access.
type Tree struct {
	roots []*Comment
}

func NewTree(roots []*Comment) *Tree {
	return &Tree{roots: cloneAll(roots)}
}

// Comments returns a deep copy of the thread.
func (t *Tree) Comments() []*Comment {
	return cloneAll(t.roots)
}

// Apply changes the tree in place. Creating an id that already exists
// replaces it, and deleting ids that are gone is not an error, so replayed
// events converge.
func (t *Tree) Apply(p Patch) error {
	switch p.Op {
	case OpCreate:
		c, err := incoming(p.Comment)
		if err != nil {
			return err
		}
		c.ParentID = ""
		if roots, found := splice(t.roots, c.ID, replaceKeepingReplies(c)); found {
			t.roots = roots
			return nil
		}
		t.roots = append(t.roots, c)
		return nil

	case OpUpdate:
		c, err := incoming(p.Comment)
		if err != nil {
			return err
		}
		roots, found := splice(t.roots, c.ID, replaceKeepingReplies(c))
		if !found {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, c.ID)
		}
		t.roots = roots
		return nil

	case OpReply:
		c, err := incoming(p.Comment)
		if err != nil {
			return err
		}
		parentID := p.ParentID
		if parentID == "" {
			parentID = c.ParentID
		}
		if parentID == "" {
			return fmt.Errorf("%w: reply without parent", ErrMissingNodeID)
		}
		c.ParentID = parentID
		if roots, found := splice(t.roots, c.ID, replaceKeepingReplies(c)); found {
			t.roots = roots
			return nil
		}
		roots, found := splice(t.roots, parentID, func(parent *Comment) *Comment {
			parent.Replies = append(parent.Replies, c)
			return parent
		})
		if !found {
			return fmt.Errorf("%w: parent %s", ErrNodeNotFound, parentID)
		}
		t.roots = roots
		return nil

	case OpDelete, OpDeleteMultiple:
		ids := p.IDs
		if p.Op == OpDelete && len(ids) == 0 && p.Comment != nil {
			ids = []string{p.Comment.ID}
		}
		for _, id := range ids {
			t.roots, _ = splice(t.roots, id, func(*Comment) *Comment { return nil })
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownOp, p.Op)
}

func incoming(c *Comment) (*Comment, error) {
	if c == nil || c.ID == "" {
		return nil, ErrMissingNodeID
	}
	return c.clone(), nil
}

func replaceKeepingReplies(c *Comment) func(*Comment) *Comment {
	return func(old *Comment) *Comment {
		c.ParentID = old.ParentID
		if len(c.Replies) == 0 {
			c.Replies = old.Replies
		}
		return c
	}
}

// splice finds id among nodes and their descendants and replaces that node
// with fn's result; a nil result removes the node with its subtree.
func splice(nodes []*Comment, id string, fn func(*Comment) *Comment) ([]*Comment, bool) {
	for i, n := range nodes {
		if n.ID == id {
			if next := fn(n); next != nil {
				nodes[i] = next
				return nodes, true
			}
			return slices.Delete(nodes, i, i+1), true
		}
		if replies, found := splice(n.Replies, id, fn); found {
			n.Replies = replies
			return nodes, true
		}
	}
	return nodes, false
}
