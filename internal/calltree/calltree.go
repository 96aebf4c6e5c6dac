package calltree

import (
	"slices"

	"github.com/getsentry/speedscope/internal/frame"
	"github.com/getsentry/speedscope/internal/weight"
)

const (
	// RootNode is the synthetic root of every tree.
	RootNode NodeID = 0
	// NoNode marks a missing parent or child.
	NoNode NodeID = -1
)

const (
	// Building nodes may still receive weight and be reused as merge targets.
	Building State = iota
	// Sealed nodes closed in the current sample or stack and are never reused.
	Sealed
)

const (
	// AppendOrder trees keep children in the order they were appended and
	// only ever reuse the most recent child.
	AppendOrder Kind = iota
	// Grouped trees hold at most one child per frame under each parent.
	Grouped
)

type (
	NodeID int32
	State  uint8
	Kind   uint8

	// Node is one occurrence of a frame at a given position in a tree. Its
	// ledger only carries the weight of this occurrence.
	Node struct {
		weight.Ledger

		Frame    frame.ID
		Parent   NodeID
		Children []NodeID
		State    State
	}

	// Tree stores its nodes in a flat table. Nodes reference their parent,
	// children and frame by index.
	Tree struct {
		kind  Kind
		nodes []Node
		index map[childKey]NodeID
	}

	childKey struct {
		parent NodeID
		frame  frame.ID
	}
)

func New(kind Kind) *Tree {
	t := &Tree{
		kind:  kind,
		nodes: []Node{{Frame: frame.RootID, Parent: NoNode}},
	}
	if kind == Grouped {
		t.index = make(map[childKey]NodeID)
	}
	return t
}

func (t *Tree) Kind() Kind {
	return t.kind
}

// Node returns the node stored at id. The pointer is only valid until the
// next node is added to the tree.
func (t *Tree) Node(id NodeID) *Node {
	return &t.nodes[id]
}

func (t *Tree) Len() int {
	return len(t.nodes)
}

func (t *Tree) IsRoot(id NodeID) bool {
	return t.nodes[id].Frame == frame.RootID
}

// AddChild appends a new Building node for f under parent.
func (t *Tree) AddChild(parent NodeID, f frame.ID) NodeID {
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, Node{Frame: f, Parent: parent})
	t.nodes[parent].Children = append(t.nodes[parent].Children, id)
	if t.index != nil {
		t.index[childKey{parent: parent, frame: f}] = id
	}
	return id
}

func (t *Tree) LastChild(parent NodeID) NodeID {
	children := t.nodes[parent].Children
	if len(children) == 0 {
		return NoNode
	}
	return children[len(children)-1]
}

// FindChild returns the child of parent holding f, or NoNode.
func (t *Tree) FindChild(parent NodeID, f frame.ID) NodeID {
	if t.index != nil {
		if id, exists := t.index[childKey{parent: parent, frame: f}]; exists {
			return id
		}
		return NoNode
	}
	for _, id := range t.nodes[parent].Children {
		if t.nodes[id].Frame == f {
			return id
		}
	}
	return NoNode
}

// ReuseOrAdd returns the child of parent that the next occurrence of f should
// merge into, appending a new child when none qualifies. Append-order trees
// only consider the most recent child, grouped trees any child. Sealed nodes
// never qualify.
func (t *Tree) ReuseOrAdd(parent NodeID, f frame.ID) NodeID {
	var candidate NodeID
	if t.kind == AppendOrder {
		candidate = t.LastChild(parent)
	} else {
		candidate = t.FindChild(parent, f)
	}
	if candidate != NoNode {
		n := &t.nodes[candidate]
		if n.State == Building && n.Frame == f {
			return candidate
		}
	}
	return t.AddChild(parent, f)
}

func (t *Tree) Seal(id NodeID) {
	t.nodes[id].State = Sealed
}

func (t *Tree) SealChildren(id NodeID) {
	for _, child := range t.nodes[id].Children {
		t.nodes[child].State = Sealed
	}
}

// Walk visits the subtree rooted at from in depth-first pre-order. When enter
// returns false the children of that node are skipped and leave is not
// called for it. Either callback may be nil.
func (t *Tree) Walk(from NodeID, enter func(id NodeID) bool, leave func(id NodeID)) {
	type item struct {
		id      NodeID
		leaving bool
	}
	stack := []item{{id: from}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if it.leaving {
			if leave != nil {
				leave(it.id)
			}
			continue
		}
		if enter != nil && !enter(it.id) {
			continue
		}
		stack = append(stack, item{id: it.id, leaving: true})
		children := t.nodes[it.id].Children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, item{id: children[i]})
		}
	}
}

// PathTo returns the frames from the first node below the root down to id.
func (t *Tree) PathTo(id NodeID) []frame.ID {
	var path []frame.ID
	for n := id; n != NoNode && !t.IsRoot(n); n = t.nodes[n].Parent {
		path = append(path, t.nodes[n].Frame)
	}
	slices.Reverse(path)
	return path
}

// SortChildren stably sorts the children of every node.
func (t *Tree) SortChildren(cmp func(a, b *Node) int) {
	for i := range t.nodes {
		slices.SortStableFunc(t.nodes[i].Children, func(a, b NodeID) int {
			return cmp(&t.nodes[a], &t.nodes[b])
		})
	}
}

func (t *Tree) SetInverted(inverted bool) {
	for i := range t.nodes {
		t.nodes[i].SetInverted(inverted)
	}
}
