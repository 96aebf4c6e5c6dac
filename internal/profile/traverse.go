package profile

import (
	"slices"

	"github.com/getsentry/speedscope/internal/calltree"
)

// CallFunc receives a node being opened or closed and the cumulative value
// at which it happens.
type CallFunc func(node *calltree.Node, value float64)

// ForEachCall replays the samples as a stream of open and close events on the
// append-order tree. Between consecutive samples, frames below their lowest
// common ancestor are closed and the new ones opened.
func (p *Profile) ForEachCall(open, close CallFunc) {
	tree := p.appendOrder
	var (
		prevStack []calltree.NodeID
		isOpen    = make(map[calltree.NodeID]struct{})
		toOpen    []calltree.NodeID
		value     float64
	)

	for i, top := range p.samples {
		lca := top
		for lca != calltree.NoNode && !tree.IsRoot(lca) {
			if _, exists := isOpen[lca]; exists {
				break
			}
			lca = tree.Node(lca).Parent
		}

		for len(prevStack) > 0 && prevStack[len(prevStack)-1] != lca {
			id := prevStack[len(prevStack)-1]
			prevStack = prevStack[:len(prevStack)-1]
			delete(isOpen, id)
			close(tree.Node(id), value)
		}

		toOpen = toOpen[:0]
		for id := top; id != calltree.NoNode && !tree.IsRoot(id) && id != lca; id = tree.Node(id).Parent {
			toOpen = append(toOpen, id)
		}
		for j := len(toOpen) - 1; j >= 0; j-- {
			id := toOpen[j]
			open(tree.Node(id), value)
			prevStack = append(prevStack, id)
			isOpen[id] = struct{}{}
		}

		value += p.weights[i]
	}

	for i := len(prevStack) - 1; i >= 0; i-- {
		close(tree.Node(prevStack[i]), value)
	}
}

// ForEachCallGrouped walks the grouped tree depth-first, laying children out
// one after the other by baseline total weight.
func (p *Profile) ForEachCallGrouped(open, close CallFunc) {
	p.forEachCallGrouped(open, close, (*calltree.Node).TotalWeight, false)
}

// ForEachCallGroupedByRegWeight is ForEachCallGrouped on the regression
// channel. Children are ordered by regression total weight for the walk only;
// the tree keeps its baseline order.
func (p *Profile) ForEachCallGroupedByRegWeight(open, close CallFunc) {
	p.forEachCallGrouped(open, close, (*calltree.Node).RegTotalWeight, true)
}

func (p *Profile) forEachCallGrouped(open, close CallFunc, weightOf func(*calltree.Node) float64, resort bool) {
	tree := p.grouped
	type visit struct {
		id       calltree.NodeID
		start    float64
		children []calltree.NodeID
		next     int
		offset   float64
	}
	childrenOf := func(id calltree.NodeID) []calltree.NodeID {
		children := tree.Node(id).Children
		if !resort {
			return children
		}
		sorted := slices.Clone(children)
		slices.SortStableFunc(sorted, func(a, b calltree.NodeID) int {
			wa, wb := weightOf(tree.Node(a)), weightOf(tree.Node(b))
			switch {
			case wa > wb:
				return -1
			case wa < wb:
				return 1
			}
			return 0
		})
		return sorted
	}

	stack := []visit{{id: calltree.RootNode, children: childrenOf(calltree.RootNode)}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.children) {
			child := top.children[top.next]
			top.next++
			start := top.start + top.offset
			top.offset += weightOf(tree.Node(child))
			open(tree.Node(child), start)
			stack = append(stack, visit{id: child, start: start, children: childrenOf(child)})
			continue
		}
		if top.id != calltree.RootNode {
			close(tree.Node(top.id), top.start+weightOf(tree.Node(top.id)))
		}
		stack = stack[:len(stack)-1]
	}
}
