package profile

import (
	"github.com/getsentry/speedscope/internal/calltree"
	"github.com/getsentry/speedscope/internal/frame"
)

// WithRecursionFlattened returns a profile where a frame already on the stack
// is never opened again, so recursive calls fold into their outermost call.
// Every frame of p is carried over with its weights, keeping self time
// identical to the unflattened profile.
func (p *Profile) WithRecursionFlattened() (*Profile, error) {
	b := NewEventBuilder(p.totalWeight, p.formatter)

	var (
		// nil entries mark recursive calls that were not opened.
		stack   []*frame.Frame
		onStack = make(map[frame.ID]struct{})
		err     error
	)
	p.ForEachCall(func(n *calltree.Node, value float64) {
		f := p.frames.ByID(n.Frame)
		if _, exists := onStack[f.ID()]; exists {
			stack = append(stack, nil)
			return
		}
		onStack[f.ID()] = struct{}{}
		stack = append(stack, f)
		if err == nil {
			err = b.EnterFrame(f.Info, value)
		}
	}, func(_ *calltree.Node, value float64) {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f == nil {
			return
		}
		delete(onStack, f.ID())
		if err == nil {
			err = b.LeaveFrame(f.Info, value)
		}
	})
	if err != nil {
		return nil, err
	}

	flat, err := b.Build()
	if err != nil {
		return nil, err
	}
	flat.name = p.name
	flat.formatter = p.formatter
	flat.rawRegTotalWeight = p.rawRegTotalWeight
	p.frames.ForEach(func(src *frame.Frame) {
		flat.frames.GetOrInsert(src.Info).OverwriteWeightWith(&src.Ledger)
	})
	flat.SetInverted(p.inverted)
	return flat, nil
}

// InvertedForCallersOf returns the inverted call tree rooted at the frame
// identified by info: every path leading to it, read from the frame towards
// the root. Occurrences nested under another occurrence are counted through
// the outer one only. With normalized set, regression weights are scaled so
// both channels of the focal frame sum to the same total.
func (p *Profile) InvertedForCallersOf(info frame.Info, normalized bool) (*Profile, error) {
	b := NewStackListBuilder(0, p.formatter)
	b.SetName(p.name)

	focal, exists := p.frames.Get(info.Key)
	if !exists {
		return p.finishView(b)
	}

	tree := p.appendOrder
	var nodes []calltree.NodeID
	tree.Walk(calltree.RootNode, func(id calltree.NodeID) bool {
		if tree.Node(id).Frame == focal.ID() {
			nodes = append(nodes, id)
			return false
		}
		return true
	}, nil)

	regScale := 1.0
	if normalized && len(nodes) > 0 {
		var basSum, regSum float64
		for _, id := range nodes {
			basSum += tree.Node(id).TotalWeight()
			regSum += tree.Node(id).RegTotalWeight()
		}
		if regSum > 0 {
			regScale = basSum / regSum
		}
	}

	for _, id := range nodes {
		path := tree.PathTo(id)
		stack := make([]frame.Info, 0, len(path))
		for i := len(path) - 1; i >= 0; i-- {
			stack = append(stack, p.frames.ByID(path[i]).Info)
		}
		n := tree.Node(id)
		bas, reg := p.storedChannels(n.TotalWeight(), n.RegTotalWeight()*regScale)
		if err := b.AppendSampleWithWeight(stack, bas, reg); err != nil {
			return nil, err
		}
	}
	return p.finishView(b)
}

// ForCalleesOf returns the call tree of everything called from the frame
// identified by info, merging all of its top-level occurrences. With
// normalized set, regression weights are scaled so both channels sum to the
// same self time.
func (p *Profile) ForCalleesOf(info frame.Info, normalized bool) (*Profile, error) {
	b := NewStackListBuilder(0, p.formatter)
	b.SetName(p.name)

	focal, exists := p.frames.Get(info.Key)
	if !exists {
		return p.finishView(b)
	}

	tree := p.appendOrder
	var matches []calltree.NodeID
	tree.Walk(calltree.RootNode, func(id calltree.NodeID) bool {
		if tree.Node(id).Frame == focal.ID() {
			matches = append(matches, id)
			return false
		}
		return true
	}, nil)

	regScale := 1.0
	if normalized && len(matches) > 0 {
		var basSelf, regSelf float64
		for _, m := range matches {
			tree.Walk(m, func(id calltree.NodeID) bool {
				basSelf += tree.Node(id).SelfWeight()
				regSelf += tree.Node(id).RegSelfWeight()
				return true
			}, nil)
		}
		if regSelf > 0 {
			regScale = basSelf / regSelf
			if regScale == 0 {
				regScale = 1
			}
		}
	}

	var (
		stack []frame.Info
		err   error
	)
	for _, m := range matches {
		tree.Walk(m, func(id calltree.NodeID) bool {
			n := tree.Node(id)
			stack = append(stack, p.frames.ByID(n.Frame).Info)
			bas, reg := p.storedChannels(n.SelfWeight(), n.RegSelfWeight()*regScale)
			if err == nil {
				err = b.AppendSampleWithWeight(stack, bas, reg)
			}
			return true
		}, func(calltree.NodeID) {
			stack = stack[:len(stack)-1]
		})
		if err != nil {
			return nil, err
		}
	}
	return p.finishView(b)
}

// storedChannels maps weights read through inversion-aware accessors back to
// the baseline and regression channels a builder expects.
func (p *Profile) storedChannels(bas, reg float64) (float64, float64) {
	if p.inverted {
		return reg, bas
	}
	return bas, reg
}

func (p *Profile) finishView(b *StackListBuilder) (*Profile, error) {
	view, err := b.Build()
	if err != nil {
		return nil, err
	}
	view.formatter = p.formatter
	if p.inverted {
		view.SetInverted(true)
	}
	return view, nil
}
