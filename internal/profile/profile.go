package profile

import (
	"github.com/getsentry/speedscope/internal/calltree"
	"github.com/getsentry/speedscope/internal/frame"
	"github.com/getsentry/speedscope/internal/valueformat"
)

type (
	// Profile is a built call tree representation of a trace. It stores two
	// trees over the same frame registry:
	//
	// The append-order tree keeps nodes in the order they were appended to
	// their parent, so replaying its samples reproduces the trace.
	//
	// The grouped tree holds at most one child per frame under each parent,
	// with children sorted by decreasing total weight.
	//
	// Profiles are returned by builders and must be treated as immutable,
	// except through SetInverted and RemapSymbols.
	Profile struct {
		name        string
		totalWeight float64
		formatter   valueformat.Formatter
		inverted    bool

		frames     *frame.Registry
		nameCounts map[string]int

		appendOrder *calltree.Tree
		grouped     *calltree.Tree

		// samples holds the append-order node at the top of the stack for
		// each sample, weights and regWeights its baseline and regression
		// weight.
		samples    []calltree.NodeID
		weights    []float64
		regWeights []float64

		rawRegTotalWeight *float64

		totalRegWeight        *float64
		totalNonIdleWeight    *float64
		totalNonIdleRegWeight *float64
	}

	// Group is the set of profiles produced by a single import.
	Group struct {
		Name        string
		IndexToView int
		Profiles    []*Profile
	}
)

func newProfile(totalWeight float64, formatter valueformat.Formatter) *Profile {
	if formatter == nil {
		formatter = valueformat.Raw{}
	}
	return &Profile{
		totalWeight: totalWeight,
		formatter:   formatter,
		frames:      frame.NewRegistry(),
		nameCounts:  make(map[string]int),
		appendOrder: calltree.New(calltree.AppendOrder),
		grouped:     calltree.New(calltree.Grouped),
	}
}

// ActiveProfile returns the profile selected for display, or nil for an
// empty group.
func (g *Group) ActiveProfile() *Profile {
	if len(g.Profiles) == 0 {
		return nil
	}
	if g.IndexToView < 0 || g.IndexToView >= len(g.Profiles) {
		return g.Profiles[0]
	}
	return g.Profiles[g.IndexToView]
}

func (p *Profile) Name() string {
	return p.name
}

func (p *Profile) SetName(name string) {
	p.name = name
}

func (p *Profile) Formatter() valueformat.Formatter {
	return p.formatter
}

func (p *Profile) SetFormatter(f valueformat.Formatter) {
	p.formatter = f
}

func (p *Profile) FormatValue(v float64) string {
	return p.formatter.Format(v)
}

func (p *Profile) WeightUnit() valueformat.Unit {
	return p.formatter.Unit()
}

func (p *Profile) AppendOrderTree() *calltree.Tree {
	return p.appendOrder
}

func (p *Profile) GroupedTree() *calltree.Tree {
	return p.grouped
}

// Frame resolves a frame id of this profile's trees.
func (p *Profile) Frame(id frame.ID) *frame.Frame {
	return p.frames.ByID(id)
}

func (p *Profile) FrameByKey(k frame.Key) (*frame.Frame, bool) {
	return p.frames.Get(k)
}

func (p *Profile) FrameByName(name string) (*frame.Frame, bool) {
	return p.frames.ByName(name)
}

// ForEachFrame visits frames in the order they were first seen.
func (p *Profile) ForEachFrame(fn func(f *frame.Frame)) {
	p.frames.ForEach(fn)
}

// Size returns the number of distinct frames.
func (p *Profile) Size() int {
	return p.frames.Len()
}

// NameCount returns how many grouped tree nodes carry the given frame name.
// Unknown names count once.
func (p *Profile) NameCount(name string) int {
	if c, exists := p.nameCounts[name]; exists {
		return c
	}
	return 1
}

func (p *Profile) Samples() []calltree.NodeID {
	return p.samples
}

func (p *Profile) Weights() []float64 {
	if p.inverted {
		return p.regWeights
	}
	return p.weights
}

func (p *Profile) RegWeights() []float64 {
	if p.inverted {
		return p.weights
	}
	return p.regWeights
}

func (p *Profile) HasDiffData() bool {
	for _, w := range p.regWeights {
		if w > 0 {
			return true
		}
	}
	return false
}

func (p *Profile) IsInverted() bool {
	return p.inverted
}

// SetInverted swaps the baseline and regression channels of the profile,
// every frame and every node of both trees.
func (p *Profile) SetInverted(inverted bool) {
	p.inverted = inverted
	p.frames.ForEach(func(f *frame.Frame) {
		f.SetInverted(inverted)
	})
	p.appendOrder.SetInverted(inverted)
	p.grouped.SetInverted(inverted)
}

func (p *Profile) TotalWeight() float64 {
	if p.inverted {
		return p.sumRegWeights()
	}
	return p.totalWeight
}

func (p *Profile) TotalRegWeight() float64 {
	if p.inverted {
		return p.totalWeight
	}
	return p.sumRegWeights()
}

// RawRegTotalWeight is the regression total before normalization, when the
// importer recorded it.
func (p *Profile) RawRegTotalWeight() (float64, bool) {
	if p.rawRegTotalWeight == nil {
		return 0, false
	}
	return *p.rawRegTotalWeight, true
}

func (p *Profile) SetRawRegTotalWeight(w float64) {
	p.rawRegTotalWeight = &w
}

// TotalNonIdleWeight sums the top-level frames of the grouped tree, leaving
// out time spent with an empty stack.
func (p *Profile) TotalNonIdleWeight() float64 {
	if p.inverted {
		return p.nonIdleRegWeight()
	}
	return p.nonIdleWeight()
}

func (p *Profile) TotalNonIdleRegWeight() float64 {
	if p.inverted {
		return p.nonIdleWeight()
	}
	return p.nonIdleRegWeight()
}

func (p *Profile) sumRegWeights() float64 {
	if p.totalRegWeight == nil {
		var sum float64
		for _, w := range p.regWeights {
			sum += w
		}
		p.totalRegWeight = &sum
	}
	return *p.totalRegWeight
}

// The non-idle caches hold stored channels so that inverting the profile
// does not invalidate them.
func (p *Profile) nonIdleWeight() float64 {
	if p.totalNonIdleWeight == nil {
		p.cacheNonIdleWeights()
	}
	return *p.totalNonIdleWeight
}

func (p *Profile) nonIdleRegWeight() float64 {
	if p.totalNonIdleRegWeight == nil {
		p.cacheNonIdleWeights()
	}
	return *p.totalNonIdleRegWeight
}

func (p *Profile) cacheNonIdleWeights() {
	var bas, reg float64
	for _, id := range p.grouped.Node(calltree.RootNode).Children {
		n := p.grouped.Node(id)
		if n.IsInverted() {
			bas += n.RegTotalWeight()
			reg += n.TotalWeight()
		} else {
			bas += n.TotalWeight()
			reg += n.RegTotalWeight()
		}
	}
	p.totalNonIdleWeight = &bas
	p.totalNonIdleRegWeight = &reg
}

// ShallowClone returns a new profile sharing this profile's trees, frames
// and samples.
func (p *Profile) ShallowClone() *Profile {
	c := *p
	return &c
}

// Dispose drops the trees and frames of the profile.
func (p *Profile) Dispose() {
	empty := newProfile(0, p.formatter)
	*p = *empty
}

// sortGroupedTree orders the grouped tree by decreasing total weight and
// counts frame name occurrences. Builders call it once from Build.
func (p *Profile) sortGroupedTree() {
	p.grouped.SortChildren(func(a, b *calltree.Node) int {
		switch {
		case a.TotalWeight() > b.TotalWeight():
			return -1
		case a.TotalWeight() < b.TotalWeight():
			return 1
		}
		return 0
	})
	p.countNames()
}

func (p *Profile) countNames() {
	counts := make(map[string]int)
	p.grouped.Walk(calltree.RootNode, func(id calltree.NodeID) bool {
		if p.grouped.IsRoot(id) {
			return true
		}
		counts[p.frames.ByID(p.grouped.Node(id).Frame).Name]++
		return true
	}, nil)
	p.nameCounts = counts
}
