package profile

import (
	"fmt"
	"math"

	"github.com/getsentry/speedscope/internal/calltree"
	"github.com/getsentry/speedscope/internal/frame"
	"github.com/getsentry/speedscope/internal/valueformat"
)

type (
	// StackListBuilder builds a profile from whole stacks, each listed from
	// the root to the leaf, with a baseline and a regression weight.
	StackListBuilder struct {
		p       *Profile
		pending *pendingSample
		built   bool
	}

	pendingSample struct {
		stack            []frame.Info
		startTimestamp   float64
		centralTimestamp float64
	}
)

// NewStackListBuilder returns a builder for a profile whose declared total
// weight is totalWeight. The built profile's total is the larger of this value
// and the sum of the sample weights.
func NewStackListBuilder(totalWeight float64, formatter valueformat.Formatter) *StackListBuilder {
	return &StackListBuilder{p: newProfile(totalWeight, formatter)}
}

func (b *StackListBuilder) SetName(name string) {
	b.p.SetName(name)
}

func (b *StackListBuilder) SetFormatter(f valueformat.Formatter) {
	b.p.SetFormatter(f)
}

// AppendSampleWithWeight records one stack. Samples with both weights at zero
// are ignored. Negative or NaN weights return ErrInvalidWeight and leave the
// profile untouched.
func (b *StackListBuilder) AppendSampleWithWeight(stack []frame.Info, weight, regWeight float64) error {
	if b.built {
		return ErrAlreadyBuilt
	}
	if weight == 0 && regWeight == 0 {
		return nil
	}
	if weight < 0 || regWeight < 0 || math.IsNaN(weight) || math.IsNaN(regWeight) {
		return fmt.Errorf("%w: samples must have non-negative weights, got %v and %v", ErrInvalidWeight, weight, regWeight)
	}

	frames := make([]frame.ID, 0, len(stack))
	for _, info := range stack {
		frames = append(frames, b.p.frames.GetOrInsert(info).ID())
	}
	b.appendSample(frames, weight, regWeight, b.p.appendOrder)
	b.appendSample(frames, weight, regWeight, b.p.grouped)
	return nil
}

func (b *StackListBuilder) appendSample(frames []frame.ID, weight, regWeight float64, tree *calltree.Tree) {
	node := calltree.RootNode

	// A frame can occur several times in one stack through direct or indirect
	// recursion. Its frame-level total only counts once per sample.
	framesInStack := make([]frame.ID, 0, len(frames))
	seen := make(map[frame.ID]struct{}, len(frames))

	for _, f := range frames {
		node = tree.ReuseOrAdd(node, f)
		n := tree.Node(node)
		n.AddToTotalWeight(weight)
		n.AddToRegTotalWeight(regWeight)
		if _, exists := seen[f]; !exists {
			seen[f] = struct{}{}
			framesInStack = append(framesInStack, f)
		}
	}
	leaf := tree.Node(node)
	leaf.AddToSelfWeight(weight)
	leaf.AddToRegSelfWeight(regWeight)

	if tree.Kind() != calltree.AppendOrder {
		return
	}

	// Children left over from earlier samples belong to calls that already
	// returned.
	tree.SealChildren(node)

	if node != calltree.RootNode {
		leafFrame := b.p.frames.ByID(leaf.Frame)
		leafFrame.AddToSelfWeight(weight)
		leafFrame.AddToRegSelfWeight(regWeight)
	}
	for _, id := range framesInStack {
		f := b.p.frames.ByID(id)
		f.AddToTotalWeight(weight)
		f.AddToRegTotalWeight(regWeight)
	}

	if last := len(b.p.samples) - 1; last >= 0 && b.p.samples[last] == node {
		b.p.weights[last] += weight
		b.p.regWeights[last] += regWeight
		return
	}
	b.p.samples = append(b.p.samples, node)
	b.p.weights = append(b.p.weights, weight)
	b.p.regWeights = append(b.p.regWeights, regWeight)
}

// AppendSampleWithTimestamp records a stack observed at an absolute timestamp.
// Each sample spans from the midpoint with the previous timestamp to the
// midpoint with the next one, so its weight is only known once the next
// sample arrives. Timestamps must not decrease.
func (b *StackListBuilder) AppendSampleWithTimestamp(stack []frame.Info, timestamp float64) error {
	if b.built {
		return ErrAlreadyBuilt
	}
	if math.IsNaN(timestamp) {
		return fmt.Errorf("%w: timestamp is NaN", ErrInvalidWeight)
	}
	if b.pending == nil {
		b.pending = &pendingSample{stack: stack, startTimestamp: timestamp, centralTimestamp: timestamp}
		return nil
	}
	if timestamp < b.pending.centralTimestamp {
		return fmt.Errorf("%w: timestamp %v received after %v", ErrOutOfOrder, timestamp, b.pending.centralTimestamp)
	}
	end := (timestamp + b.pending.centralTimestamp) / 2
	if err := b.AppendSampleWithWeight(b.pending.stack, end-b.pending.startTimestamp, 0); err != nil {
		return err
	}
	b.pending = &pendingSample{stack: stack, startTimestamp: end, centralTimestamp: timestamp}
	return nil
}

// Build flushes the pending timestamped sample and finalizes the profile.
func (b *StackListBuilder) Build() (*Profile, error) {
	if b.built {
		return b.p, nil
	}
	if b.pending != nil {
		if len(b.p.samples) > 0 {
			err := b.AppendSampleWithWeight(b.pending.stack, b.pending.centralTimestamp-b.pending.startTimestamp, 0)
			if err != nil {
				return nil, err
			}
		} else {
			// A duration can't be inferred from a single instant.
			if err := b.AppendSampleWithWeight(b.pending.stack, 1, 0); err != nil {
				return nil, err
			}
			b.p.SetFormatter(valueformat.Raw{})
		}
		b.pending = nil
	}

	var sum float64
	for _, w := range b.p.weights {
		sum += w
	}
	b.p.totalWeight = math.Max(b.p.totalWeight, sum)
	b.p.sortGroupedTree()
	b.built = true
	return b.p, nil
}
