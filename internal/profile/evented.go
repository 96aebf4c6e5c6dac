package profile

import (
	"fmt"
	"math"

	"github.com/getsentry/speedscope/internal/calltree"
	"github.com/getsentry/speedscope/internal/frame"
	"github.com/getsentry/speedscope/internal/valueformat"
)

// EventBuilder builds a profile from a stream of open and close events
// carrying a cumulative value, without materializing whole stacks.
type EventBuilder struct {
	p *Profile

	appendOrderStack []calltree.NodeID
	groupedStack     []calltree.NodeID

	stack         []frame.ID
	framesInStack map[frame.ID]int

	lastValue float64
	built     bool
}

func NewEventBuilder(totalWeight float64, formatter valueformat.Formatter) *EventBuilder {
	return &EventBuilder{
		p:                newProfile(totalWeight, formatter),
		appendOrderStack: []calltree.NodeID{calltree.RootNode},
		groupedStack:     []calltree.NodeID{calltree.RootNode},
		framesInStack:    make(map[frame.ID]int),
	}
}

func (b *EventBuilder) SetName(name string) {
	b.p.SetName(name)
}

func (b *EventBuilder) SetFormatter(f valueformat.Formatter) {
	b.p.SetFormatter(f)
}

func (b *EventBuilder) checkValue(value float64) error {
	if math.IsNaN(value) {
		return fmt.Errorf("%w: value is NaN", ErrInvalidWeight)
	}
	if value < b.lastValue {
		return fmt.Errorf(
			"%w: samples must be provided in increasing order of cumulative value, last value was %v, this value was %v",
			ErrOutOfOrder,
			b.lastValue,
			value,
		)
	}
	return nil
}

// addWeightsToFrames credits the time elapsed since the last event to every
// frame on the stack once, and to the top frame as self time.
func (b *EventBuilder) addWeightsToFrames(value float64) {
	delta := value - b.lastValue
	for id := range b.framesInStack {
		b.p.frames.ByID(id).AddToTotalWeight(delta)
	}
	if len(b.stack) > 0 {
		b.p.frames.ByID(b.stack[len(b.stack)-1]).AddToSelfWeight(delta)
	}
}

func (b *EventBuilder) addWeightsToNodes(value float64, tree *calltree.Tree, stack []calltree.NodeID) {
	delta := value - b.lastValue
	for _, id := range stack {
		tree.Node(id).AddToTotalWeight(delta)
	}
	tree.Node(stack[len(stack)-1]).AddToSelfWeight(delta)
}

func (b *EventBuilder) recordSample(node calltree.NodeID, value float64) {
	if delta := value - b.lastValue; delta > 0 {
		b.p.samples = append(b.p.samples, node)
		b.p.weights = append(b.p.weights, delta)
		b.p.regWeights = append(b.p.regWeights, 0)
	}
}

// EnterFrame opens a frame at the given cumulative value.
func (b *EventBuilder) EnterFrame(info frame.Info, value float64) error {
	if b.built {
		return ErrAlreadyBuilt
	}
	if err := b.checkValue(value); err != nil {
		return err
	}
	f := b.p.frames.GetOrInsert(info).ID()
	b.addWeightsToFrames(value)

	b.addWeightsToNodes(value, b.p.appendOrder, b.appendOrderStack)
	top := b.appendOrderStack[len(b.appendOrderStack)-1]
	b.recordSample(top, value)
	b.appendOrderStack = append(b.appendOrderStack, b.p.appendOrder.ReuseOrAdd(top, f))

	b.addWeightsToNodes(value, b.p.grouped, b.groupedStack)
	top = b.groupedStack[len(b.groupedStack)-1]
	b.groupedStack = append(b.groupedStack, b.p.grouped.ReuseOrAdd(top, f))

	b.stack = append(b.stack, f)
	b.framesInStack[f]++
	b.advance(value)
	return nil
}

// LeaveFrame closes the frame at the top of the stack. Closing any other
// frame returns ErrUnbalancedFrames.
func (b *EventBuilder) LeaveFrame(info frame.Info, value float64) error {
	if b.built {
		return ErrAlreadyBuilt
	}
	if err := b.checkValue(value); err != nil {
		return err
	}
	if len(b.appendOrderStack) <= 1 {
		return fmt.Errorf("%w: trying to leave %q when the stack is empty", ErrUnbalancedFrames, info.Key)
	}
	top := b.appendOrderStack[len(b.appendOrderStack)-1]
	topFrame := b.p.frames.ByID(b.p.appendOrder.Node(top).Frame)
	if topFrame.Key != info.Key {
		return fmt.Errorf(
			"%w: tried to leave frame %q while frame %q was at the top at %v",
			ErrUnbalancedFrames,
			info.Name,
			topFrame.Name,
			value,
		)
	}
	f := topFrame.ID()
	b.addWeightsToFrames(value)

	b.addWeightsToNodes(value, b.p.appendOrder, b.appendOrderStack)
	b.appendOrderStack = b.appendOrderStack[:len(b.appendOrderStack)-1]
	b.p.appendOrder.Seal(top)
	b.recordSample(top, value)

	b.addWeightsToNodes(value, b.p.grouped, b.groupedStack)
	b.groupedStack = b.groupedStack[:len(b.groupedStack)-1]

	b.stack = b.stack[:len(b.stack)-1]
	if b.framesInStack[f] <= 1 {
		delete(b.framesInStack, f)
	} else {
		b.framesInStack[f]--
	}
	b.advance(value)
	return nil
}

func (b *EventBuilder) advance(value float64) {
	b.lastValue = value
	b.p.totalWeight = math.Max(b.p.totalWeight, value)
}

// Build finalizes the profile. Every opened frame must have been closed.
func (b *EventBuilder) Build() (*Profile, error) {
	if b.built {
		return b.p, nil
	}
	if len(b.appendOrderStack) > 1 || len(b.groupedStack) > 1 {
		return nil, fmt.Errorf("%w: %d frames are still open", ErrIncompleteTrace, len(b.stack))
	}
	b.p.sortGroupedTree()
	b.built = true
	return b.p, nil
}
