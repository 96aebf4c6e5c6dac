package profile

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/getsentry/speedscope/internal/calltree"
	"github.com/getsentry/speedscope/internal/errorutil"
	"github.com/getsentry/speedscope/internal/frame"
	"github.com/getsentry/speedscope/internal/testutil"
	"github.com/getsentry/speedscope/internal/valueformat"
)

type (
	nodeSummary struct {
		Path     string
		Total    float64
		Self     float64
		RegTotal float64
		RegSelf  float64
	}

	frameSummary struct {
		Name  string
		Total float64
		Self  float64
	}

	weightedStack struct {
		stack     string
		weight    float64
		regWeight float64
	}
)

func info(name string) frame.Info {
	return frame.Info{Key: frame.StringKey(name), Name: name}
}

func stack(s string) []frame.Info {
	if s == "" {
		return nil
	}
	names := strings.Split(s, ";")
	infos := make([]frame.Info, 0, len(names))
	for _, n := range names {
		infos = append(infos, info(n))
	}
	return infos
}

func buildStacks(t *testing.T, samples []weightedStack) *Profile {
	t.Helper()
	b := NewStackListBuilder(0, valueformat.Raw{})
	for _, s := range samples {
		if err := b.AppendSampleWithWeight(stack(s.stack), s.weight, s.regWeight); err != nil {
			t.Fatalf("unexpected error appending %q: %v", s.stack, err)
		}
	}
	p, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error building: %v", err)
	}
	return p
}

// summarize lists the nodes of a tree depth-first with their weights.
func summarize(p *Profile, tree *calltree.Tree) []nodeSummary {
	var nodes []nodeSummary
	tree.Walk(calltree.RootNode, func(id calltree.NodeID) bool {
		if tree.IsRoot(id) {
			return true
		}
		var names []string
		for _, f := range tree.PathTo(id) {
			names = append(names, p.Frame(f).Name)
		}
		n := tree.Node(id)
		nodes = append(nodes, nodeSummary{
			Path:     strings.Join(names, ";"),
			Total:    n.TotalWeight(),
			Self:     n.SelfWeight(),
			RegTotal: n.RegTotalWeight(),
			RegSelf:  n.RegSelfWeight(),
		})
		return true
	}, nil)
	return nodes
}

func summarizeFrames(p *Profile) []frameSummary {
	var frames []frameSummary
	p.ForEachFrame(func(f *frame.Frame) {
		frames = append(frames, frameSummary{Name: f.Name, Total: f.TotalWeight(), Self: f.SelfWeight()})
	})
	return frames
}

func TestStackListBuilder(t *testing.T) {
	tests := []struct {
		name        string
		samples     []weightedStack
		totalWeight float64
		grouped     []nodeSummary
		frames      []frameSummary
		weights     []float64
	}{
		{
			name: "shared prefix",
			samples: []weightedStack{
				{stack: "a;b;c", weight: 100},
				{stack: "a;b", weight: 50},
			},
			totalWeight: 150,
			grouped: []nodeSummary{
				{Path: "a", Total: 150},
				{Path: "a;b", Total: 150, Self: 50},
				{Path: "a;b;c", Total: 100, Self: 100},
			},
			frames: []frameSummary{
				{Name: "a", Total: 150},
				{Name: "b", Total: 150, Self: 50},
				{Name: "c", Total: 100, Self: 100},
			},
			weights: []float64{100, 50},
		},
		{
			name: "recursion counts frames once per sample",
			samples: []weightedStack{
				{stack: "a;b;a", weight: 10},
			},
			totalWeight: 10,
			grouped: []nodeSummary{
				{Path: "a", Total: 10},
				{Path: "a;b", Total: 10},
				{Path: "a;b;a", Total: 10, Self: 10},
			},
			frames: []frameSummary{
				{Name: "a", Total: 10, Self: 10},
				{Name: "b", Total: 10},
			},
			weights: []float64{10},
		},
		{
			name: "consecutive samples on the same node are coalesced",
			samples: []weightedStack{
				{stack: "a;b", weight: 1},
				{stack: "a;b", weight: 2},
				{stack: "c", weight: 4},
			},
			totalWeight: 7,
			grouped: []nodeSummary{
				{Path: "c", Total: 4, Self: 4},
				{Path: "a", Total: 3},
				{Path: "a;b", Total: 3, Self: 3},
			},
			frames: []frameSummary{
				{Name: "a", Total: 3},
				{Name: "b", Total: 3, Self: 3},
				{Name: "c", Total: 4, Self: 4},
			},
			weights: []float64{3, 4},
		},
		{
			name: "samples without weight are ignored",
			samples: []weightedStack{
				{stack: "a", weight: 0},
				{stack: "b", weight: 5},
			},
			totalWeight: 5,
			grouped: []nodeSummary{
				{Path: "b", Total: 5, Self: 5},
			},
			frames: []frameSummary{
				{Name: "b", Total: 5, Self: 5},
			},
			weights: []float64{5},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := buildStacks(t, test.samples)
			if p.TotalWeight() != test.totalWeight {
				t.Fatalf("expected total weight %v, got %v", test.totalWeight, p.TotalWeight())
			}
			if diff := testutil.Diff(summarize(p, p.GroupedTree()), test.grouped); diff != "" {
				t.Fatalf("grouped tree mismatch: got - want +\n%s", diff)
			}
			if diff := testutil.Diff(summarizeFrames(p), test.frames); diff != "" {
				t.Fatalf("frames mismatch: got - want +\n%s", diff)
			}
			if diff := testutil.Diff(p.Weights(), test.weights); diff != "" {
				t.Fatalf("weights mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestStackListBuilderAppendOrderSplitsReturnedCalls(t *testing.T) {
	p := buildStacks(t, []weightedStack{
		{stack: "a;b", weight: 1},
		{stack: "a", weight: 1},
		{stack: "a;b", weight: 1},
	})

	want := []nodeSummary{
		{Path: "a", Total: 3, Self: 1},
		{Path: "a;b", Total: 1, Self: 1},
		{Path: "a;b", Total: 1, Self: 1},
	}
	if diff := testutil.Diff(summarize(p, p.AppendOrderTree()), want); diff != "" {
		t.Fatalf("append-order tree mismatch: got - want +\n%s", diff)
	}
}

func TestStackListBuilderInvalidWeight(t *testing.T) {
	b := NewStackListBuilder(0, nil)
	if err := b.AppendSampleWithWeight(stack("a"), 10, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, w := range [][2]float64{{-1, 0}, {0, -1}, {math.NaN(), 0}} {
		err := b.AppendSampleWithWeight(stack("b;c"), w[0], w[1])
		if !errors.Is(err, ErrInvalidWeight) {
			t.Fatalf("expected ErrInvalidWeight for %v, got %v", w, err)
		}
		if !errors.Is(err, errorutil.ErrDataIntegrity) {
			t.Fatalf("expected a data integrity error, got %v", err)
		}
	}

	p, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Size() != 1 || p.TotalWeight() != 10 {
		t.Fatalf("rejected samples should leave the profile untouched, got %d frames and total %v", p.Size(), p.TotalWeight())
	}
}

func TestStackListBuilderTimestamps(t *testing.T) {
	b := NewStackListBuilder(0, valueformat.NewTime(valueformat.Milliseconds))
	for _, s := range []struct {
		stack string
		ts    float64
	}{
		{"a", 0},
		{"a;b", 10},
		{"a", 20},
	} {
		if err := b.AppendSampleWithTimestamp(stack(s.stack), s.ts); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := b.AppendSampleWithTimestamp(stack("a"), 19); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}

	p, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := testutil.Diff(p.Weights(), []float64{5, 10, 5}); diff != "" {
		t.Fatalf("weights mismatch: got - want +\n%s", diff)
	}
	want := []frameSummary{
		{Name: "a", Total: 20, Self: 10},
		{Name: "b", Total: 10, Self: 10},
	}
	if diff := testutil.Diff(summarizeFrames(p), want); diff != "" {
		t.Fatalf("frames mismatch: got - want +\n%s", diff)
	}
	if p.WeightUnit() != valueformat.Milliseconds {
		t.Fatalf("expected the time formatter to be kept, got %v", p.WeightUnit())
	}
}

func TestStackListBuilderSingleTimestamp(t *testing.T) {
	b := NewStackListBuilder(0, valueformat.NewTime(valueformat.Milliseconds))
	if err := b.AppendSampleWithTimestamp(stack("a"), 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.TotalWeight() != 1 {
		t.Fatalf("expected a single sample to weigh 1, got %v", p.TotalWeight())
	}
	if p.WeightUnit() != valueformat.None {
		t.Fatalf("expected a unitless profile, got %v", p.WeightUnit())
	}
}

func TestEventBuilder(t *testing.T) {
	type event struct {
		enter bool
		name  string
		value float64
	}
	tests := []struct {
		name   string
		events []event
		want   error
	}{
		{
			name: "balanced",
			events: []event{
				{true, "a", 0},
				{true, "b", 2},
				{false, "b", 5},
				{false, "a", 10},
			},
		},
		{
			name: "out of order",
			events: []event{
				{true, "a", 5},
				{true, "b", 3},
			},
			want: ErrOutOfOrder,
		},
		{
			name: "leaving a frame that is not on top",
			events: []event{
				{true, "a", 0},
				{false, "b", 1},
			},
			want: ErrUnbalancedFrames,
		},
		{
			name: "leaving with an empty stack",
			events: []event{
				{false, "a", 1},
			},
			want: ErrUnbalancedFrames,
		},
		{
			name: "frames left open",
			events: []event{
				{true, "a", 0},
				{true, "b", 1},
				{false, "b", 2},
			},
			want: ErrIncompleteTrace,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b := NewEventBuilder(0, nil)
			var err error
			for _, e := range test.events {
				if e.enter {
					err = b.EnterFrame(info(e.name), e.value)
				} else {
					err = b.LeaveFrame(info(e.name), e.value)
				}
				if err != nil {
					break
				}
			}
			if err == nil {
				_, err = b.Build()
			}
			if !errors.Is(err, test.want) {
				t.Fatalf("expected %v, got %v", test.want, err)
			}
		})
	}
}

func TestEventBuilderMatchesStackListBuilder(t *testing.T) {
	eb := NewEventBuilder(0, nil)
	for _, step := range []func() error{
		func() error { return eb.EnterFrame(info("a"), 0) },
		func() error { return eb.EnterFrame(info("b"), 2) },
		func() error { return eb.LeaveFrame(info("b"), 5) },
		func() error { return eb.LeaveFrame(info("a"), 10) },
	} {
		if err := step(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	evented, err := eb.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sampled := buildStacks(t, []weightedStack{
		{stack: "a", weight: 2},
		{stack: "a;b", weight: 3},
		{stack: "a", weight: 5},
	})

	if evented.TotalWeight() != sampled.TotalWeight() {
		t.Fatalf("total weight mismatch: %v != %v", evented.TotalWeight(), sampled.TotalWeight())
	}
	for _, tree := range []struct {
		name string
		get  func(p *Profile) *calltree.Tree
	}{
		{"append-order", (*Profile).AppendOrderTree},
		{"grouped", (*Profile).GroupedTree},
	} {
		if diff := testutil.Diff(summarize(evented, tree.get(evented)), summarize(sampled, tree.get(sampled))); diff != "" {
			t.Fatalf("%s tree mismatch: evented - sampled +\n%s", tree.name, diff)
		}
	}
	if diff := testutil.Diff(summarizeFrames(evented), summarizeFrames(sampled)); diff != "" {
		t.Fatalf("frames mismatch: evented - sampled +\n%s", diff)
	}
	if diff := testutil.Diff(evented.Weights(), sampled.Weights()); diff != "" {
		t.Fatalf("weights mismatch: evented - sampled +\n%s", diff)
	}
}

func TestSetInverted(t *testing.T) {
	p := buildStacks(t, []weightedStack{
		{stack: "a", weight: 10, regWeight: 30},
	})
	if !p.HasDiffData() {
		t.Fatal("expected diff data")
	}
	p.SetInverted(true)

	if p.TotalWeight() != 30 || p.TotalRegWeight() != 10 {
		t.Fatalf("expected swapped totals, got %v and %v", p.TotalWeight(), p.TotalRegWeight())
	}
	if p.TotalNonIdleWeight() != 30 || p.TotalNonIdleRegWeight() != 10 {
		t.Fatalf("expected swapped non-idle totals, got %v and %v", p.TotalNonIdleWeight(), p.TotalNonIdleRegWeight())
	}
	if diff := testutil.Diff(p.Weights(), []float64{30}); diff != "" {
		t.Fatalf("weights mismatch: got - want +\n%s", diff)
	}
	a, _ := p.FrameByName("a")
	if a.TotalWeight() != 30 {
		t.Fatalf("expected frame weights to be swapped, got %v", a.TotalWeight())
	}

	p.SetInverted(false)
	if p.TotalNonIdleWeight() != 10 {
		t.Fatalf("expected the baseline non-idle total back, got %v", p.TotalNonIdleWeight())
	}
}

func TestNameCount(t *testing.T) {
	p := buildStacks(t, []weightedStack{
		{stack: "a;b", weight: 1},
		{stack: "c;b", weight: 1},
	})
	if c := p.NameCount("b"); c != 2 {
		t.Fatalf("expected b to appear twice, got %d", c)
	}
	if c := p.NameCount("unknown"); c != 1 {
		t.Fatalf("expected unknown names to count once, got %d", c)
	}
	if _, exists := p.nameCounts[frame.Root.Name]; exists {
		t.Fatal("the root should not be counted")
	}
}

func TestGroupActiveProfile(t *testing.T) {
	a := buildStacks(t, []weightedStack{{stack: "a", weight: 1}})
	b := buildStacks(t, []weightedStack{{stack: "b", weight: 1}})

	if p := (&Group{}).ActiveProfile(); p != nil {
		t.Fatal("expected no active profile")
	}
	if p := (&Group{IndexToView: 1, Profiles: []*Profile{a, b}}).ActiveProfile(); p != b {
		t.Fatal("expected the selected profile")
	}
	if p := (&Group{IndexToView: 5, Profiles: []*Profile{a, b}}).ActiveProfile(); p != a {
		t.Fatal("expected the first profile for an out of range index")
	}
}

func TestShallowCloneSurvivesDispose(t *testing.T) {
	p := buildStacks(t, []weightedStack{
		{stack: "a;b", weight: 2},
		{stack: "a;c", weight: 3},
	})
	c := p.ShallowClone()
	p.Dispose()

	if p.Size() != 0 || p.TotalWeight() != 0 || len(p.Samples()) != 0 {
		t.Fatalf("expected an empty profile after Dispose, got %d frames, total %v", p.Size(), p.TotalWeight())
	}
	if p.GroupedTree().Len() != 1 {
		t.Fatalf("expected only the root node after Dispose, got %d nodes", p.GroupedTree().Len())
	}
	if c.Size() != 3 || c.TotalWeight() != 5 {
		t.Fatalf("expected the clone to keep 3 frames and a total of 5, got %d and %v", c.Size(), c.TotalWeight())
	}
}

func TestBuildersRejectInputAfterBuild(t *testing.T) {
	sb := NewStackListBuilder(0, nil)
	if err := sb.AppendSampleWithWeight(stack("a"), 1, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := sb.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sb.AppendSampleWithWeight(stack("a;b"), 1, 0); !errors.Is(err, ErrAlreadyBuilt) {
		t.Fatalf("expected ErrAlreadyBuilt, got %v", err)
	}
	if err := sb.AppendSampleWithTimestamp(stack("a"), 3); !errors.Is(err, ErrAlreadyBuilt) {
		t.Fatalf("expected ErrAlreadyBuilt, got %v", err)
	}
	if len(p.Samples()) != 1 || p.TotalWeight() != 1 || p.Size() != 1 {
		t.Fatalf("expected the built profile to be unchanged, got %d samples, total %v", len(p.Samples()), p.TotalWeight())
	}

	eb := NewEventBuilder(0, nil)
	if err := eb.EnterFrame(info("a"), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := eb.LeaveFrame(info("a"), 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ep, err := eb.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := eb.EnterFrame(info("b"), 3); !errors.Is(err, ErrAlreadyBuilt) {
		t.Fatalf("expected ErrAlreadyBuilt, got %v", err)
	}
	if err := eb.LeaveFrame(info("a"), 3); !errors.Is(err, ErrAlreadyBuilt) {
		t.Fatalf("expected ErrAlreadyBuilt, got %v", err)
	}
	if ep.Size() != 1 || ep.TotalWeight() != 2 {
		t.Fatalf("expected the built profile to be unchanged, got %d frames, total %v", ep.Size(), ep.TotalWeight())
	}
}
