package speedscope

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/getsentry/speedscope/internal/calltree"
	"github.com/getsentry/speedscope/internal/errorutil"
	"github.com/getsentry/speedscope/internal/profile"
	"github.com/getsentry/speedscope/internal/testutil"
	"github.com/getsentry/speedscope/internal/valueformat"
)

const testFile = `{
  "$schema": "https://www.speedscope.app/file-format-schema.json",
  "shared": {"frames": [{"name": "a", "file": "a.go", "line": 3}, {"name": "b"}, {"name": "c"}]},
  "profiles": [
    {
      "type": "sampled",
      "name": "cpu",
      "unit": "milliseconds",
      "startValue": 0,
      "endValue": 150,
      "samples": [[0, 1, 2], [0, 1]],
      "weights": [100, 50],
      "regWeights": [20, 100]
    },
    {
      "type": "evented",
      "name": "trace",
      "unit": "none",
      "startValue": 10,
      "endValue": 20,
      "events": [
        {"type": "O", "frame": 0, "at": 10},
        {"type": "O", "frame": 1, "at": 12},
        {"type": "C", "frame": 1, "at": 15},
        {"type": "C", "frame": 0, "at": 20}
      ]
    }
  ]
}`

type nodeWeights struct {
	Path     string
	Total    float64
	Self     float64
	RegTotal float64
}

func groupedWeights(p *profile.Profile) []nodeWeights {
	tree := p.GroupedTree()
	var nodes []nodeWeights
	tree.Walk(calltree.RootNode, func(id calltree.NodeID) bool {
		if tree.IsRoot(id) {
			return true
		}
		var names []string
		for _, f := range tree.PathTo(id) {
			names = append(names, p.Frame(f).Name)
		}
		n := tree.Node(id)
		nodes = append(nodes, nodeWeights{
			Path:     strings.Join(names, ";"),
			Total:    n.TotalWeight(),
			Self:     n.SelfWeight(),
			RegTotal: n.RegTotalWeight(),
		})
		return true
	}, nil)
	return nodes
}

func decodeTestFile(t *testing.T) File {
	t.Helper()
	f, err := Decode(strings.NewReader(testFile))
	if err != nil {
		t.Fatalf("unexpected error decoding: %v", err)
	}
	return f
}

func TestDecode(t *testing.T) {
	f := decodeTestFile(t)
	if len(f.Profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(f.Profiles))
	}
	if _, ok := f.Profiles[0].(*SampledProfile); !ok {
		t.Fatalf("expected a sampled profile, got %T", f.Profiles[0])
	}
	evented, ok := f.Profiles[1].(*EventedProfile)
	if !ok {
		t.Fatalf("expected an evented profile, got %T", f.Profiles[1])
	}
	if diff := testutil.Diff(evented.Events[1], Event{Type: EventTypeOpenFrame, Frame: 1, At: 12}); diff != "" {
		t.Fatalf("event mismatch: got - want +\n%s", diff)
	}
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"unknown profile type", `{"shared": {"frames": []}, "profiles": [{"type": "flat"}]}`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(test.body))
			if !errors.Is(err, errorutil.ErrDataIntegrity) {
				t.Fatalf("expected a data integrity error, got %v", err)
			}
		})
	}
}

func TestImport(t *testing.T) {
	g, err := Import(decodeTestFile(t), ImportOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Name != "cpu" {
		t.Fatalf("expected the group to be named after its first profile, got %q", g.Name)
	}

	sampled := g.Profiles[0]
	if sampled.WeightUnit() != valueformat.Milliseconds {
		t.Fatalf("expected milliseconds, got %v", sampled.WeightUnit())
	}
	if diff := testutil.Diff(groupedWeights(sampled), []nodeWeights{
		{Path: "a", Total: 150, RegTotal: 120},
		{Path: "a;b", Total: 150, Self: 50, RegTotal: 120},
		{Path: "a;b;c", Total: 100, Self: 100, RegTotal: 20},
	}); diff != "" {
		t.Fatalf("sampled profile mismatch: got - want +\n%s", diff)
	}
	if raw, ok := sampled.RawRegTotalWeight(); !ok || raw != 120 {
		t.Fatalf("expected a raw regression total of 120, got %v", raw)
	}
	a, _ := sampled.FrameByName("a")
	if a.File != "a.go" || a.Line != 3 {
		t.Fatalf("expected the frame location to be imported, got %s:%d", a.File, a.Line)
	}

	evented := g.Profiles[1]
	if evented.TotalWeight() != 10 {
		t.Fatalf("expected values to be shifted by the start value, got a total of %v", evented.TotalWeight())
	}
	if diff := testutil.Diff(groupedWeights(evented), []nodeWeights{
		{Path: "a", Total: 10, Self: 7},
		{Path: "a;b", Total: 3, Self: 3},
	}); diff != "" {
		t.Fatalf("evented profile mismatch: got - want +\n%s", diff)
	}
}

func TestImportDiffOptions(t *testing.T) {
	g, err := Import(decodeTestFile(t), ImportOptions{DiffNormalized: true, DiffInverted: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := g.Profiles[0]
	if !p.IsInverted() {
		t.Fatal("expected an inverted profile")
	}
	p.SetInverted(false)
	if diff := testutil.Diff(groupedWeights(p)[0], nodeWeights{Path: "a", Total: 150, RegTotal: 150}); diff != "" {
		t.Fatalf("expected regression weights scaled to the baseline: got - want +\n%s", diff)
	}
	if raw, _ := p.RawRegTotalWeight(); raw != 120 {
		t.Fatalf("expected the raw regression total to be kept, got %v", raw)
	}
}

func TestImportInvalid(t *testing.T) {
	tests := []struct {
		name string
		file File
		want error
	}{
		{
			name: "mismatched weights",
			file: File{Profiles: []Profile{&SampledProfile{Samples: [][]int{{}}, Weights: []float64{}}}},
			want: errorutil.ErrDataIntegrity,
		},
		{
			name: "unknown frame",
			file: File{Profiles: []Profile{&SampledProfile{Samples: [][]int{{4}}, Weights: []float64{1}}}},
			want: errorutil.ErrDataIntegrity,
		},
		{
			name: "negative weight",
			file: File{
				Shared:   SharedData{Frames: []Frame{{Name: "a"}}},
				Profiles: []Profile{&SampledProfile{Samples: [][]int{{0}}, Weights: []float64{-1}}},
			},
			want: profile.ErrInvalidWeight,
		},
		{
			name: "unbalanced events",
			file: File{
				Shared: SharedData{Frames: []Frame{{Name: "a"}, {Name: "b"}}},
				Profiles: []Profile{&EventedProfile{Events: []Event{
					{Type: EventTypeOpenFrame, Frame: 0, At: 0},
					{Type: EventTypeCloseFrame, Frame: 1, At: 1},
				}}},
			},
			want: profile.ErrUnbalancedFrames,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Import(test.file, ImportOptions{}); !errors.Is(err, test.want) {
				t.Fatalf("expected %v, got %v", test.want, err)
			}
		})
	}
}

func TestExportRoundTrip(t *testing.T) {
	g, err := Import(decodeTestFile(t), ImportOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exported := Export(g, "speedscope-test")
	if len(exported.Shared.Frames) != 5 {
		t.Fatalf("expected one frame table entry per profile frame, got %d", len(exported.Shared.Frames))
	}

	var buf bytes.Buffer
	if err := Encode(&buf, exported); err != nil {
		t.Fatalf("unexpected error encoding: %v", err)
	}
	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("unexpected error decoding: %v", err)
	}
	if decoded.Exporter != "speedscope-test" || decoded.Schema != Schema {
		t.Fatalf("unexpected header: %q %q", decoded.Exporter, decoded.Schema)
	}
	reimported, err := Import(decoded, ImportOptions{})
	if err != nil {
		t.Fatalf("unexpected error importing: %v", err)
	}

	for i, p := range g.Profiles {
		want := groupedWeights(p)
		for j := range want {
			// evented profiles carry no regression channel
			want[j].RegTotal = 0
		}
		if diff := testutil.Diff(groupedWeights(reimported.Profiles[i]), want); diff != "" {
			t.Fatalf("profile %d mismatch: got - want +\n%s", i, diff)
		}
		if reimported.Profiles[i].TotalWeight() != p.TotalWeight() {
			t.Fatalf("profile %d total mismatch: %v != %v", i, reimported.Profiles[i].TotalWeight(), p.TotalWeight())
		}
	}
}
