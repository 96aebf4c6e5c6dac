package speedscope

import (
	"github.com/getsentry/speedscope/internal/calltree"
	"github.com/getsentry/speedscope/internal/frame"
	"github.com/getsentry/speedscope/internal/profile"
)

// Export serializes a group as evented profiles sharing one frame table.
// Frames are added to the table the first time they are seen.
func Export(g *profile.Group, exporter string) File {
	f := File{
		Schema:             Schema,
		Exporter:           exporter,
		Name:               g.Name,
		ActiveProfileIndex: g.IndexToView,
		Shared:             SharedData{Frames: []Frame{}},
		Profiles:           make([]Profile, 0, len(g.Profiles)),
	}

	indexForFrame := make(map[*frame.Frame]int)
	indexOf := func(fr *frame.Frame) int {
		if i, exists := indexForFrame[fr]; exists {
			return i
		}
		i := len(f.Shared.Frames)
		indexForFrame[fr] = i
		f.Shared.Frames = append(f.Shared.Frames, Frame{
			Name: fr.Name,
			File: fr.File,
			Line: fr.Line,
			Col:  fr.Col,
		})
		return i
	}

	for _, p := range g.Profiles {
		f.Profiles = append(f.Profiles, exportProfile(p, indexOf))
	}
	return f
}

func exportProfile(p *profile.Profile, indexOf func(*frame.Frame) int) *EventedProfile {
	ep := &EventedProfile{
		Type:     ProfileTypeEvented,
		Name:     p.Name(),
		Unit:     p.WeightUnit(),
		EndValue: p.TotalWeight(),
		Events:   []Event{},
	}
	p.ForEachCall(func(n *calltree.Node, value float64) {
		ep.Events = append(ep.Events, Event{Type: EventTypeOpenFrame, Frame: indexOf(p.Frame(n.Frame)), At: value})
	}, func(n *calltree.Node, value float64) {
		ep.Events = append(ep.Events, Event{Type: EventTypeCloseFrame, Frame: indexOf(p.Frame(n.Frame)), At: value})
	})
	return ep
}
