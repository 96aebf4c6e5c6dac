package speedscope

import (
	"fmt"

	"github.com/getsentry/speedscope/internal/errorutil"
	"github.com/getsentry/speedscope/internal/frame"
	"github.com/getsentry/speedscope/internal/profile"
	"github.com/getsentry/speedscope/internal/valueformat"
)

// ImportOptions controls how differential profiles are loaded.
type ImportOptions struct {
	// DiffInverted swaps the baseline and regression channels after
	// building.
	DiffInverted bool
	// DiffNormalized scales regression weights so that they sum to the
	// baseline total.
	DiffNormalized bool
}

// Import builds a profile group from a decoded file. Frames are keyed by their
// index in the shared frame table.
func Import(f File, opts ImportOptions) (*profile.Group, error) {
	infos := make([]frame.Info, 0, len(f.Shared.Frames))
	for i, fr := range f.Shared.Frames {
		infos = append(infos, frame.Info{
			Key:  frame.IntKey(i),
			Name: fr.Name,
			File: fr.File,
			Line: fr.Line,
			Col:  fr.Col,
		})
	}

	g := &profile.Group{
		Name:        f.Name,
		IndexToView: f.ActiveProfileIndex,
		Profiles:    make([]*profile.Profile, 0, len(f.Profiles)),
	}
	for i, serialized := range f.Profiles {
		var (
			p   *profile.Profile
			err error
		)
		switch sp := serialized.(type) {
		case *EventedProfile:
			p, err = importEvented(sp, infos)
		case *SampledProfile:
			p, err = importSampled(sp, infos, opts)
		default:
			err = fmt.Errorf("speedscope: %w: unsupported profile type %T", errorutil.ErrDataIntegrity, serialized)
		}
		if err != nil {
			return nil, fmt.Errorf("profile %d: %w", i, err)
		}
		g.Profiles = append(g.Profiles, p)
	}

	if g.Name == "" {
		if len(g.Profiles) > 0 && g.Profiles[0].Name() != "" {
			g.Name = g.Profiles[0].Name()
		} else {
			g.Name = "profile"
		}
	}
	return g, nil
}

func lookupFrame(infos []frame.Info, i int) (frame.Info, error) {
	if i < 0 || i >= len(infos) {
		return frame.Info{}, fmt.Errorf("speedscope: %w: frame index %d out of range [0, %d)", errorutil.ErrDataIntegrity, i, len(infos))
	}
	return infos[i], nil
}

func importEvented(ep *EventedProfile, infos []frame.Info) (*profile.Profile, error) {
	b := profile.NewEventBuilder(ep.EndValue-ep.StartValue, valueformat.ForUnit(ep.Unit))
	b.SetName(ep.Name)
	for _, ev := range ep.Events {
		info, err := lookupFrame(infos, ev.Frame)
		if err != nil {
			return nil, err
		}
		switch ev.Type {
		case EventTypeOpenFrame:
			err = b.EnterFrame(info, ev.At-ep.StartValue)
		case EventTypeCloseFrame:
			err = b.LeaveFrame(info, ev.At-ep.StartValue)
		}
		if err != nil {
			return nil, err
		}
	}
	return b.Build()
}

func importSampled(sp *SampledProfile, infos []frame.Info, opts ImportOptions) (*profile.Profile, error) {
	if len(sp.Samples) != len(sp.Weights) {
		return nil, fmt.Errorf(
			"speedscope: %w: expected samples length (%d) to equal weights length (%d)",
			errorutil.ErrDataIntegrity,
			len(sp.Samples),
			len(sp.Weights),
		)
	}
	hasRegWeights := len(sp.RegWeights) > 0 && len(sp.RegWeights) == len(sp.Weights)

	var totalBas, totalReg float64
	for i := range sp.Weights {
		totalBas += sp.Weights[i]
		if hasRegWeights {
			totalReg += sp.RegWeights[i]
		}
	}
	regScale := 1.0
	if opts.DiffNormalized && hasRegWeights && totalReg > 0 {
		regScale = totalBas / totalReg
	}

	b := profile.NewStackListBuilder(sp.EndValue-sp.StartValue, valueformat.ForUnit(sp.Unit))
	b.SetName(sp.Name)
	for i, indices := range sp.Samples {
		stack := make([]frame.Info, 0, len(indices))
		for _, fi := range indices {
			info, err := lookupFrame(infos, fi)
			if err != nil {
				return nil, err
			}
			stack = append(stack, info)
		}
		var regWeight float64
		if hasRegWeights {
			regWeight = sp.RegWeights[i] * regScale
		}
		if err := b.AppendSampleWithWeight(stack, sp.Weights[i], regWeight); err != nil {
			return nil, err
		}
	}

	p, err := b.Build()
	if err != nil {
		return nil, err
	}
	if opts.DiffInverted {
		p.SetInverted(true)
	}
	if hasRegWeights {
		p.SetRawRegTotalWeight(totalReg)
	}
	return p, nil
}
