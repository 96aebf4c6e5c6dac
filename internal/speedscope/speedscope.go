package speedscope

import (
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/getsentry/speedscope/internal/errorutil"
	"github.com/getsentry/speedscope/internal/valueformat"
)

const (
	Schema = "https://www.speedscope.app/file-format-schema.json"

	EventTypeOpenFrame  EventType = "O"
	EventTypeCloseFrame EventType = "C"

	ProfileTypeEvented ProfileType = "evented"
	ProfileTypeSampled ProfileType = "sampled"
)

type (
	Frame struct {
		Name string `json:"name"`
		File string `json:"file,omitempty"`
		Line uint32 `json:"line,omitempty"`
		Col  uint32 `json:"col,omitempty"`
	}

	Event struct {
		Type  EventType `json:"type"`
		Frame int       `json:"frame"`
		At    float64   `json:"at"`
	}

	EventedProfile struct {
		Type       ProfileType      `json:"type"`
		Name       string           `json:"name"`
		Unit       valueformat.Unit `json:"unit"`
		StartValue float64          `json:"startValue"`
		EndValue   float64          `json:"endValue"`
		Events     []Event          `json:"events"`
	}

	SampledProfile struct {
		Type       ProfileType      `json:"type"`
		Name       string           `json:"name"`
		Unit       valueformat.Unit `json:"unit"`
		StartValue float64          `json:"startValue"`
		EndValue   float64          `json:"endValue"`
		Samples    [][]int          `json:"samples"`
		Weights    []float64        `json:"weights"`
		RegWeights []float64        `json:"regWeights,omitempty"`
	}

	SharedData struct {
		Frames []Frame `json:"frames"`
	}

	// Profile is either an *EventedProfile or a *SampledProfile.
	Profile interface {
		ProfileType() ProfileType
	}

	File struct {
		Schema             string     `json:"$schema"`
		Exporter           string     `json:"exporter,omitempty"`
		Name               string     `json:"name,omitempty"`
		ActiveProfileIndex int        `json:"activeProfileIndex,omitempty"`
		Shared             SharedData `json:"shared"`
		Profiles           []Profile  `json:"profiles"`
	}

	EventType   string
	ProfileType string
)

func (*EventedProfile) ProfileType() ProfileType {
	return ProfileTypeEvented
}

func (*SampledProfile) ProfileType() ProfileType {
	return ProfileTypeSampled
}

// UnmarshalJSON decodes each profile according to its type field.
func (f *File) UnmarshalJSON(b []byte) error {
	type alias File
	var raw struct {
		alias
		Profiles []json.RawMessage `json:"profiles"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*f = File(raw.alias)
	f.Profiles = make([]Profile, 0, len(raw.Profiles))
	for i, m := range raw.Profiles {
		var header struct {
			Type ProfileType `json:"type"`
		}
		if err := json.Unmarshal(m, &header); err != nil {
			return err
		}
		var p Profile
		switch header.Type {
		case ProfileTypeEvented:
			p = new(EventedProfile)
		case ProfileTypeSampled:
			p = new(SampledProfile)
		default:
			return fmt.Errorf("speedscope: %w: profile %d has unknown type %q", errorutil.ErrDataIntegrity, i, header.Type)
		}
		if err := json.Unmarshal(m, p); err != nil {
			return err
		}
		f.Profiles = append(f.Profiles, p)
	}
	return nil
}

func Decode(r io.Reader) (File, error) {
	var f File
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, errorutil.ErrDataIntegrity) {
			return File{}, err
		}
		return File{}, fmt.Errorf("speedscope: %w: %v", errorutil.ErrDataIntegrity, err)
	}
	return f, nil
}

func Encode(w io.Writer, f File) error {
	return json.NewEncoder(w).Encode(f)
}
