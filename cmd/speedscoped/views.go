package main

import (
	"fmt"
	"net/http"

	"github.com/getsentry/speedscope/internal/frame"
	"github.com/getsentry/speedscope/internal/httputil"
	"github.com/getsentry/speedscope/internal/profile"
	"github.com/getsentry/speedscope/internal/speedscope"
)

type (
	FrameStats struct {
		Name           string  `json:"name"`
		File           string  `json:"file,omitempty"`
		Line           uint32  `json:"line,omitempty"`
		Col            uint32  `json:"col,omitempty"`
		Self           float64 `json:"self"`
		Total          float64 `json:"total"`
		RegSelf        float64 `json:"regSelf"`
		RegTotal       float64 `json:"regTotal"`
		Count          int     `json:"count"`
		DiffRatio      float64 `json:"diffRatio"`
		DiffPercent    string  `json:"diffPercent,omitempty"`
		SelfFormatted  string  `json:"selfFormatted"`
		TotalFormatted string  `json:"totalFormatted"`
	}

	FramesResponse struct {
		Profile     string       `json:"profile"`
		Unit        string       `json:"unit"`
		TotalWeight float64      `json:"totalWeight"`
		Frames      []FrameStats `json:"frames"`
	}
)

func (env *environment) getFrames(w http.ResponseWriter, r *http.Request) {
	g, ok := env.loadGroup(w, r)
	if !ok {
		return
	}
	p, ok := selectProfile(w, r, g)
	if !ok {
		return
	}

	query := r.URL.Query()
	field := profile.SortByTotal
	if s := query.Get("sort"); s != "" {
		f, exists := profile.ParseSortField(s)
		if !exists {
			http.Error(w, fmt.Sprintf("unknown sort field %q", s), http.StatusBadRequest)
			return
		}
		field = f
	}
	descending := true
	switch query.Get("order") {
	case "", "desc":
	case "asc":
		descending = false
	default:
		http.Error(w, "order must be asc or desc", http.StatusBadRequest)
		return
	}

	hasDiff := p.HasDiffData()
	rows := p.FrameTable(field, descending)
	response := FramesResponse{
		Profile:     p.Name(),
		Unit:        string(p.WeightUnit()),
		TotalWeight: p.TotalWeight(),
		Frames:      make([]FrameStats, 0, len(rows)),
	}
	for _, row := range rows {
		stats := FrameStats{
			Name:           row.Name,
			File:           row.Frame.File,
			Line:           row.Frame.Line,
			Col:            row.Frame.Col,
			Self:           row.Self,
			Total:          row.Total,
			RegSelf:        row.RegSelf,
			RegTotal:       row.RegTotal,
			Count:          row.Count,
			DiffRatio:      row.DiffRatio,
			SelfFormatted:  p.FormatValue(row.Self),
			TotalFormatted: p.FormatValue(row.Total),
		}
		if hasDiff {
			stats.DiffPercent = row.Frame.DiffPercentString()
		}
		response.Frames = append(response.Frames, stats)
	}
	writeJSON(r.Context(), w, http.StatusOK, response)
}

func (env *environment) getFlattened(w http.ResponseWriter, r *http.Request) {
	g, ok := env.loadGroup(w, r)
	if !ok {
		return
	}
	p, ok := selectProfile(w, r, g)
	if !ok {
		return
	}
	flat, err := p.WithRecursionFlattened()
	if err != nil {
		hubFromContext(r.Context()).CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	env.writeView(w, r, g, flat)
}

func (env *environment) getCallers(w http.ResponseWriter, r *http.Request) {
	env.getFrameView(w, r, (*profile.Profile).InvertedForCallersOf)
}

func (env *environment) getCallees(w http.ResponseWriter, r *http.Request) {
	env.getFrameView(w, r, (*profile.Profile).ForCalleesOf)
}

type frameView func(p *profile.Profile, info frame.Info, normalized bool) (*profile.Profile, error)

// getFrameView serves a view focused on the frame named by the frame query
// parameter.
func (env *environment) getFrameView(w http.ResponseWriter, r *http.Request, view frameView) {
	params, logger, ok := httputil.GetRequiredQueryParameters(w, r, "frame")
	if !ok {
		return
	}
	normalized, err := httputil.GetBoolQueryParameter(r, "normalized", env.config.DiffNormalized)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	flatten, err := httputil.GetBoolQueryParameter(r, "flatten", false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g, ok := env.loadGroup(w, r)
	if !ok {
		return
	}
	p, ok := selectProfile(w, r, g)
	if !ok {
		return
	}
	f, exists := p.FrameByName(params["frame"])
	if !exists {
		logger.Debug().Msg("frame not found")
		w.WriteHeader(http.StatusNotFound)
		return
	}

	v, err := view(p, f.Info, normalized)
	if err == nil && flatten {
		v, err = v.WithRecursionFlattened()
	}
	if err != nil {
		hubFromContext(r.Context()).CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	env.writeView(w, r, g, v)
}

func (env *environment) writeView(w http.ResponseWriter, r *http.Request, g *profile.Group, p *profile.Profile) {
	view := &profile.Group{Name: g.Name, Profiles: []*profile.Profile{p}}
	writeJSON(r.Context(), w, http.StatusOK, speedscope.Export(view, env.exporter()))
}
