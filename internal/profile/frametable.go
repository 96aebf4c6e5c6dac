package profile

import (
	"slices"
	"strings"

	"github.com/getsentry/speedscope/internal/frame"
)

// SortField selects the column a frame table is ordered by.
type SortField int

const (
	SortBySymbolName SortField = iota
	SortBySelf
	SortByTotal
	SortByCount
	SortByDiff
)

var sortFieldNames = map[string]SortField{
	"name":  SortBySymbolName,
	"self":  SortBySelf,
	"total": SortByTotal,
	"count": SortByCount,
	"diff":  SortByDiff,
}

// ParseSortField maps name, self, total, count and diff to their field.
func ParseSortField(s string) (SortField, bool) {
	f, exists := sortFieldNames[s]
	return f, exists
}

// FrameRow summarizes the weights of one frame across the whole profile.
type FrameRow struct {
	Frame     *frame.Frame
	Name      string
	Self      float64
	Total     float64
	RegSelf   float64
	RegTotal  float64
	Count     int
	DiffRatio float64
}

// FrameTable returns one row per frame, ordered by field. Ties keep the order
// frames were first seen in.
func (p *Profile) FrameTable(field SortField, descending bool) []FrameRow {
	rows := make([]FrameRow, 0, p.Size())
	p.frames.ForEach(func(f *frame.Frame) {
		rows = append(rows, FrameRow{
			Frame:     f,
			Name:      f.Name,
			Self:      f.SelfWeight(),
			Total:     f.TotalWeight(),
			RegSelf:   f.RegSelfWeight(),
			RegTotal:  f.RegTotalWeight(),
			Count:     p.NameCount(f.Name),
			DiffRatio: f.WeightedDiffRatio(),
		})
	})

	slices.SortStableFunc(rows, func(a, b FrameRow) int {
		c := compareRows(a, b, field)
		if descending {
			return -c
		}
		return c
	})
	return rows
}

func compareRows(a, b FrameRow, field SortField) int {
	switch field {
	case SortBySymbolName:
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	case SortBySelf:
		return compareFloat(a.Self, b.Self)
	case SortByTotal:
		return compareFloat(a.Total, b.Total)
	case SortByCount:
		return a.Count - b.Count
	case SortByDiff:
		return compareFloat(a.DiffRatio, b.DiffRatio)
	}
	return 0
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
