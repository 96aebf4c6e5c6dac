package profile

import (
	"github.com/getsentry/speedscope/internal/frame"
)

type (
	// Remapped holds the new location of a frame. Zero fields keep the
	// current value.
	Remapped struct {
		Name string
		File string
		Line uint32
		Col  uint32
	}

	// SymbolRemapper returns the new location for f, or false to leave the
	// frame alone.
	SymbolRemapper func(f *frame.Frame) (Remapped, bool)
)

// RemapSymbols returns a profile sharing p's trees and samples whose frames
// carry the remapped names and locations. Frame keys and weights are kept and
// p is left unchanged.
func (p *Profile) RemapSymbols(remap SymbolRemapper) *Profile {
	c := p.ShallowClone()
	c.frames = p.frames.Clone()
	c.frames.ForEach(func(f *frame.Frame) {
		r, ok := remap(f)
		if !ok {
			return
		}
		if r.Name != "" {
			f.Name = r.Name
		}
		if r.File != "" {
			f.File = r.File
		}
		if r.Line != 0 {
			f.Line = r.Line
		}
		if r.Col != 0 {
			f.Col = r.Col
		}
	})
	c.countNames()
	return c
}
