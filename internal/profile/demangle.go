package profile

import (
	"context"
	"strings"

	"github.com/ianlancetaylor/demangle"

	"github.com/getsentry/speedscope/internal/frame"
)

var demangleOptions = []demangle.Option{demangle.NoClones}

// Demangle rewrites mangled C++ and Rust frame names in place. Names that
// fail to demangle are kept. It stops early with ctx's error when ctx is
// done.
func (p *Profile) Demangle(ctx context.Context) error {
	var err error
	changed := false
	p.frames.ForEach(func(f *frame.Frame) {
		if err != nil {
			return
		}
		if err = ctx.Err(); err != nil {
			return
		}
		if name, ok := DemangleName(f.Name); ok {
			f.Name = name
			changed = true
		}
	})
	if changed {
		p.countNames()
	}
	return err
}

// DemangleName demangles an Itanium C++ (_Z, or __Z as emitted on macOS) or
// Rust (_R) symbol.
func DemangleName(name string) (string, bool) {
	if !isMangled(name) {
		return name, false
	}
	// Mach-O symbols carry an extra leading underscore.
	symbol := strings.TrimPrefix(name, "_")
	if !strings.HasPrefix(symbol, "_Z") && !strings.HasPrefix(symbol, "_R") {
		symbol = name
	}
	demangled := demangle.Filter(symbol, demangleOptions...)
	if demangled == symbol {
		return name, false
	}
	return demangled, true
}

func isMangled(name string) bool {
	return strings.HasPrefix(name, "__Z") ||
		strings.HasPrefix(name, "_Z") ||
		strings.HasPrefix(name, "_R")
}
