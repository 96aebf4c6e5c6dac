package weight

import (
	"math"

	"github.com/dustin/go-humanize"
)

const (
	newInRegression = "+∞ (new in regression)"
	removed         = "-100% (removed)"
)

// Ledger accumulates self and total weight in two channels: the baseline and
// the regression. Frames and call tree nodes embed it.
//
// When the ledger is inverted, the accessors swap the channels so consumers
// always read the "current" channel from SelfWeight/TotalWeight and the
// "comparison" channel from RegSelfWeight/RegTotalWeight. The stored values
// are never moved.
type Ledger struct {
	selfWeight     float64
	totalWeight    float64
	regSelfWeight  float64
	regTotalWeight float64
	inverted       bool
}

func (l *Ledger) SetInverted(inverted bool) {
	l.inverted = inverted
}

func (l *Ledger) IsInverted() bool {
	return l.inverted
}

func (l *Ledger) SelfWeight() float64 {
	if l.inverted {
		return l.regSelfWeight
	}
	return l.selfWeight
}

func (l *Ledger) TotalWeight() float64 {
	if l.inverted {
		return l.regTotalWeight
	}
	return l.totalWeight
}

func (l *Ledger) RegSelfWeight() float64 {
	if l.inverted {
		return l.selfWeight
	}
	return l.regSelfWeight
}

func (l *Ledger) RegTotalWeight() float64 {
	if l.inverted {
		return l.totalWeight
	}
	return l.regTotalWeight
}

func (l *Ledger) AddToSelfWeight(delta float64) {
	l.selfWeight += delta
}

func (l *Ledger) AddToTotalWeight(delta float64) {
	l.totalWeight += delta
}

func (l *Ledger) AddToRegSelfWeight(delta float64) {
	l.regSelfWeight += delta
}

func (l *Ledger) AddToRegTotalWeight(delta float64) {
	l.regTotalWeight += delta
}

// OverwriteWeightWith copies every accumulator and the inversion flag from
// other.
func (l *Ledger) OverwriteWeightWith(other *Ledger) {
	*l = *other
}

// DiffRatio returns the relative change of the regression total against the
// baseline total, clamped to [-1, 1]. It returns 0 when both are zero, 1 when
// only the regression has weight and -1 when only the baseline has weight.
//
// The ratio is always computed as regression minus baseline on the stored
// channels. invertedOverride swaps them, for views that load an inverted
// profile next to a non-inverted one.
func (l *Ledger) DiffRatio(invertedOverride bool) float64 {
	bas, reg := l.totalWeight, l.regTotalWeight
	if invertedOverride {
		bas, reg = reg, bas
	}
	switch {
	case bas == 0 && reg == 0:
		return 0
	case bas == 0:
		return 1
	case reg == 0:
		return -1
	}
	return clamp((reg-bas)/math.Max(bas, reg), -1, 1)
}

// WeightedDiffRatio scales DiffRatio by the order of magnitude of the absolute
// change, so large absolute regressions sort ahead of small relative ones.
func (l *Ledger) WeightedDiffRatio() float64 {
	bas, reg := l.TotalWeight(), l.RegTotalWeight()
	if bas == 0 && reg == 0 {
		return 0
	}
	return l.DiffRatio(false) * math.Log10(math.Abs(reg-bas)+1)
}

// DiffPercentString renders the change between both channels for display,
// e.g. "+12.5%".
func (l *Ledger) DiffPercentString() string {
	if l.TotalWeight() == 0 {
		if l.inverted {
			return removed
		}
		return newInRegression
	}
	if l.RegTotalWeight() == 0 {
		if l.inverted {
			return newInRegression
		}
		return removed
	}
	pct := l.DiffRatio(false) * 100
	sign := ""
	if pct > 0 {
		sign = "+"
	}
	return sign + humanize.FtoaWithDigits(math.Round(pct*10)/10, 1) + "%"
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
