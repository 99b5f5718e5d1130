package preload

import (
	"math"
	"sync/atomic"
)

// Phase is the session lifecycle: Loading, then Finalizing once the ready
// condition is observed, then Done after the overlay is dismissed.
type Phase int32

const (
	PhaseLoading Phase = iota
	PhaseFinalizing
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// phaseLatch guards phase transitions so each fires at most once.
type phaseLatch struct {
	v atomic.Int32
}

func (l *phaseLatch) load() Phase {
	return Phase(l.v.Load())
}

func (l *phaseLatch) advance(from, to Phase) bool {
	return l.v.CompareAndSwap(int32(from), int32(to))
}

// Progress is one rendered frame of the preloader.
type Progress struct {
	// Percent is the displayed value. It never decreases.
	Percent int
	// Target is the instantaneous loaded/total ratio.
	Target int
	Loaded int
	Total  int
	Label  string
	Phase  Phase
}

// TargetPercent returns round(loaded/total*100) clamped to [0,100].
// An empty asset set is already complete.
func TargetPercent(loaded, total int) int {
	if total <= 0 {
		return 100
	}
	pct := int(math.Round(float64(loaded) / float64(total) * 100))
	return min(max(pct, 0), 100)
}

// NextPercent eases displayed toward target: it closes a tenth of the gap,
// at least one point per step, never passes target and never goes back.
func NextPercent(displayed, target int) int {
	if displayed >= target {
		return displayed
	}
	step := max(1, int(math.Ceil(float64(target-displayed)*0.1)))
	return min(displayed+step, target)
}

// LabelIndex buckets target linearly over phrases.
func LabelIndex(target, phrases int) int {
	if phrases <= 0 {
		return 0
	}
	target = min(max(target, 0), 100)
	return min(phrases-1, target*phrases/100)
}
