// Package weather supplies the severity reports the hazard coordinator
// reacts to.
package weather

import (
	"fmt"
	"sort"

	"skyway.city/internal/sim/tuning"
	"skyway.city/internal/sim/world/logic/mathx"
)

const (
	MaxSeverity = 5
	// Reports at or above this severity are unsafe unless overridden.
	UnsafeSeverity = 4
)

type Report struct {
	Severity  int  `json:"severity"`
	SafeToFly bool `json:"safe_to_fly"`
}

func ReportFor(severity int) Report {
	severity = mathx.ClampInt(severity, 0, MaxSeverity)
	return Report{Severity: severity, SafeToFly: severity < UnsafeSeverity}
}

// Source is queried once per tick with non-decreasing ticks.
type Source interface {
	At(tick uint64) Report
}

// Step takes effect at Tick and holds until the next one.
type Step struct {
	Tick      uint64
	Severity  int
	SafeToFly *bool
}

type Scripted struct {
	steps []Step
}

func NewScripted(steps []Step) *Scripted {
	cp := append([]Step(nil), steps...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Tick < cp[j].Tick })
	return &Scripted{steps: cp}
}

func (s *Scripted) At(tick uint64) Report {
	i := sort.Search(len(s.steps), func(i int) bool { return s.steps[i].Tick > tick }) - 1
	if i < 0 {
		return ReportFor(0)
	}
	st := s.steps[i]
	r := ReportFor(st.Severity)
	if st.SafeToFly != nil {
		r.SafeToFly = *st.SafeToFly
	}
	return r
}

// Drift is a seeded random walk over severity that may change every
// `every` ticks. The walk for a given seed is fixed, so replays and restored
// sessions see the same weather.
type Drift struct {
	seed  int64
	every uint64

	seg uint64
	sev int
}

func NewDrift(seed uint64, every int) *Drift {
	if every <= 0 {
		every = 600
	}
	return &Drift{seed: int64(seed), every: uint64(every)}
}

func (d *Drift) At(tick uint64) Report {
	seg := tick / d.every
	if seg < d.seg {
		d.seg, d.sev = 0, 0
	}
	for d.seg < seg {
		d.seg++
		d.sev = mathx.ClampInt(d.sev+d.delta(d.seg), 0, MaxSeverity)
	}
	return ReportFor(d.sev)
}

// delta leans toward calm: -1 40%, 0 30%, +1 30%.
func (d *Drift) delta(seg uint64) int {
	switch h := mathx.Hash2(d.seed, int(seg), 0x57) % 10; {
	case h < 4:
		return -1
	case h < 7:
		return 0
	}
	return 1
}

// FromTuning builds the configured source.
func FromTuning(w tuning.Weather) (Source, error) {
	switch w.Mode {
	case "scripted":
		steps := make([]Step, 0, len(w.Script))
		for _, s := range w.Script {
			steps = append(steps, Step{Tick: s.Tick, Severity: s.Severity, SafeToFly: s.SafeToFly})
		}
		return NewScripted(steps), nil
	case "drift", "":
		return NewDrift(w.Seed, w.ChangeEveryTicks), nil
	}
	return nil, fmt.Errorf("unknown weather mode %q", w.Mode)
}
