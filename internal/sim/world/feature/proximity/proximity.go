// Package proximity classifies every pair of airborne flights by horizontal
// separation and turns accidents into records.
package proximity

import (
	"fmt"
	"time"

	"skyway.city/internal/sim/world/kernel/model"
	"skyway.city/internal/sim/world/logic/ids"
	"skyway.city/internal/sim/world/logic/mathx"
)

type Band string

const (
	BandNone     Band = ""
	BandAccident Band = "ACCIDENT"
	BandCritical Band = "CRITICAL"
	BandWarning  Band = "WARNING"
)

type Thresholds struct {
	Accident float64 `json:"accident"`
	Critical float64 `json:"critical"`
	Warning  float64 `json:"warning"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Accident: 20, Critical: 50, Warning: 100}
}

func (t Thresholds) Validate() error {
	if t.Accident <= 0 {
		return fmt.Errorf("accident threshold must be > 0, got %v", t.Accident)
	}
	if !(t.Accident < t.Critical && t.Critical < t.Warning) {
		return fmt.Errorf("thresholds must nest accident < critical < warning, got %v/%v/%v", t.Accident, t.Critical, t.Warning)
	}
	return nil
}

// Classify returns the tightest band d falls in. Bounds are exclusive.
func (t Thresholds) Classify(d float64) Band {
	switch {
	case d < t.Accident:
		return BandAccident
	case d < t.Critical:
		return BandCritical
	case d < t.Warning:
		return BandWarning
	}
	return BandNone
}

// Subject is one airborne flight as seen by the scan.
type Subject struct {
	ID       string
	X        float64
	Y        float64
	Altitude float64
}

type Encounter struct {
	A        string  `json:"a"`
	B        string  `json:"b"`
	Distance float64 `json:"distance"`
	Band     Band    `json:"band"`
	// Midpoint of the pair.
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Config struct {
	Thresholds Thresholds
	// MinSeparation and VerticalSeparation gate AtRisk.
	MinSeparation      float64
	VerticalSeparation float64
	// Now stamps accident records. Defaults to time.Now.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Thresholds:         DefaultThresholds(),
		MinSeparation:      50,
		VerticalSeparation: 100,
	}
}

type Analyzer struct {
	cfg Config
	seq ids.Sequence
}

func New(cfg Config) *Analyzer {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Analyzer{cfg: cfg}
}

func (a *Analyzer) Thresholds() Thresholds { return a.cfg.Thresholds }

// Scan visits every unordered pair once (i<j) and returns one encounter per
// pair that falls in a band, in visit order.
func (a *Analyzer) Scan(subjects []Subject) []Encounter {
	var out []Encounter
	for i := 0; i < len(subjects); i++ {
		p := subjects[i]
		for j := i + 1; j < len(subjects); j++ {
			q := subjects[j]
			d := mathx.Dist(p.X, p.Y, q.X, q.Y)
			band := a.cfg.Thresholds.Classify(d)
			if band == BandNone {
				continue
			}
			mx, my := mathx.Midpoint(p.X, p.Y, q.X, q.Y)
			out = append(out, Encounter{A: p.ID, B: q.ID, Distance: d, Band: band, X: mx, Y: my})
		}
	}
	return out
}

// AtRisk is the vertical-aware check: both the horizontal and the altitude
// separation must be under their limits.
func (a *Analyzer) AtRisk(p, q Subject) bool {
	if mathx.Dist(p.X, p.Y, q.X, q.Y) >= a.cfg.MinSeparation {
		return false
	}
	dz := p.Altitude - q.Altitude
	if dz < 0 {
		dz = -dz
	}
	return dz < a.cfg.VerticalSeparation
}

// Accident builds the record for an ACCIDENT encounter and advances the
// accident counter.
func (a *Analyzer) Accident(e Encounter, tick uint64) model.AccidentRecord {
	now := a.cfg.Now()
	seq := a.seq.Next()
	return model.AccidentRecord{
		ID:          ids.AccidentID(now.UnixMilli(), seq),
		Tick:        tick,
		X:           e.X,
		Y:           e.Y,
		Type:        model.AccidentTypeMidAir,
		Severity:    model.SeveritySevere,
		Description: fmt.Sprintf("mid-air collision between %s and %s (separation %.1f)", e.A, e.B, e.Distance),
		Flights:     [2]string{e.A, e.B},
		Time:        now,
	}
}

// AccidentSeq is the last issued accident sequence number.
func (a *Analyzer) AccidentSeq() uint64 { return a.seq.Peek() }

// RestoreAccidentSeq never moves the counter backwards.
func (a *Analyzer) RestoreAccidentSeq(n uint64) { a.seq.Restore(n) }
