// Package parking places the city's parking pool on land and tracks which
// spaces are taken.
package parking

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"skyway.city/internal/sim/world/kernel/model"
	"skyway.city/internal/sim/world/logic/ids"
	"skyway.city/internal/sim/world/logic/mathx"
)

var ErrUnknownSpace = errors.New("unknown parking space")

const (
	DefaultTarget        = 100
	DefaultMargin        = 10
	DefaultAttemptFactor = 10
)

type GenConfig struct {
	CityCode string
	Target   int
	// Margin keeps spaces away from the map edges.
	Margin int
	// AttemptFactor bounds generation at Target*AttemptFactor draws.
	AttemptFactor int
	Seed          uint64
}

func (c GenConfig) normalized() GenConfig {
	if c.Target <= 0 {
		c.Target = DefaultTarget
	}
	if c.Margin <= 0 {
		c.Margin = DefaultMargin
	}
	if c.AttemptFactor <= 0 {
		c.AttemptFactor = DefaultAttemptFactor
	}
	return c
}

// Report is the generation diagnostics. A partial pool is not an error.
type Report struct {
	Placed   int `json:"placed"`
	Attempts int `json:"attempts"`
	Rejected int `json:"rejected"`
}

// Generate draws uniformly random interior pixels and keeps the land ones
// until the target is met or the attempt budget runs out. A pixel that
// already holds a space counts as rejected.
func Generate(px Pixels, cfg GenConfig) ([]model.ParkingSpace, Report) {
	cfg = cfg.normalized()
	var rep Report
	w, h := px.Size()
	spanX := w - 2*cfg.Margin
	spanY := h - 2*cfg.Margin
	if spanX <= 0 || spanY <= 0 {
		return nil, rep
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	maxAttempts := cfg.Target * cfg.AttemptFactor
	taken := map[[2]int]bool{}
	spaces := make([]model.ParkingSpace, 0, cfg.Target)
	for len(spaces) < cfg.Target && rep.Attempts < maxAttempts {
		rep.Attempts++
		x := cfg.Margin + rng.IntN(spanX)
		y := cfg.Margin + rng.IntN(spanY)
		k := [2]int{x, y}
		if taken[k] || !LandAt(px, x, y) {
			rep.Rejected++
			continue
		}
		taken[k] = true
		spaces = append(spaces, model.ParkingSpace{
			ID: ids.ParkingID(cfg.CityCode, len(spaces)+1),
			X:  float64(x),
			Y:  float64(y),
		})
	}
	rep.Placed = len(spaces)
	return spaces, rep
}

// Allocator owns the pool. It is written only from the world loop.
type Allocator struct {
	spaces []model.ParkingSpace
	byID   map[string]int
}

func NewAllocator(spaces []model.ParkingSpace) *Allocator {
	a := &Allocator{}
	a.Restore(spaces)
	return a
}

// Restore replaces the pool, occupancy included.
func (a *Allocator) Restore(spaces []model.ParkingSpace) {
	a.spaces = append([]model.ParkingSpace(nil), spaces...)
	a.byID = make(map[string]int, len(spaces))
	for i, s := range a.spaces {
		a.byID[s.ID] = i
	}
}

func (a *Allocator) Len() int { return len(a.spaces) }

func (a *Allocator) Available() int {
	n := 0
	for _, s := range a.spaces {
		if !s.Occupied {
			n++
		}
	}
	return n
}

// Spaces returns a copy of the pool in generation order.
func (a *Allocator) Spaces() []model.ParkingSpace {
	return append([]model.ParkingSpace(nil), a.spaces...)
}

func (a *Allocator) Get(id string) (model.ParkingSpace, bool) {
	i, ok := a.byID[id]
	if !ok {
		return model.ParkingSpace{}, false
	}
	return a.spaces[i], true
}

func (a *Allocator) Occupy(id string) error { return a.set(id, true) }

func (a *Allocator) Vacate(id string) error { return a.set(id, false) }

func (a *Allocator) set(id string, occupied bool) error {
	i, ok := a.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSpace, id)
	}
	a.spaces[i].Occupied = occupied
	return nil
}

// NearestAvailable scans the whole pool for the free space closest to
// (x,y). The first one in pool order wins a tie.
func (a *Allocator) NearestAvailable(x, y float64) (model.ParkingSpace, bool) {
	best := -1
	bestD := math.Inf(1)
	for i, s := range a.spaces {
		if s.Occupied {
			continue
		}
		d := mathx.Dist(x, y, s.X, s.Y)
		if d < bestD {
			best, bestD = i, d
		}
	}
	if best < 0 {
		return model.ParkingSpace{}, false
	}
	return a.spaces[best], true
}

// Digest identifies the layout (ids and positions, not occupancy).
func (a *Allocator) Digest() string {
	h := sha256.New()
	var tmp [8]byte
	for _, s := range a.spaces {
		h.Write([]byte(s.ID))
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(s.X))
		h.Write(tmp[:])
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(s.Y))
		h.Write(tmp[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
