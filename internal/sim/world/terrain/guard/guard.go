// Package guard tests jetpack positions and flight segments against static
// city geometry.
package guard

import (
	"math"

	"skyway.city/internal/sim/world/kernel/model"
	"skyway.city/internal/sim/world/logic/mathx"
	"skyway.city/internal/sim/world/terrain/grid"
)

const (
	DefaultRadius       = 5.0
	DefaultMargin       = 2.0
	DefaultSearchRadius = 50.0

	minPathSamples = 3
	maxPathSamples = 20
)

type Config struct {
	// Radius of the sphere approximating a jetpack and its pilot.
	Radius float64
	// Margin added on top of the tallest nearby obstacle.
	Margin       float64
	SearchRadius float64
	CellSize     float64
}

func (c Config) normalized() Config {
	if c.Radius <= 0 {
		c.Radius = DefaultRadius
	}
	if c.Margin <= 0 {
		c.Margin = DefaultMargin
	}
	if c.SearchRadius <= 0 {
		c.SearchRadius = DefaultSearchRadius
	}
	return c
}

type Guard struct {
	cfg   Config
	index *grid.Index
}

func New(obstacles []model.Obstacle, cfg Config) *Guard {
	cfg = cfg.normalized()
	cell := cfg.CellSize
	if cell <= 0 {
		cell = math.Max(grid.DefaultCellSize, cfg.SearchRadius)
	}
	return &Guard{cfg: cfg, index: grid.New(obstacles, cell)}
}

func (g *Guard) Config() Config { return g.cfg }

func (g *Guard) Obstacles() []model.Obstacle { return g.index.Obstacles() }

// CheckCollision reports whether a sphere of the configured radius at p
// touches any obstacle below its roof.
func (g *Guard) CheckCollision(p model.Vec3) bool {
	r := g.cfg.Radius
	for _, i := range g.index.Near(p.X, p.Y, r) {
		o := g.index.At(i)
		if p.Alt >= o.Height {
			continue
		}
		if o.Contains(p.X, p.Y) {
			return true
		}
		if mathx.RectDistance(p.X, p.Y, o.X, o.Y, o.MaxX(), o.MaxY()) < r {
			return true
		}
	}
	return false
}

// PathSamples is the number of points IsPathClear tests for a segment of the
// given length: one per radius travelled, clamped to [3, 20].
func (g *Guard) PathSamples(length float64) int {
	n := int(math.Ceil(length / g.cfg.Radius))
	return mathx.ClampInt(n, minPathSamples, maxPathSamples)
}

// IsPathClear samples the segment a->b (endpoints included) and rejects it
// on the first colliding sample.
func (g *Guard) IsPathClear(a, b model.Vec3) bool {
	length := math.Sqrt((b.X-a.X)*(b.X-a.X) + (b.Y-a.Y)*(b.Y-a.Y) + (b.Alt-a.Alt)*(b.Alt-a.Alt))
	n := g.PathSamples(length)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n-1)
		p := model.Vec3{
			X:   mathx.Lerp(a.X, b.X, t),
			Y:   mathx.Lerp(a.Y, b.Y, t),
			Alt: mathx.Lerp(a.Alt, b.Alt, t),
		}
		if g.CheckCollision(p) {
			return false
		}
	}
	return true
}

// MinimumSafeAltitude is the tallest obstacle over or touching (x,y), plus
// the margin. Zero when nothing qualifies.
func (g *Guard) MinimumSafeAltitude(x, y float64) float64 {
	found := false
	maxH := 0.0
	for _, i := range g.index.Near(x, y, g.cfg.SearchRadius) {
		o := g.index.At(i)
		d := mathx.RectDistance(x, y, o.X, o.Y, o.MaxX(), o.MaxY())
		if d > g.cfg.SearchRadius {
			continue
		}
		if !o.Contains(x, y) && d >= g.cfg.Radius {
			continue
		}
		if !found || o.Height > maxH {
			maxH = o.Height
			found = true
		}
	}
	if !found {
		return 0
	}
	return maxH + g.cfg.Margin
}

func (g *Guard) IsSafePosition(p model.Vec3) bool {
	if g.CheckCollision(p) {
		return false
	}
	return p.Alt >= g.MinimumSafeAltitude(p.X, p.Y)
}
