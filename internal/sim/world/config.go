package world

import (
	"skyway.city/internal/sim/tuning"
	"skyway.city/internal/sim/world/feature/parking"
	"skyway.city/internal/sim/world/feature/proximity"
	"skyway.city/internal/sim/world/terrain/guard"
)

type WorldConfig struct {
	ID                 string
	TickRateHz         int
	SnapshotEveryTicks int
	// SessionTicks closes an archive window every N ticks; the last tick of
	// each window is always snapshotted.
	SessionTicks int
	Seed         int64
	// BaseSpeed is distance per tick before hazard adjustment.
	BaseSpeed float64
	InboxSize int

	Proximity proximity.Config
	Terrain   guard.Config
	Parking   parking.GenConfig

	FleetSize int
	CruiseMin float64
	CruiseMax float64
	StartYear int

	// RecentAccidents bounds the accident list in the published view.
	RecentAccidents int
}

func (c *WorldConfig) applyDefaults() {
	if c.TickRateHz <= 0 {
		c.TickRateHz = 5
	}
	if c.BaseSpeed <= 0 {
		c.BaseSpeed = 10
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 1024
	}
	if c.Proximity.Thresholds == (proximity.Thresholds{}) {
		c.Proximity.Thresholds = proximity.DefaultThresholds()
	}
	if c.Proximity.MinSeparation <= 0 {
		c.Proximity.MinSeparation = c.Proximity.Thresholds.Critical
	}
	if c.Proximity.VerticalSeparation <= 0 {
		c.Proximity.VerticalSeparation = 100
	}
	if c.Terrain.Radius <= 0 {
		c.Terrain.Radius = guard.DefaultRadius
	}
	if c.Terrain.Margin <= 0 {
		c.Terrain.Margin = guard.DefaultMargin
	}
	if c.Terrain.SearchRadius <= 0 {
		c.Terrain.SearchRadius = guard.DefaultSearchRadius
	}
	if c.CruiseMax < c.CruiseMin {
		c.CruiseMin, c.CruiseMax = c.CruiseMax, c.CruiseMin
	}
	if c.CruiseMax <= 0 {
		c.CruiseMin, c.CruiseMax = 60, 180
	}
	if c.StartYear <= 0 {
		c.StartYear = 2031
	}
	if c.RecentAccidents <= 0 {
		c.RecentAccidents = 32
	}
}

// ConfigFromTuning maps tuning.yaml onto a world config.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		SessionTicks:       t.SessionTicks,
		Seed:               t.Fleet.Seed,
		BaseSpeed:          t.BaseSpeed,
		Proximity: proximity.Config{
			Thresholds: proximity.Thresholds{
				Accident: t.Proximity.Accident,
				Critical: t.Proximity.Critical,
				Warning:  t.Proximity.Warning,
			},
			MinSeparation:      t.Proximity.MinSeparation,
			VerticalSeparation: t.Proximity.VerticalSeparation,
		},
		Terrain: guard.Config{
			Radius:       t.Terrain.Radius,
			Margin:       t.Terrain.Margin,
			SearchRadius: t.Terrain.SearchRadius,
			CellSize:     t.Terrain.CellSize,
		},
		Parking: parking.GenConfig{
			Target:        t.Parking.Target,
			Margin:        t.Parking.Margin,
			AttemptFactor: t.Parking.AttemptFactor,
			Seed:          uint64(t.Fleet.Seed),
		},
		FleetSize: t.Fleet.Size,
		CruiseMin: t.Fleet.CruiseMin,
		CruiseMax: t.Fleet.CruiseMax,
		StartYear: t.Fleet.StartYear,
	}
}
