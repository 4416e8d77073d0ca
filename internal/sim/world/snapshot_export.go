package world

import (
	"skyway.city/internal/persistence/snapshot"
	"skyway.city/internal/sim/world/kernel/model"
)

// ExportSnapshot captures the session at nowTick. Call only from the loop
// goroutine or while the world is stopped.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	flights := make([]snapshot.FlightV1, 0, len(w.fleet))
	for _, e := range w.fleet {
		st := e.state
		if st.LandingTarget != nil {
			t := *st.LandingTarget
			st.LandingTarget = &t
		}
		flights = append(flights, snapshot.FlightV1{
			Agent:          e.agent,
			Flight:         e.flight,
			State:          st,
			CruiseAltitude: e.cruiseAlt,
		})
	}

	tracked := make([]snapshot.TrackedV1, 0, w.tracker.Len())
	for _, id := range w.tracker.IDs() {
		p, _ := w.tracker.Get(id)
		tracked = append(tracked, snapshot.TrackedV1{AgentID: id, X: p.X, Y: p.Y, Altitude: p.Altitude, Tick: p.Tick})
	}

	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:  snapshot.Version,
			WorldID:  w.cfg.ID,
			CityCode: w.city.Code,
			Tick:     nowTick,
		},
		Seed:               w.cfg.Seed,
		TickRate:           w.cfg.TickRateHz,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		SessionTicks:       w.cfg.SessionTicks,
		BaseSpeed:          w.cfg.BaseSpeed,
		ObstacleDigest:     w.city.ObstacleDigest(),
		ParkingDigest:      w.lots.Digest(),
		Counters: snapshot.CountersV1{
			NextAgent:   w.nextAgent.Peek(),
			AccidentSeq: w.analyzer.AccidentSeq(),
		},
		Flights:   flights,
		Parking:   w.lots.Spaces(),
		Hazards:   w.hazards.Flags(),
		Severity:  w.hazards.Severity(),
		Accidents: append([]model.AccidentRecord(nil), w.accidents...),
		Tracked:   tracked,
	}
}
