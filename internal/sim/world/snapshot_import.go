package world

import (
	"fmt"

	"skyway.city/internal/persistence/snapshot"
	"skyway.city/internal/sim/weather"
	"skyway.city/internal/sim/world/feature/parking"
	"skyway.city/internal/sim/world/kernel/model"
	"skyway.city/internal/sim/world/logic/ids"
)

// ImportSnapshot replaces the current in-memory world state with the snapshot.
// It sets the world's tick to snapshotTick+1 (the next tick to simulate).
//
// This must be called only when the world is stopped or from the world loop goroutine.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}
	if s.Header.CityCode != w.city.Code {
		return fmt.Errorf("snapshot city mismatch: cfg=%s snap=%s", w.city.Code, s.Header.CityCode)
	}
	if d := w.city.ObstacleDigest(); s.ObstacleDigest != d {
		return fmt.Errorf("snapshot obstacle digest mismatch: cfg=%s snap=%s", d, s.ObstacleDigest)
	}

	// Everything below is staged in locals; a bad snapshot leaves the world
	// untouched.
	cfg := w.cfg
	if s.SnapshotEveryTicks > 0 {
		cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
	}
	if s.SessionTicks > 0 {
		cfg.SessionTicks = s.SessionTicks
	}
	if s.BaseSpeed > 0 {
		cfg.BaseSpeed = s.BaseSpeed
	}
	cfg.Seed = s.Seed

	fleet := make([]*flightEntry, 0, len(s.Flights))
	byID := make(map[string]*flightEntry, len(s.Flights))
	maxNum := uint64(0)
	for _, fv := range s.Flights {
		if fv.Agent.ID == "" {
			return fmt.Errorf("snapshot flight without agent id")
		}
		if _, dup := byID[fv.Agent.ID]; dup {
			return fmt.Errorf("snapshot duplicate agent %s", fv.Agent.ID)
		}
		if !fv.Flight.Status.Valid() {
			return fmt.Errorf("snapshot agent %s: bad status %q", fv.Agent.ID, fv.Flight.Status)
		}
		e := &flightEntry{agent: fv.Agent, flight: fv.Flight, state: fv.State, cruiseAlt: fv.CruiseAltitude}
		e.flight.AgentID = e.agent.ID
		if e.cruiseAlt <= 0 {
			e.cruiseAlt = max(e.agent.Altitude, cfg.CruiseMin)
		}
		if n, ok := ids.ParseAgentNum(e.agent.ID); ok {
			maxNum = ids.MaxU64(maxNum, n)
		}
		fleet = append(fleet, e)
		byID[e.agent.ID] = e
	}

	if s.ParkingDigest != "" {
		if got := parking.NewAllocator(s.Parking).Digest(); got != s.ParkingDigest {
			return fmt.Errorf("snapshot parking digest mismatch: got=%s want=%s", got, s.ParkingDigest)
		}
	}

	w.cfg = cfg
	w.fleet = fleet
	w.byID = byID
	w.nextAgent = ids.Sequence{}
	w.nextAgent.Restore(ids.MaxU64(s.Counters.NextAgent, maxNum))
	w.lots.Restore(s.Parking)

	accSeq := s.Counters.AccidentSeq
	for _, rec := range s.Accidents {
		if n, ok := ids.ParseAccidentSeq(rec.ID); ok {
			accSeq = ids.MaxU64(accSeq, n)
		}
	}
	w.analyzer.RestoreAccidentSeq(accSeq)
	w.accidents = append([]model.AccidentRecord(nil), s.Accidents...)

	w.hazards.Restore(s.Hazards, s.Severity)
	w.lastWeather = weather.Report{Severity: s.Severity, SafeToFly: !s.Hazards.Weather}
	w.encounters = nil

	for _, id := range w.tracker.IDs() {
		w.tracker.Forget(id)
	}
	for _, p := range s.Tracked {
		w.tracker.Update(p.AgentID, p.X, p.Y, p.Altitude, p.Tick)
	}

	w.tick.Store(s.Header.Tick + 1)
	w.publish(nil, s.Header.Tick)
	return nil
}
