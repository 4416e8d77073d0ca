package world

import (
	"fmt"
	"time"

	"skyway.city/internal/protocol"
	"skyway.city/internal/sim/world/feature/flight"
	"skyway.city/internal/sim/world/feature/hazard"
	"skyway.city/internal/sim/world/feature/proximity"
	"skyway.city/internal/sim/world/kernel/model"
)

// Actors recorded in the movement log.
const (
	ActorOperator  = "operator"
	ActorMovement  = "movement"
	ActorProximity = "proximity"
	ActorWeather   = "weather"
)

// tickState collects what one step produced for the logs and the view.
type tickState struct {
	tick        uint64
	commands    []RecordedCommand
	events      []protocol.Event
	transitions int
	accidents   []string
}

func (w *World) step(cmds []CommandEnvelope) {
	stepStart := time.Now()
	ts := &tickState{tick: w.tick.Load()}

	w.stepCommands(ts, cmds)
	w.stepMovement(ts)
	w.stepTracker(ts)
	w.stepProximity(ts)
	w.stepCollisionHalts(ts)
	w.stepWeather(ts)

	digest := w.stateDigest(ts.tick)
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{
			Tick:        ts.tick,
			Commands:    ts.commands,
			Weather:     w.lastWeather,
			Transitions: ts.transitions,
			Encounters:  len(w.encounters),
			Accidents:   ts.accidents,
			Digest:      digest,
		})
	}

	// Snapshot every N ticks, starting after tick 0, and at each session end.
	if w.snapshotSink != nil && w.snapshotDue(ts.tick) {
		snap := w.ExportSnapshot(ts.tick)
		select {
		case w.snapshotSink <- snap:
		default:
			// Drop snapshot if sink is backed up.
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	w.tick.Add(1)
	w.storeMetrics(stepMS, digest)
	w.publish(ts.events, ts.tick)
}

func (w *World) stepCommands(ts *tickState, cmds []CommandEnvelope) {
	for _, env := range cmds {
		actor := env.Actor
		if actor == "" {
			actor = ActorOperator
		}
		trs, err := w.applyCommand(env.Cmd)
		for _, tr := range trs {
			w.recordTransition(ts, actor, tr)
		}
		if sh, ok := env.Cmd.(SetHazard); ok && err == nil {
			w.hazardEvent(ts, sh.Kind, sh.Active)
		}
		rc := RecordedCommand{Name: env.Cmd.Name(), AgentID: env.Cmd.Target(), Actor: actor, OK: err == nil, Wire: EncodeCommand(env.Cmd)}
		if err != nil {
			rc.Code = CodeFor(err)
			rc.Message = err.Error()
		}
		ts.commands = append(ts.commands, rc)
		if env.Resp != nil {
			select {
			case env.Resp <- CommandResult{Tick: ts.tick, Err: err}:
			default:
			}
		}
	}
}

func (w *World) stepMovement(ts *tickState) {
	speed := w.hazards.EffectiveSpeed(w.cfg.BaseSpeed)
	for _, e := range w.fleet {
		held := e.flight.RerouteRequested
		switch w.machine.Advance(&e.agent, &e.flight, &e.state, speed) {
		case flight.Idle:
			e.agent.Speed = 0
		case flight.Arrived:
			w.audit(ts.tick, AuditEntry{Actor: ActorMovement, Action: AuditArrived, AgentID: e.agent.ID, Pos: e.agent.Pos3()})
		case flight.Blocked:
			e.agent.Speed = 0
			if !held {
				w.audit(ts.tick, AuditEntry{Actor: ActorMovement, Action: AuditRerouteRequested, AgentID: e.agent.ID, Pos: e.agent.Pos3()})
				w.notify(ts, Advisory{
					Level:   LevelWarning,
					Flights: []string{e.agent.ID},
					Message: fmt.Sprintf("%s holding: path blocked by terrain, reroute required", e.agent.Callsign),
				})
			}
		case flight.Landed:
			if tr, ok := flight.Park(&e.flight, &e.state); ok {
				w.recordTransition(ts, ActorMovement, tr)
			}
		}
	}
}

func (w *World) stepTracker(ts *tickState) {
	for _, e := range w.fleet {
		if !e.agent.Active {
			continue
		}
		w.tracker.Update(e.agent.ID, e.agent.X, e.agent.Y, e.agent.Altitude, ts.tick)
	}
}

// airborne lists the flights proximity applies to: active and not parked.
func (w *World) airborne() []proximity.Subject {
	out := make([]proximity.Subject, 0, len(w.fleet))
	for _, e := range w.fleet {
		if !e.agent.Active || e.flight.Status == model.StatusParked {
			continue
		}
		out = append(out, proximity.Subject{ID: e.agent.ID, X: e.agent.X, Y: e.agent.Y, Altitude: e.agent.Altitude})
	}
	return out
}

func (w *World) stepProximity(ts *tickState) {
	subjects := w.airborne()
	byID := make(map[string]proximity.Subject, len(subjects))
	for _, s := range subjects {
		byID[s.ID] = s
	}
	w.encounters = w.analyzer.Scan(subjects)
	for _, enc := range w.encounters {
		pair := []string{enc.A, enc.B}
		switch enc.Band {
		case proximity.BandAccident:
			rec := w.analyzer.Accident(enc, ts.tick)
			for _, id := range pair {
				if e := w.byID[id]; e != nil {
					e.flight.EmergencyReroute = true
				}
			}
			w.accidents = append(w.accidents, rec)
			if over := len(w.accidents) - w.cfg.RecentAccidents; over > 0 {
				w.accidents = append(w.accidents[:0:0], w.accidents[over:]...)
			}
			ts.accidents = append(ts.accidents, rec.ID)
			if w.reporter != nil {
				_ = w.reporter.ReportAccident(rec)
			}
			ts.events = append(ts.events, protocol.Event{
				Tick:     ts.tick,
				Kind:     "ACCIDENT",
				Level:    rec.Severity,
				ID:       rec.ID,
				Flights:  pair,
				Pos:      []float64{rec.X, rec.Y},
				Distance: enc.Distance,
				Message:  rec.Description,
			})
		case proximity.BandCritical, proximity.BandWarning:
			level := LevelWarning
			if enc.Band == proximity.BandCritical {
				level = LevelCritical
			}
			w.notify(ts, Advisory{
				Level:    level,
				Flights:  pair,
				Distance: enc.Distance,
				AtRisk:   w.analyzer.AtRisk(byID[enc.A], byID[enc.B]),
				Message:  fmt.Sprintf("%s proximity between %s and %s: %.1f", enc.Band, enc.A, enc.B, enc.Distance),
			})
		}
	}
}

// stepCollisionHalts holds every cruising flight involved in an accident
// until an operator reroutes it.
func (w *World) stepCollisionHalts(ts *tickState) {
	for _, e := range w.fleet {
		if !e.flight.EmergencyReroute {
			continue
		}
		if tr, ok := flight.Ground(&e.flight, model.HaltCollision); ok {
			w.recordTransition(ts, ActorProximity, tr)
		}
	}
}

func (w *World) stepWeather(ts *tickState) {
	if w.weather == nil {
		return
	}
	rep := w.weather.At(ts.tick)
	prev := w.lastWeather
	wasFlagged := w.hazards.Flags().Weather
	action := w.hazards.ObserveWeather(rep.Severity, rep.SafeToFly)
	w.lastWeather = rep

	if rep != prev {
		w.notify(ts, Advisory{
			Level:   LevelWeather,
			Message: fmt.Sprintf("weather severity %d -> %d (safe to fly: %t)", prev.Severity, rep.Severity, rep.SafeToFly),
		})
	}
	if flagged := w.hazards.Flags().Weather; flagged != wasFlagged {
		w.hazardEvent(ts, model.HazardWeather, flagged)
	}
	for _, tr := range hazard.ApplyWeather(action, w.entries(), w.lots) {
		w.recordTransition(ts, ActorWeather, tr)
	}
}

func (w *World) recordTransition(ts *tickState, actor string, tr flight.Transition) {
	ts.transitions++
	var pos model.Vec3
	if e := w.byID[tr.AgentID]; e != nil {
		pos = e.agent.Pos3()
	}
	w.audit(ts.tick, AuditEntry{
		Actor:   actor,
		Action:  AuditTransition,
		AgentID: tr.AgentID,
		From:    string(tr.From),
		To:      string(tr.To),
		Reason:  tr.Reason,
		Pos:     pos,
	})
	ts.events = append(ts.events, protocol.Event{
		Tick:    ts.tick,
		Kind:    "TRANSITION",
		Flights: []string{tr.AgentID},
		Pos:     []float64{pos.X, pos.Y, pos.Alt},
		From:    string(tr.From),
		To:      string(tr.To),
		Message: tr.Reason,
	})
}

func (w *World) hazardEvent(ts *tickState, kind model.HazardKind, on bool) {
	state := "cleared"
	if on {
		state = "raised"
	}
	w.notify(ts, Advisory{Level: LevelHazard, Message: fmt.Sprintf("hazard %s %s; status %s", kind, state, w.hazards.Flags().Status)})
}

func (w *World) audit(tick uint64, e AuditEntry) {
	if w.auditLogger == nil {
		return
	}
	e.Tick = tick
	_ = w.auditLogger.WriteAudit(e)
}

// notify forwards an advisory to the notifier and the event stream.
func (w *World) notify(ts *tickState, a Advisory) {
	a.Tick = ts.tick
	if w.notifier != nil {
		_ = w.notifier.Notify(a)
	}
	kind := "ADVISORY"
	switch a.Level {
	case LevelHazard:
		kind = "HAZARD"
	case LevelWeather:
		kind = "WEATHER"
	}
	ts.events = append(ts.events, protocol.Event{
		Tick:     ts.tick,
		Kind:     kind,
		Level:    a.Level,
		Flights:  a.Flights,
		Distance: a.Distance,
		Message:  a.Message,
	})
}

func (w *World) snapshotDue(tick uint64) bool {
	if every := w.cfg.SnapshotEveryTicks; every > 0 && tick != 0 && tick%uint64(every) == 0 {
		return true
	}
	if n := w.cfg.SessionTicks; n > 0 && (tick+1)%uint64(n) == 0 {
		return true
	}
	return false
}
