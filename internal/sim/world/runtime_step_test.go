package world

import (
	"math"
	"testing"

	"skyway.city/internal/sim/weather"
	"skyway.city/internal/sim/world/kernel/model"
)

func near(got, want float64) bool { return math.Abs(got-want) < 1e-6 }

func TestStep_AccidentHaltsBothUntilRerouted(t *testing.T) {
	w := newTestWorld(t, testConfig(0), nil)
	audit, rep, note := &recordingAudit{}, &recordingReporter{}, &recordingNotifier{}
	w.SetAuditLogger(audit)
	w.SetAccidentReporter(rep)
	w.SetNotifier(note)

	a := addFlight(w, model.Vec3{X: 100, Y: 100, Alt: 100}, model.Point{X: 612, Y: 100})
	b := addFlight(w, model.Vec3{X: 100, Y: 110, Alt: 100}, model.Point{X: 612, Y: 110})

	w.StepOnce()
	if len(rep.recs) != 1 {
		t.Fatalf("accidents=%d want 1", len(rep.recs))
	}
	rec := rep.recs[0]
	if rec.ID != "ACC-1700000000000-1" || rec.Type != model.AccidentTypeMidAir || rec.Tick != 0 {
		t.Fatalf("record=%+v", rec)
	}
	if rec.Flights != [2]string{a.agent.ID, b.agent.ID} {
		t.Fatalf("flights=%v", rec.Flights)
	}
	for _, e := range []*flightEntry{a, b} {
		if e.flight.Status != model.StatusEmergencyHalt || e.flight.HaltReason != model.HaltCollision || !e.flight.EmergencyReroute {
			t.Fatalf("%s status=%s reason=%s reroute=%v", e.agent.ID, e.flight.Status, e.flight.HaltReason, e.flight.EmergencyReroute)
		}
	}
	if got := audit.count(AuditTransition, string(model.StatusEmergencyHalt)); got != 2 {
		t.Fatalf("halt transitions=%d want 2", got)
	}

	// Still overlapping and holding: every tick is a new accident.
	w.StepOnce()
	if len(rep.recs) != 2 || rep.recs[1].ID != "ACC-1700000000000-2" {
		t.Fatalf("second tick records=%+v", rep.recs)
	}

	// 640 to go keeps the 10-unit step exact: separation lands on 20.
	w.StepOnce(Reroute{AgentID: b.agent.ID, Destination: model.Point{X: 110, Y: 750}})
	if b.flight.Status != model.StatusCruising || b.flight.EmergencyReroute {
		t.Fatalf("rerouted flight status=%s reroute=%v", b.flight.Status, b.flight.EmergencyReroute)
	}
	if !near(b.agent.Y, 120) {
		t.Fatalf("rerouted flight y=%.1f want 120", b.agent.Y)
	}
	if a.flight.Status != model.StatusEmergencyHalt {
		t.Fatalf("other flight must stay halted, got %s", a.flight.Status)
	}
	if len(rep.recs) != 2 {
		t.Fatalf("separation 20 is not an accident; records=%d", len(rep.recs))
	}
	last := note.advisories[len(note.advisories)-1]
	if last.Level != LevelCritical || !near(last.Distance, 20) {
		t.Fatalf("last advisory=%+v", last)
	}
	if got := w.Metrics().AccidentsTotal; got != 2 {
		t.Fatalf("metrics accidents=%d want 2", got)
	}
}

func TestStep_NilSinksStillDetect(t *testing.T) {
	w := newTestWorld(t, testConfig(0), nil)
	a := addFlight(w, model.Vec3{X: 500, Y: 800, Alt: 120}, model.Point{X: 600, Y: 800})
	addFlight(w, model.Vec3{X: 505, Y: 800, Alt: 120}, model.Point{X: 605, Y: 800})
	w.StepOnce()
	if a.flight.Status != model.StatusEmergencyHalt {
		t.Fatalf("status=%s want EMERGENCY_HALT", a.flight.Status)
	}
	v := w.View()
	if len(v.Accidents) != 1 || len(v.Encounters) != 1 {
		t.Fatalf("view accidents=%d encounters=%d", len(v.Accidents), len(v.Encounters))
	}
	if v.Events[0].Kind != "ACCIDENT" {
		t.Fatalf("first event=%+v", v.Events[0])
	}
}

func TestStep_WarningCarriesAtRisk(t *testing.T) {
	w := newTestWorld(t, testConfig(0), nil)
	note := &recordingNotifier{}
	w.SetNotifier(note)
	// 80 apart on the ground, same altitude: WARNING band and under the
	// vertical separation, but outside the minimum horizontal separation.
	addFlight(w, model.Vec3{X: 100, Y: 800, Alt: 100}, model.Point{X: 100, Y: 950})
	addFlight(w, model.Vec3{X: 180, Y: 800, Alt: 100}, model.Point{X: 180, Y: 950})
	w.StepOnce()
	if len(note.advisories) != 1 {
		t.Fatalf("advisories=%+v", note.advisories)
	}
	if adv := note.advisories[0]; adv.Level != LevelWarning || adv.AtRisk {
		t.Fatalf("advisory=%+v", adv)
	}
}

func TestStep_EmergencyHaltHazard(t *testing.T) {
	w := newTestWorld(t, testConfig(0), nil)
	f1 := addFlight(w, model.Vec3{X: 100, Y: 100, Alt: 100}, model.Point{X: 100, Y: 900})
	f2 := addFlight(w, model.Vec3{X: 600, Y: 100, Alt: 100}, model.Point{X: 600, Y: 900})
	f3 := addFlight(w, model.Vec3{X: 900, Y: 600, Alt: 100}, model.Point{X: 900, Y: 900})

	w.StepOnce(HaltFlight{AgentID: f3.agent.ID})
	w.StepOnce(SetHazard{Kind: model.HazardEmergencyHalt, Active: true})
	for _, e := range []*flightEntry{f1, f2} {
		if e.flight.Status != model.StatusEmergencyHalt || e.flight.HaltReason != model.HaltEmergency {
			t.Fatalf("%s status=%s reason=%s", e.agent.ID, e.flight.Status, e.flight.HaltReason)
		}
	}
	if got := w.View().Hazards.Status; got != string(model.HazardEmergencyHalt) {
		t.Fatalf("status=%q", got)
	}

	w.StepOnce(SetHazard{Kind: model.HazardEmergencyHalt, Active: false})
	if f1.flight.Status != model.StatusCruising || f2.flight.Status != model.StatusCruising {
		t.Fatalf("emergency clear must resume: %s %s", f1.flight.Status, f2.flight.Status)
	}
	if f3.flight.Status != model.StatusEmergencyHalt || f3.flight.HaltReason != model.HaltOperator {
		t.Fatalf("operator halt must survive: %s %s", f3.flight.Status, f3.flight.HaltReason)
	}
	if got := w.View().Hazards.Status; got != model.StatusActive {
		t.Fatalf("status=%q want ACTIVE", got)
	}
}

func TestStep_WeatherGroundsThenResumes(t *testing.T) {
	src := weather.NewScripted([]weather.Step{{Tick: 1, Severity: 5}, {Tick: 3, Severity: 1}})
	w := newTestWorld(t, testConfig(0), src)
	f1 := addFlight(w, model.Vec3{X: 100, Y: 100, Alt: 100}, model.Point{X: 100, Y: 900})
	f2 := addFlight(w, model.Vec3{X: 800, Y: 100, Alt: 100}, model.Point{X: 800, Y: 900})

	w.StepOnce()
	w.StepOnce()
	for _, e := range []*flightEntry{f1, f2} {
		if e.flight.Status != model.StatusEmergencyHalt || e.flight.HaltReason != model.HaltWeather {
			t.Fatalf("%s status=%s reason=%s", e.agent.ID, e.flight.Status, e.flight.HaltReason)
		}
	}
	v := w.View()
	if !v.Hazards.Weather || v.Hazards.Status != string(model.HazardWeather) || v.Weather.Severity != 5 {
		t.Fatalf("view hazards=%+v weather=%+v", v.Hazards, v.Weather)
	}

	w.StepOnce()
	if f1.flight.Status != model.StatusEmergencyHalt {
		t.Fatalf("5 -> 5 must not act, got %s", f1.flight.Status)
	}
	w.StepOnce()
	for _, e := range []*flightEntry{f1, f2} {
		if e.flight.Status != model.StatusCruising {
			t.Fatalf("%s status=%s want CRUISING", e.agent.ID, e.flight.Status)
		}
	}
	if w.View().Hazards.Weather {
		t.Fatalf("weather flag must clear when safe")
	}
}

func TestStep_SevereWeatherLandsFleet(t *testing.T) {
	src := weather.NewScripted([]weather.Step{{Tick: 1, Severity: 4}})
	w := newTestWorld(t, testConfig(0), src)
	fleet := []*flightEntry{
		addFlight(w, model.Vec3{X: 100, Y: 100, Alt: 100}, model.Point{X: 100, Y: 900}),
		addFlight(w, model.Vec3{X: 600, Y: 700, Alt: 100}, model.Point{X: 900, Y: 700}),
		addFlight(w, model.Vec3{X: 900, Y: 900, Alt: 100}, model.Point{X: 100, Y: 900}),
	}

	w.StepOnce()
	w.StepOnce()
	seen := map[string]bool{}
	for _, e := range fleet {
		if e.flight.Status != model.StatusEmergencyLanding || e.state.ParkingID == "" {
			t.Fatalf("%s status=%s parking=%q", e.agent.ID, e.flight.Status, e.state.ParkingID)
		}
		if seen[e.state.ParkingID] {
			t.Fatalf("space %s assigned twice", e.state.ParkingID)
		}
		seen[e.state.ParkingID] = true
	}
	if got := w.lots.Available(); got != 97 {
		t.Fatalf("available=%d want 97", got)
	}

	for i := 0; i < 1000 && w.Metrics().ByStatus[string(model.StatusParked)] < len(fleet); i++ {
		w.StepOnce()
	}
	for _, e := range fleet {
		if e.flight.Status != model.StatusParked || !e.state.Parked || e.agent.Altitude != 0 {
			t.Fatalf("%s status=%s parked=%v alt=%.1f", e.agent.ID, e.flight.Status, e.state.Parked, e.agent.Altitude)
		}
		space, _ := w.lots.Get(e.state.ParkingID)
		if e.agent.X != space.X || e.agent.Y != space.Y || !space.Occupied {
			t.Fatalf("%s at (%.1f,%.1f) space=%+v", e.agent.ID, e.agent.X, e.agent.Y, space)
		}
	}
}

func TestStep_WeatherHalvesSpeed(t *testing.T) {
	unsafe := false
	src := weather.NewScripted([]weather.Step{{Tick: 0, Severity: 2, SafeToFly: &unsafe}})
	w := newTestWorld(t, testConfig(0), src)
	f := addFlight(w, model.Vec3{X: 100, Y: 100, Alt: 100}, model.Point{X: 900, Y: 100})

	w.StepOnce() // weather is observed after movement
	w.StepOnce()
	if !near(f.agent.X, 115) {
		t.Fatalf("x=%.1f want 115 (10 then 5)", f.agent.X)
	}
	if f.flight.Status != model.StatusCruising {
		t.Fatalf("severity 2 must not ground, got %s", f.flight.Status)
	}
}

func TestStep_TerrainHoldsUntilRerouted(t *testing.T) {
	w := newTestWorld(t, testConfig(0), nil)
	audit := &recordingAudit{}
	w.SetAuditLogger(audit)
	f := addFlight(w, model.Vec3{X: 300, Y: 425, Alt: 10}, model.Point{X: 600, Y: 425})

	for i := 0; i < 15; i++ {
		w.StepOnce()
	}
	if !f.flight.RerouteRequested || !near(f.agent.X, 390) {
		t.Fatalf("reroute=%v x=%.1f want hold at 390", f.flight.RerouteRequested, f.agent.X)
	}
	if got := audit.count(AuditRerouteRequested, ""); got != 1 {
		t.Fatalf("reroute requests logged=%d want 1", got)
	}

	w.StepOnce(Reroute{AgentID: f.agent.ID, Destination: model.Point{X: 390, Y: 900}})
	if f.flight.RerouteRequested || !near(f.agent.Y, 435) {
		t.Fatalf("after reroute: requested=%v y=%.1f", f.flight.RerouteRequested, f.agent.Y)
	}
}

func TestStep_ArrivalTurnsAround(t *testing.T) {
	w := newTestWorld(t, testConfig(0), nil)
	f := addFlight(w, model.Vec3{X: 100, Y: 800, Alt: 100}, model.Point{X: 125, Y: 800})
	for i := 0; i < 3; i++ {
		w.StepOnce()
	}
	if f.agent.X != 125 {
		t.Fatalf("x=%.1f want 125", f.agent.X)
	}
	if f.flight.Destination != (model.Point{X: 100, Y: 800}) || f.flight.Start != (model.Point{X: 125, Y: 800}) {
		t.Fatalf("start=%v dest=%v", f.flight.Start, f.flight.Destination)
	}
	w.StepOnce()
	if !near(f.agent.X, 115) {
		t.Fatalf("x=%.1f want 115 on the return leg", f.agent.X)
	}
}

func TestStep_TracksActiveAgents(t *testing.T) {
	w := newTestWorld(t, testConfig(0), nil)
	f1 := addFlight(w, model.Vec3{X: 100, Y: 100, Alt: 100}, model.Point{X: 100, Y: 900})
	f2 := addFlight(w, model.Vec3{X: 900, Y: 100, Alt: 100}, model.Point{X: 900, Y: 900})
	w.StepOnce(DeactivateAgent{AgentID: f2.agent.ID})
	w.StepOnce()

	p, ok := w.tracker.Get(f1.agent.ID)
	if !ok || p.Tick != 1 || !near(p.Y, 120) {
		t.Fatalf("tracked=%+v ok=%v", p, ok)
	}
	if _, ok := w.tracker.Get(f2.agent.ID); ok {
		t.Fatalf("inactive agent must not be tracked")
	}
	if f2.agent.Y != 100 {
		t.Fatalf("inactive agent moved to y=%.1f", f2.agent.Y)
	}
}

func TestSnapshotDue(t *testing.T) {
	cfg := testConfig(0)
	cfg.SnapshotEveryTicks = 100
	cfg.SessionTicks = 250
	w := newTestWorld(t, cfg, nil)

	cases := map[uint64]bool{
		0:   false,
		99:  false,
		100: true,
		200: true,
		249: true, // closes session 1
		250: false,
		499: true,
	}
	for tick, want := range cases {
		if got := w.snapshotDue(tick); got != want {
			t.Fatalf("snapshotDue(%d)=%v want %v", tick, got, want)
		}
	}

	w.cfg.SnapshotEveryTicks, w.cfg.SessionTicks = 0, 0
	if w.snapshotDue(100) || w.snapshotDue(249) {
		t.Fatalf("disabled cadence still due")
	}
}
