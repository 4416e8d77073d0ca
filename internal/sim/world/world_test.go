package world

import (
	"testing"
	"time"

	"skyway.city/internal/sim/catalogs"
	"skyway.city/internal/sim/weather"
	"skyway.city/internal/sim/world/kernel/model"
	"skyway.city/internal/sim/world/logic/ids"
	"skyway.city/internal/sim/world/terrain/guard"
)

type landMap struct{ w, h int }

func (m landMap) Size() (int, int) { return m.w, m.h }

func (m landMap) RGBAt(x, y int) (uint8, uint8, uint8, bool) {
	if x < 0 || y < 0 || x >= m.w || y >= m.h {
		return 0, 0, 0, false
	}
	return 120, 120, 120, true
}

var fixedNow = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

func testCity() catalogs.City {
	return catalogs.City{
		Code:   "TST",
		Name:   "Testville",
		Width:  1000,
		Height: 1000,
		Obstacles: []model.Obstacle{
			{ID: "B1", Type: model.ObstacleBuilding, X: 400, Y: 400, Width: 50, Length: 50, Height: 80},
			{ID: "H1", Type: model.ObstacleHouse, X: 700, Y: 150, Width: 20, Length: 20, Height: 12},
		},
	}
}

func testConfig(fleet int) WorldConfig {
	return WorldConfig{
		ID:                 "test",
		TickRateHz:         5,
		SnapshotEveryTicks: 0,
		Seed:               42,
		BaseSpeed:          10,
		FleetSize:          fleet,
		CruiseMin:          60,
		CruiseMax:          180,
		StartYear:          2031,
	}
}

func newTestWorld(t *testing.T, cfg WorldConfig, src weather.Source) *World {
	t.Helper()
	w, err := New(cfg, testCity(), Deps{Map: landMap{w: 1000, h: 1000}, Weather: src, Now: fixedNow})
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

// addFlight places one cruising flight under the test's control.
func addFlight(w *World, at model.Vec3, dest model.Point) *flightEntry {
	num := w.nextAgent.Next()
	e := &flightEntry{
		agent: model.Agent{
			ID:       ids.AgentID(num),
			Callsign: "T" + ids.AgentID(num),
			X:        at.X,
			Y:        at.Y,
			Altitude: at.Alt,
			Speed:    w.cfg.BaseSpeed,
			Active:   true,
		},
		flight:    model.Flight{Start: at.Point(), Destination: dest, Status: model.StatusCruising},
		cruiseAlt: at.Alt,
	}
	e.flight.AgentID = e.agent.ID
	w.addEntry(e)
	w.publish(nil, 0)
	return e
}

type recordingAudit struct{ entries []AuditEntry }

func (r *recordingAudit) WriteAudit(e AuditEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingAudit) count(action, to string) int {
	n := 0
	for _, e := range r.entries {
		if e.Action == action && (to == "" || e.To == to) {
			n++
		}
	}
	return n
}

type recordingReporter struct{ recs []model.AccidentRecord }

func (r *recordingReporter) ReportAccident(rec model.AccidentRecord) error {
	r.recs = append(r.recs, rec)
	return nil
}

type recordingNotifier struct{ advisories []Advisory }

func (r *recordingNotifier) Notify(a Advisory) error {
	r.advisories = append(r.advisories, a)
	return nil
}

func TestNew_SpawnsFleetAboveObstacles(t *testing.T) {
	w := newTestWorld(t, testConfig(12), nil)
	if got := len(w.fleet); got != 12 {
		t.Fatalf("fleet=%d want 12", got)
	}
	floor := 80.0 + guard.DefaultMargin + guard.DefaultRadius
	for i, e := range w.fleet {
		if want := ids.AgentID(uint64(i + 1)); e.agent.ID != want {
			t.Fatalf("fleet[%d].ID=%s want %s", i, e.agent.ID, want)
		}
		if e.agent.Altitude < floor {
			t.Fatalf("%s altitude %.1f below %.1f", e.agent.ID, e.agent.Altitude, floor)
		}
		if e.flight.Status != model.StatusCruising || !e.agent.Active {
			t.Fatalf("%s status=%s active=%v", e.agent.ID, e.flight.Status, e.agent.Active)
		}
		if e.agent.X < 0 || e.agent.X > 1000 || e.agent.Y < 0 || e.agent.Y > 1000 {
			t.Fatalf("%s spawned outside the city: (%.1f,%.1f)", e.agent.ID, e.agent.X, e.agent.Y)
		}
	}
	if got := w.ParkingReport().Placed; got != 100 {
		t.Fatalf("parking placed=%d want 100", got)
	}
	v := w.View()
	if v == nil || len(v.Flights) != 12 || v.Parking.Available != 100 {
		t.Fatalf("initial view=%+v", v)
	}
	if v.Hazards.Status != model.StatusActive {
		t.Fatalf("status=%q want ACTIVE", v.Hazards.Status)
	}
}

func TestNew_FleetCountersArePerWorld(t *testing.T) {
	w1 := newTestWorld(t, testConfig(3), nil)
	w2 := newTestWorld(t, testConfig(3), nil)
	if w1.fleet[0].agent.ID != "J1" || w2.fleet[0].agent.ID != "J1" {
		t.Fatalf("each world numbers from J1: %s %s", w1.fleet[0].agent.ID, w2.fleet[0].agent.ID)
	}
}

func TestNew_RejectsBadThresholds(t *testing.T) {
	cfg := testConfig(0)
	cfg.Proximity.Thresholds.Accident = 60
	cfg.Proximity.Thresholds.Critical = 50
	cfg.Proximity.Thresholds.Warning = 100
	if _, err := New(cfg, testCity(), Deps{}); err == nil {
		t.Fatalf("expected threshold validation error")
	}
}

func TestDeterminism_SameInputsSameDigest(t *testing.T) {
	cfg := testConfig(16)
	w1 := newTestWorld(t, cfg, weather.NewDrift(7, 5))
	w2 := newTestWorld(t, cfg, weather.NewDrift(7, 5))

	for tick := uint64(0); tick < 60; tick++ {
		var cmds []Command
		if tick == 3 {
			cmds = append(cmds, HaltFlight{AgentID: "J2"})
		}
		if tick == 9 {
			cmds = append(cmds, ResumeFlight{AgentID: "J2"}, SetHazard{Kind: model.HazardPoliceActivity, Active: true})
		}
		t1, d1 := w1.StepOnce(cmds...)
		t2, d2 := w2.StepOnce(cmds...)
		if t1 != tick || t2 != tick {
			t.Fatalf("tick=%d/%d want %d", t1, t2, tick)
		}
		if d1 != d2 {
			t.Fatalf("digest mismatch at tick %d: %s vs %s", tick, d1, d2)
		}
	}
}

func TestSnapshotExportImport_RoundTripDigest(t *testing.T) {
	cfg := testConfig(8)
	w1 := newTestWorld(t, cfg, weather.NewDrift(3, 4))
	w1.StepOnce(LandFlight{AgentID: "J1"})
	for i := 0; i < 20; i++ {
		w1.StepOnce()
	}

	snapTick := w1.CurrentTick() - 1
	d1 := w1.stateDigest(snapTick)
	snap := w1.ExportSnapshot(snapTick)

	w2 := newTestWorld(t, cfg, weather.NewDrift(3, 4))
	if err := w2.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if got, want := w2.CurrentTick(), snapTick+1; got != want {
		t.Fatalf("tick=%d want %d", got, want)
	}
	if d2 := w2.stateDigest(snapTick); d2 != d1 {
		t.Fatalf("digest mismatch after import: %s vs %s", d1, d2)
	}
	if got := w2.lots.Available(); got != w1.lots.Available() {
		t.Fatalf("available=%d want %d", got, w1.lots.Available())
	}

	for i := 0; i < 10; i++ {
		_, a := w1.StepOnce()
		_, b := w2.StepOnce()
		if a != b {
			t.Fatalf("diverged %d ticks after import", i)
		}
	}
}

func TestImportSnapshot_RejectsOtherCity(t *testing.T) {
	w := newTestWorld(t, testConfig(2), nil)
	snap := w.ExportSnapshot(0)
	snap.Header.CityCode = "NYC"
	if err := w.ImportSnapshot(snap); err == nil {
		t.Fatalf("expected city mismatch error")
	}
	snap = w.ExportSnapshot(0)
	snap.ObstacleDigest = "deadbeef"
	if err := w.ImportSnapshot(snap); err == nil {
		t.Fatalf("expected obstacle digest mismatch error")
	}
}

func TestApplyDefaults_TerrainPerField(t *testing.T) {
	c := WorldConfig{Terrain: guard.Config{Radius: 7}}
	c.applyDefaults()
	if c.Terrain.Radius != 7 || c.Terrain.Margin != guard.DefaultMargin || c.Terrain.SearchRadius != guard.DefaultSearchRadius {
		t.Fatalf("terrain=%+v", c.Terrain)
	}
}
