package snapshot

import (
	"path/filepath"
	"testing"
	"time"

	"skyway.city/internal/sim/world/kernel/model"
)

func TestWriteRead(t *testing.T) {
	target := model.Point{X: 40, Y: 41}
	in := SnapshotV1{
		Header:   Header{Version: Version, WorldID: "city_MTR", CityCode: "MTR", Tick: 3000},
		Seed:     9,
		TickRate: 5,
		Counters: CountersV1{NextAgent: 12, AccidentSeq: 3},
		Flights: []FlightV1{{
			Agent:  model.Agent{ID: "J1", X: 1, Y: 2, Altitude: 60, Active: true},
			Flight: model.Flight{AgentID: "J1", Status: model.StatusEmergencyLanding},
			State:  model.FlightState{ParkingID: "MTR-P4", LandingTarget: &target},
		}},
		Parking:   []model.ParkingSpace{{ID: "MTR-P4", X: 40, Y: 41, Occupied: true}},
		Hazards:   model.HazardSet{Weather: true, Status: "WEATHER"},
		Severity:  4,
		Accidents: []model.AccidentRecord{{ID: "ACC-1-1", Time: time.Unix(1, 0).UTC()}},
	}
	p := filepath.Join(t.TempDir(), "snapshots", "3000.snap.zst")
	if err := WriteSnapshot(p, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	h, err := ReadHeader(p)
	if err != nil || h.Tick != 3000 || h.CityCode != "MTR" {
		t.Fatalf("header=%+v err=%v", h, err)
	}
	out, err := ReadSnapshot(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Counters != in.Counters || out.Severity != 4 || !out.Hazards.Weather {
		t.Fatalf("out=%+v", out)
	}
	st := out.Flights[0].State
	if st.LandingTarget == nil || *st.LandingTarget != target || st.ParkingID != "MTR-P4" {
		t.Fatalf("state=%+v", st)
	}
	if !out.Parking[0].Occupied || out.Accidents[0].ID != "ACC-1-1" {
		t.Fatalf("out=%+v", out)
	}
}

func TestReadSnapshot_VersionMismatch(t *testing.T) {
	p := filepath.Join(t.TempDir(), "x.snap.zst")
	if err := WriteSnapshot(p, SnapshotV1{Header: Header{Version: 99}}); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSnapshot(p); err == nil {
		t.Fatalf("expected version error")
	}
}
