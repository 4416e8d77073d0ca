package worldtest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"skyway.city/internal/persistence/snapshot"
	world "skyway.city/internal/sim/world"
	"skyway.city/internal/sim/world/kernel/model"
)

func TestSnapshot_FileRoundTripResumesIdentically(t *testing.T) {
	a := NewHarness(t)
	ids := a.FlightIDs()
	a.StepFor(10)
	a.Step(world.HaltFlight{AgentID: ids[1]})
	a.Step(world.SetHazard{Kind: model.HazardPoliceActivity, Active: true})
	a.StepFor(10)

	snapTick := a.W.CurrentTick() - 1
	snap := a.W.ExportSnapshot(snapTick)
	path := filepath.Join(t.TempDir(), "snap.zst")
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	hdr, err := snapshot.ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if hdr.Tick != snapTick || hdr.CityCode != "WTH" {
		t.Fatalf("header=%+v", hdr)
	}
	got, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	b := OpenHarness(t, a.Dir)
	if err := b.W.ImportSnapshot(got); err != nil {
		t.Fatalf("import: %v", err)
	}
	if b.W.CurrentTick() != a.W.CurrentTick() {
		t.Fatalf("tick a=%d b=%d", a.W.CurrentTick(), b.W.CurrentTick())
	}
	if f := b.Flight(ids[1]); f.Flight.Status != model.StatusEmergencyHalt {
		t.Fatalf("restored %s status=%s", ids[1], f.Flight.Status)
	}
	if !b.W.View().Hazards.PoliceActivity {
		t.Fatalf("hazard flag lost")
	}

	for i := 0; i < 20; i++ {
		da, db := a.Step(), b.Step()
		if da != db {
			t.Fatalf("digest diverged %d ticks after resume: %s vs %s", i, da, db)
		}
	}
}

func TestImportSnapshot_RejectedLeavesWorldUntouched(t *testing.T) {
	h := NewHarness(t)
	h.StepFor(5)
	base := h.W.ExportSnapshot(h.W.CurrentTick() - 1)
	if len(base.Flights) == 0 {
		t.Fatalf("harness has no flights")
	}

	dup := base
	dup.Flights = append(append([]snapshot.FlightV1(nil), base.Flights...), base.Flights[0])
	dup.BaseSpeed = base.BaseSpeed * 3

	badLots := base
	badLots.Header.Tick = base.Header.Tick + 100
	badLots.ParkingDigest = "not-the-digest"

	for name, bad := range map[string]snapshot.SnapshotV1{"duplicate": dup, "parking": badLots} {
		tick := h.W.CurrentTick()
		if err := h.W.ImportSnapshot(bad); err == nil {
			t.Fatalf("%s: expected import error", name)
		}
		if h.W.CurrentTick() != tick {
			t.Fatalf("%s: tick moved %d -> %d", name, tick, h.W.CurrentTick())
		}
		after := h.W.ExportSnapshot(tick - 1)
		if len(after.Flights) != len(base.Flights) {
			t.Fatalf("%s: fleet size %d -> %d", name, len(base.Flights), len(after.Flights))
		}
		if after.BaseSpeed != base.BaseSpeed {
			t.Fatalf("%s: base speed changed to %v", name, after.BaseSpeed)
		}
		if after.ParkingDigest != base.ParkingDigest {
			t.Fatalf("%s: parking pool changed", name)
		}
	}
	h.StepFor(3)
}

func TestRequestSnapshot_DeliversToSink(t *testing.T) {
	h := NewHarness(t)
	sink := make(chan snapshot.SnapshotV1, 1)
	h.W.SetSnapshotSink(sink)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go func() { _ = h.W.Run(ctx) }()

	rc, err := h.W.RequestSnapshot(ctx)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if rc.Flights != 6 {
		t.Fatalf("receipt flights=%d want 6", rc.Flights)
	}
	select {
	case snap := <-sink:
		if snap.Header.Tick != rc.Tick || len(snap.Flights) != rc.Flights {
			t.Fatalf("snap tick=%d want %d flights=%d", snap.Header.Tick, rc.Tick, len(snap.Flights))
		}
		if rc.Accidents != snap.Counters.AccidentSeq {
			t.Fatalf("receipt accidents=%d want %d", rc.Accidents, snap.Counters.AccidentSeq)
		}
	case <-ctx.Done():
		t.Fatalf("no snapshot delivered")
	}
}

func TestRequestSnapshot_NoSinkIsAnError(t *testing.T) {
	h := NewHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go func() { _ = h.W.Run(ctx) }()

	if _, err := h.W.RequestSnapshot(ctx); !errors.Is(err, world.ErrNoSnapshotSink) {
		t.Fatalf("err=%v want ErrNoSnapshotSink", err)
	}
}
