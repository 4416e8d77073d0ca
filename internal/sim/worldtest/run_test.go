package worldtest

import (
	"context"
	"errors"
	"testing"
	"time"

	world "skyway.city/internal/sim/world"
	"skyway.city/internal/sim/world/kernel/model"
)

// waitView polls the published view until ok holds or the deadline passes.
func waitView(t *testing.T, w *world.World, ok func(*world.View) bool) *world.View {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if v := w.View(); ok(v) {
			return v
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("view condition not reached by tick %d", w.CurrentTick())
	return nil
}

func TestRun_ExecuteHaltThenResume(t *testing.T) {
	h := NewHarness(t)
	id := h.FlightIDs()[0]

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.W.Run(ctx) }()

	applied, err := h.W.Execute(ctx, "ops-1", world.HaltFlight{AgentID: id})
	if err != nil {
		t.Fatalf("halt: %v", err)
	}
	v := waitView(t, h.W, func(v *world.View) bool { return v.Tick > applied })
	f, _ := v.Flight(id)
	if f.Flight.Status != model.StatusEmergencyHalt || f.Flight.HaltReason != model.HaltOperator {
		t.Fatalf("after halt: status=%s reason=%s", f.Flight.Status, f.Flight.HaltReason)
	}

	applied, err = h.W.Execute(ctx, "ops-1", world.ResumeFlight{AgentID: id})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	v = waitView(t, h.W, func(v *world.View) bool { return v.Tick > applied })
	f, _ = v.Flight(id)
	if f.Flight.Status != model.StatusCruising {
		t.Fatalf("after resume: status=%s", f.Flight.Status)
	}

	if _, err := h.W.Execute(ctx, "ops-1", world.HaltFlight{AgentID: "A999"}); !errors.Is(err, world.ErrUnknownAgent) {
		t.Fatalf("unknown agent: err=%v", err)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}

func TestRun_StopUnblocksExecute(t *testing.T) {
	h := NewHarness(t)
	h.W.Stop()
	if _, err := h.W.Execute(context.Background(), "ops-1", world.HaltFlight{AgentID: h.FlightIDs()[0]}); !errors.Is(err, world.ErrStopped) {
		t.Fatalf("execute after stop: err=%v", err)
	}
	if err := h.W.Run(context.Background()); err != nil {
		t.Fatalf("run after stop: %v", err)
	}
}

func TestRun_InvalidStateSurfacesThroughExecute(t *testing.T) {
	h := NewHarness(t)
	id := h.FlightIDs()[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.W.Run(ctx) }()

	// Resuming a cruising flight is not a valid transition.
	_, err := h.W.Execute(ctx, "ops-1", world.ResumeFlight{AgentID: id})
	if !errors.Is(err, world.ErrInvalidState) {
		t.Fatalf("resume cruising: err=%v", err)
	}
}
