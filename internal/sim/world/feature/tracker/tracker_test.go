package tracker

import "testing"

func TestUpdateGetForget(t *testing.T) {
	tr := New()
	if _, ok := tr.Get("J1"); ok {
		t.Fatalf("expected empty tracker")
	}
	tr.Update("J1", 10, 20, 30, 1)
	tr.Update("J1", 11, 21, 31, 2)
	p, ok := tr.Get("J1")
	if !ok || p.X != 11 || p.Y != 21 || p.Altitude != 31 || p.Tick != 2 {
		t.Fatalf("got %+v ok=%v", p, ok)
	}
	tr.Forget("J1")
	if _, ok := tr.Get("J1"); ok {
		t.Fatalf("expected J1 forgotten")
	}
	tr.Forget("missing")
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := New()
	tr.Update("J2", 1, 1, 0, 0)
	tr.Update("J1", 2, 2, 0, 0)
	snap := tr.Snapshot()
	snap["J1"] = Position{X: 99}
	delete(snap, "J2")
	if p, _ := tr.Get("J1"); p.X != 2 {
		t.Fatalf("snapshot mutation leaked: %+v", p)
	}
	if tr.Len() != 2 {
		t.Fatalf("len=%d want 2", tr.Len())
	}
	ids := tr.IDs()
	if len(ids) != 2 || ids[0] != "J1" || ids[1] != "J2" {
		t.Fatalf("ids=%v", ids)
	}
}
