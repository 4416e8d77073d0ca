package ws

import (
	"testing"

	"skyway.city/internal/protocol"
)

func TestEventRing_SinceAndEviction(t *testing.T) {
	r := newEventRing(3)
	for i := 1; i <= 5; i++ {
		if got := r.append(protocol.Event{Tick: uint64(i), Kind: "k"}); got != uint64(i) {
			t.Fatalf("cursor=%d want %d", got, i)
		}
	}
	if r.cursor() != 5 {
		t.Fatalf("cursor=%d", r.cursor())
	}

	items, next, missed := r.since(0, 0, protocol.EventFilter{})
	if len(items) != 3 || items[0].Cursor != 3 || items[2].Cursor != 5 || next != 5 || missed != 2 {
		t.Fatalf("since(0): items=%+v next=%d missed=%d", items, next, missed)
	}

	items, next, missed = r.since(3, 1, protocol.EventFilter{})
	if len(items) != 1 || items[0].Cursor != 4 || next != 4 || missed != 0 {
		t.Fatalf("since(3,1): items=%+v next=%d missed=%d", items, next, missed)
	}

	items, next, _ = r.since(5, 10, protocol.EventFilter{})
	if len(items) != 0 || next != 5 {
		t.Fatalf("since(5): items=%+v next=%d", items, next)
	}
}

func TestEventRing_FilterAdvancesCursor(t *testing.T) {
	r := newEventRing(8)
	r.append(protocol.Event{Tick: 1, Kind: "TRANSITION", Flights: []string{"J1"}})
	r.append(protocol.Event{Tick: 1, Kind: "ADVISORY", Flights: []string{"J1", "J2"}})
	r.append(protocol.Event{Tick: 2, Kind: "TRANSITION", Flights: []string{"J2"}})
	r.append(protocol.Event{Tick: 3, Kind: "HAZARD"})

	items, next, _ := r.since(0, 0, protocol.EventFilter{AgentID: "J2"})
	if len(items) != 2 || items[0].Cursor != 2 || items[1].Cursor != 3 || next != 4 {
		t.Fatalf("agent filter: items=%+v next=%d", items, next)
	}

	items, next, _ = r.since(0, 1, protocol.EventFilter{Kinds: []string{"TRANSITION"}})
	if len(items) != 1 || items[0].Cursor != 1 || next != 1 {
		t.Fatalf("kind filter limit 1: items=%+v next=%d", items, next)
	}
	items, next, _ = r.since(next, 0, protocol.EventFilter{Kinds: []string{"TRANSITION"}})
	if len(items) != 1 || items[0].Cursor != 3 || next != 4 {
		t.Fatalf("kind filter resume: items=%+v next=%d", items, next)
	}
}
