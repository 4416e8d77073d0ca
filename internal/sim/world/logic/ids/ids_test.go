package ids

import "testing"

func TestParkingID(t *testing.T) {
	id := ParkingID("nyc", 7)
	if id != "NYC-P7" {
		t.Fatalf("ParkingID=%q", id)
	}
	n, ok := ParseParkingNum(id)
	if !ok || n != 7 {
		t.Fatalf("ParseParkingNum(%q)=%d,%v", id, n, ok)
	}
	if _, ok := ParseParkingNum("NYC-P0"); ok {
		t.Fatalf("zero index must be rejected")
	}
}

func TestAccidentID(t *testing.T) {
	id := AccidentID(1700000000123, 4)
	if id != "ACC-1700000000123-4" {
		t.Fatalf("AccidentID=%q", id)
	}
	seq, ok := ParseAccidentSeq(id)
	if !ok || seq != 4 {
		t.Fatalf("ParseAccidentSeq=%d,%v", seq, ok)
	}
}

func TestSequence_RestoreNeverLowers(t *testing.T) {
	var s Sequence
	s.Next()
	s.Next()
	s.Restore(1)
	if got := s.Next(); got != 3 {
		t.Fatalf("Next=%d want 3", got)
	}
	s.Restore(10)
	if got := s.Next(); got != 11 {
		t.Fatalf("Next=%d want 11", got)
	}
}

func TestAgentID(t *testing.T) {
	if got := AgentID(12); got != "J12" {
		t.Fatalf("AgentID=%q", got)
	}
	if n, ok := ParseAgentNum("J12"); !ok || n != 12 {
		t.Fatalf("ParseAgentNum=%d,%v", n, ok)
	}
	if got := Serial(2031, 42); got != "JP-2031-00042" {
		t.Fatalf("Serial=%q", got)
	}
}
