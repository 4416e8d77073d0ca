package cache

import (
	"os"
	"testing"
	"time"

	"skyway.city/internal/sim/world/kernel/model"
)

func TestPutGet_ParkingPool(t *testing.T) {
	s := New(t.TempDir())
	key := ParkingKey("nyc", "0123456789abcdef0123", 7, 100)
	if key != "parking/NYC/0123456789abcdef-7-100.msgpack" {
		t.Fatalf("key=%q", key)
	}
	in := []model.ParkingSpace{{ID: "NYC-P1", X: 12, Y: 30}, {ID: "NYC-P2", X: 50, Y: 51, Occupied: true}}
	if err := s.Put(key, in); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out []model.ParkingSpace
	when, err := s.Get(key, &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if time.Since(when) > time.Minute {
		t.Fatalf("mod time %v", when)
	}
	if len(out) != 2 || out[1] != in[1] {
		t.Fatalf("out=%+v", out)
	}
}

func TestGet_Missing(t *testing.T) {
	s := New(t.TempDir())
	var out []model.ParkingSpace
	if _, err := s.Get("parking/none.msgpack", &out); !os.IsNotExist(err) {
		t.Fatalf("err=%v", err)
	}
	if err := s.Put("../escape", 1); err == nil {
		t.Fatalf("expected bad key error")
	}
}

func TestCull(t *testing.T) {
	s := New(t.TempDir())
	big := make([]byte, 4096)
	for i := range big {
		big[i] = byte(i * 7)
	}
	if err := s.Put("a", big); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("b", big); err != nil {
		t.Fatal(err)
	}
	if err := s.Cull(0); err != nil {
		t.Fatal(err)
	}
	var out []byte
	if _, err := s.Get("a", &out); err == nil {
		t.Fatalf("a should be culled")
	}
}
