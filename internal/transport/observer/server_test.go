package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"skyway.city/internal/observerproto"
	"skyway.city/internal/sim/encoding"
	"skyway.city/internal/sim/world"
	"skyway.city/internal/sim/worldtest"
)

func TestBootstrapHandler(t *testing.T) {
	h := worldtest.NewHarness(t)
	s := NewServer(h.W, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/observer/bootstrap", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	s.BootstrapHandler()(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var resp observerproto.BootstrapResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.WorldID != "wth" || resp.City.Code != "WTH" || len(resp.City.Obstacles) != 2 {
		t.Fatalf("bootstrap: %+v", resp)
	}
	if len(resp.City.Parking) == 0 || resp.Params.TickRateHz != 20 || resp.Params.CollisionRadius <= 0 {
		t.Fatalf("bootstrap params/parking: %+v", resp.Params)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/observer/bootstrap", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec = httptest.NewRecorder()
	s.BootstrapHandler()(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote status=%d want 403", rec.Code)
	}
}

func TestFrame_Focus(t *testing.T) {
	h := worldtest.NewHarness(t)
	ids := h.FlightIDs()
	h.Step(world.LandFlight{AgentID: ids[0]})

	v := h.W.View()
	all := Frame(v, "")
	if len(all.Flights) != len(ids) || all.Tick != v.Tick {
		t.Fatalf("frame flights=%d tick=%d", len(all.Flights), all.Tick)
	}
	if all.Flights[0].AgentID != ids[0] || all.Flights[0].Serial == "" {
		t.Fatalf("flight frame: %+v", all.Flights[0])
	}
	if f := all.Flights[0]; f.Status == "EMERGENCY_LANDING" && f.LandingTarget == nil {
		t.Fatalf("landing flight has no target: %+v", f)
	}

	one := Frame(v, ids[1])
	if len(one.Flights) != 1 || one.Flights[0].AgentID != ids[1] {
		t.Fatalf("focused frame: %+v", one.Flights)
	}
	for _, e := range one.Encounters {
		if e.A != ids[1] && e.B != ids[1] {
			t.Fatalf("unfocused encounter %+v", e)
		}
	}
}

// halfLake is water on its left half.
type halfLake struct{ w, h int }

func (p halfLake) Size() (int, int) { return p.w, p.h }

func (p halfLake) RGBAt(x, y int) (uint8, uint8, uint8, bool) {
	if x < p.w/2 {
		return 0, 0, 255, true
	}
	return 120, 120, 120, true
}

func TestGroundLayer(t *testing.T) {
	g := GroundLayer(halfLake{w: 16, h: 8}, 4)
	if g.Cols != 4 || g.Rows != 2 || g.Cell != 4 {
		t.Fatalf("layer dims: %+v", g)
	}
	ids, err := encoding.DecodeRLE(g.RLE, g.Cols*g.Rows)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	w, l := observerproto.GroundWater, observerproto.GroundLand
	want := []uint16{w, w, l, l, w, w, l, l}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("cells=%v want %v", ids, want)
		}
	}

	h := worldtest.NewHarness(t)
	s := NewServer(h.W, nil)
	s.SetGround(h.S.Map, 8)
	b := s.Bootstrap()
	if b.City.Ground == nil || b.City.Ground.Cols != 75 || b.City.Ground.Rows != 75 {
		t.Fatalf("bootstrap ground: %+v", b.City.Ground)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:80": true,
		"[::1]:80":     true,
		"::1":          true,
		"10.0.0.1:80":  false,
		"garbage":      false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}
