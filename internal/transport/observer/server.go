package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"skyway.city/internal/observerproto"
	"skyway.city/internal/sim/encoding"
	"skyway.city/internal/sim/world"
	"skyway.city/internal/sim/world/feature/parking"
	"skyway.city/internal/sim/world/kernel/model"
)

// Server is the loopback-only observer surface: a bootstrap document with the
// static city layout, and a websocket stream of detailed frames.
type Server struct {
	world *world.World
	log   *log.Logger

	layout observerproto.CityLayout

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

// NewServer captures the parking layout, so it must be called before the
// world starts running.
func NewServer(w *world.World, logger *log.Logger) *Server {
	city := w.City()
	return &Server{
		world: w,
		log:   logger,
		layout: observerproto.CityLayout{
			Code:      city.Code,
			Name:      city.Name,
			Width:     city.Width,
			Height:    city.Height,
			Obstacles: append([]model.Obstacle(nil), city.Obstacles...),
			Parking:   w.ParkingSpaces(),
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// SetGround attaches a land/water layer sampled from the city map. Call it
// before serving.
func (s *Server) SetGround(px parking.Pixels, cell int) {
	if px == nil {
		return
	}
	g := GroundLayer(px, cell)
	s.layout.Ground = &g
}

// GroundLayer samples the center of every cell x cell block.
func GroundLayer(px parking.Pixels, cell int) observerproto.GroundLayer {
	if cell <= 0 {
		cell = 8
	}
	w, h := px.Size()
	cols, rows := (w+cell-1)/cell, (h+cell-1)/cell
	ids := make([]uint16, 0, cols*rows)
	for r := 0; r < rows; r++ {
		y := min(r*cell+cell/2, h-1)
		for c := 0; c < cols; c++ {
			x := min(c*cell+cell/2, w-1)
			v := observerproto.GroundWater
			if parking.LandAt(px, x, y) {
				v = observerproto.GroundLand
			}
			ids = append(ids, v)
		}
	}
	return observerproto.GroundLayer{Cell: cell, Cols: cols, Rows: rows, RLE: encoding.EncodeRLE(ids)}
}

func (s *Server) Bootstrap() observerproto.BootstrapResponse {
	cfg := s.world.Config()
	return observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		WorldID:         cfg.ID,
		Tick:            s.world.CurrentTick(),
		Params: observerproto.Params{
			TickRateHz:         cfg.TickRateHz,
			Seed:               cfg.Seed,
			BaseSpeed:          cfg.BaseSpeed,
			SnapshotEveryTicks: cfg.SnapshotEveryTicks,
			AccidentDistance:   cfg.Proximity.Thresholds.Accident,
			CriticalDistance:   cfg.Proximity.Thresholds.Critical,
			WarningDistance:    cfg.Proximity.Thresholds.Warning,
			CollisionRadius:    cfg.Terrain.Radius,
		},
		City: s.layout,
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.Bootstrap())
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		if s.log != nil {
			s.log.Printf("observer: subscribe session=%s every=%d focus=%q", sid, sub.EveryTicks, sub.FocusAgentID)
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		var current atomic.Pointer[observerproto.SubscribeMsg]
		current.Store(&sub)

		// Writer goroutine: polls the published view once per tick interval.
		writeErr := make(chan error, 1)
		go func() {
			hz := s.world.TickRateHz()
			if hz <= 0 {
				hz = 5
			}
			ticker := time.NewTicker(time.Second / time.Duration(hz))
			defer ticker.Stop()
			var last uint64
			sent := false
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case <-ticker.C:
				}
				v := s.world.View()
				if v == nil || (sent && v.Tick == last) {
					continue
				}
				cur := current.Load()
				if sent && v.Tick < last+uint64(cur.EveryTicks) {
					continue
				}
				b, err := json.Marshal(Frame(v, cur.FocusAgentID))
				if err != nil {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					return
				}
				last, sent = v.Tick, true
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := parseSubscribe(msg); ok {
				current.Store(&sub)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// Frame renders a view for observers. A non-empty focus keeps only that
// flight and the encounters it takes part in.
func Frame(v *world.View, focus string) observerproto.FrameMsg {
	st := v.StateMsg()
	out := observerproto.FrameMsg{
		Type:            observerproto.TypeFrame,
		ProtocolVersion: observerproto.Version,
		Tick:            v.Tick,
		Hazards:         st.Hazards,
		Weather:         st.Weather,
		Flights:         make([]observerproto.FlightFrame, 0, len(v.Flights)),
		Accidents:       v.Accidents,
		Parking:         st.Parking,
		Events:          v.Events,
	}
	for i, f := range v.Flights {
		if focus != "" && f.Agent.ID != focus {
			continue
		}
		ff := observerproto.FlightFrame{
			FlightState:      st.Flights[i],
			Serial:           f.Agent.Serial,
			Model:            f.Agent.Model,
			Owner:            f.Agent.Owner,
			Speed:            f.Agent.Speed,
			Color:            f.Flight.Color,
			Start:            [2]float64{f.Flight.Start.X, f.Flight.Start.Y},
			EmergencyReroute: f.Flight.EmergencyReroute,
		}
		if t := f.State.LandingTarget; t != nil {
			ff.LandingTarget = []float64{t.X, t.Y}
		}
		out.Flights = append(out.Flights, ff)
	}
	for _, e := range st.Encounters {
		if focus != "" && e.A != focus && e.B != focus {
			continue
		}
		out.Encounters = append(out.Encounters, e)
	}
	return out
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	normalizeSubscribe(&sub)
	return sub, true
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	if sub.EveryTicks <= 0 {
		sub.EveryTicks = 1
	}
	if sub.EveryTicks > 1000 {
		sub.EveryTicks = 1000
	}
	sub.FocusAgentID = strings.TrimSpace(sub.FocusAgentID)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
