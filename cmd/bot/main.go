package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"skyway.city/internal/protocol"
	"skyway.city/internal/sim/world/kernel/model"
)

func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name   = flag.String("name", "dispatch-bot", "client name")
		every  = flag.Uint64("every", 100, "consider one dispatch every N ticks")
		seed   = flag.Int64("seed", 1, "destination seed")
		resume = flag.String("resume", "", "resume token from a previous session (optional)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Role:            protocol.RoleOperator,
		ResumeToken:     *resume,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	d := &dispatcher{every: *every, rng: rand.New(rand.NewSource(*seed))}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			d.city = w.City
			d.operator = w.Role == protocol.RoleOperator
			logger.Printf("WELCOME session=%s role=%s city=%s %dx%d resume_token=%s", w.SessionID, w.Role, w.City.Code, w.City.Width, w.City.Height, w.ResumeToken)

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			if cmd := d.decide(&st); cmd != nil {
				if err := conn.WriteJSON(cmd); err != nil {
					return
				}
			}

		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			logger.Printf("EVENT #%d tick=%d %s flights=%v %s", ev.Cursor, ev.Event.Tick, ev.Event.Kind, ev.Event.Flights, ev.Event.Message)

		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			if ack.Accepted {
				logger.Printf("ACK %s tick=%d", ack.AckFor, ack.ServerTick)
			} else {
				logger.Printf("NACK %s code=%s %s", ack.AckFor, ack.Code, ack.Message)
			}
		}
	}
}

// dispatcher sends parked flights out to random destinations and answers
// reroute requests, one command per decision window.
type dispatcher struct {
	city     protocol.CityParams
	operator bool
	every    uint64
	rng      *rand.Rand

	last uint64
	seq  uint64
}

func (d *dispatcher) decide(st *protocol.StateMsg) *protocol.CommandMsg {
	if !d.operator || d.city.Width <= 0 || d.city.Height <= 0 {
		return nil
	}
	if d.every == 0 {
		d.every = 1
	}
	if d.seq > 0 && st.Tick < d.last+d.every {
		return nil
	}
	// Nothing leaves the ground while the sky is unsafe.
	if !st.Weather.SafeToFly || st.Hazards.EmergencyHalt {
		return nil
	}

	for _, f := range st.Flights {
		if f.Active && f.Reroute && f.Status == string(model.StatusCruising) {
			return d.command(st.Tick, protocol.CmdReroute, f.AgentID)
		}
	}
	var parked []protocol.FlightState
	for _, f := range st.Flights {
		if f.Active && f.Status == string(model.StatusParked) {
			parked = append(parked, f)
		}
	}
	if len(parked) == 0 {
		return nil
	}
	f := parked[d.rng.Intn(len(parked))]
	return d.command(st.Tick, protocol.CmdDispatch, f.AgentID)
}

func (d *dispatcher) command(tick uint64, name, agentID string) *protocol.CommandMsg {
	d.last = tick
	d.seq++
	cmd := &protocol.CommandMsg{
		Type:            protocol.TypeCommand,
		ProtocolVersion: protocol.Version,
		CommandID:       fmt.Sprintf("C_%s_%d", name, d.seq),
		Cmd:             name,
		AgentID:         agentID,
	}
	// Keep a margin off the city edge.
	w, h := float64(d.city.Width), float64(d.city.Height)
	x := w*0.05 + d.rng.Float64()*w*0.9
	y := h*0.05 + d.rng.Float64()*h*0.9
	cmd.X, cmd.Y = &x, &y
	return cmd
}
