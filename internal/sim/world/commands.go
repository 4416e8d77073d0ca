package world

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"skyway.city/internal/protocol"
	"skyway.city/internal/sim/world/feature/flight"
	"skyway.city/internal/sim/world/feature/hazard"
	"skyway.city/internal/sim/world/feature/parking"
	"skyway.city/internal/sim/world/kernel/model"
)

// Command is an operator instruction applied at the start of a tick. The set
// of commands is closed.
type Command interface {
	Name() string
	// Target is the agent the command addresses, or "" for city-wide commands.
	Target() string
	command()
}

type HaltFlight struct {
	AgentID string
}

type ResumeFlight struct {
	AgentID string
	// Reason must match the halt reason; empty means OPERATOR.
	Reason model.HaltReason
}

// Dispatch sends a parked flight out. A nil Destination keeps the current one;
// zero Altitude returns the agent to its cruise altitude.
type Dispatch struct {
	AgentID     string
	Destination *model.Point
	Altitude    float64
}

type Reroute struct {
	AgentID     string
	Destination model.Point
}

// LandFlight routes a cruising flight to ParkingID, or to the nearest free
// space when ParkingID is empty.
type LandFlight struct {
	AgentID   string
	ParkingID string
}

type SetHazard struct {
	Kind   model.HazardKind
	Active bool
}

type SetAltitude struct {
	AgentID  string
	Altitude float64
}

type DeactivateAgent struct {
	AgentID string
	Active  bool
}

func (HaltFlight) Name() string      { return protocol.CmdHaltFlight }
func (ResumeFlight) Name() string    { return protocol.CmdResumeFlight }
func (Dispatch) Name() string        { return protocol.CmdDispatch }
func (Reroute) Name() string         { return protocol.CmdReroute }
func (LandFlight) Name() string      { return protocol.CmdLandFlight }
func (SetHazard) Name() string       { return protocol.CmdSetHazard }
func (SetAltitude) Name() string     { return protocol.CmdSetAltitude }
func (DeactivateAgent) Name() string { return protocol.CmdDeactivateAgent }

func (c HaltFlight) Target() string      { return c.AgentID }
func (c ResumeFlight) Target() string    { return c.AgentID }
func (c Dispatch) Target() string        { return c.AgentID }
func (c Reroute) Target() string         { return c.AgentID }
func (c LandFlight) Target() string      { return c.AgentID }
func (SetHazard) Target() string         { return "" }
func (c SetAltitude) Target() string     { return c.AgentID }
func (c DeactivateAgent) Target() string { return c.AgentID }

func (HaltFlight) command()      {}
func (ResumeFlight) command()    {}
func (Dispatch) command()        {}
func (Reroute) command()         {}
func (LandFlight) command()      {}
func (SetHazard) command()       {}
func (SetAltitude) command()     {}
func (DeactivateAgent) command() {}

type CommandEnvelope struct {
	ID    string
	Actor string
	Cmd   Command
	// Resp, if set, receives the outcome once the command is applied. It
	// should be buffered; the loop never blocks on it.
	Resp chan CommandResult
}

type CommandResult struct {
	Tick uint64
	Err  error
}

// Execute submits cmd and waits for the tick that applies it.
func (w *World) Execute(ctx context.Context, actor string, cmd Command) (uint64, error) {
	resp := make(chan CommandResult, 1)
	if err := w.Submit(CommandEnvelope{Actor: actor, Cmd: cmd, Resp: resp}); err != nil {
		return w.CurrentTick(), err
	}
	select {
	case r := <-resp:
		return r.Tick, r.Err
	case <-ctx.Done():
		return w.CurrentTick(), ctx.Err()
	case <-w.stop:
		return w.CurrentTick(), ErrStopped
	}
}

// DecodeCommand converts a wire COMMAND into a Command. The returned string
// is the protocol error code when err is non-nil.
func DecodeCommand(msg protocol.CommandMsg) (Command, string, error) {
	needAgent := func() error {
		if strings.TrimSpace(msg.AgentID) == "" {
			return fmt.Errorf("%w: %s requires agent_id", ErrBadRequest, msg.Cmd)
		}
		return nil
	}
	point := func() (*model.Point, error) {
		if msg.X == nil && msg.Y == nil {
			return nil, nil
		}
		if msg.X == nil || msg.Y == nil {
			return nil, fmt.Errorf("%w: %s needs both x and y", ErrBadRequest, msg.Cmd)
		}
		return &model.Point{X: *msg.X, Y: *msg.Y}, nil
	}

	var cmd Command
	switch msg.Cmd {
	case protocol.CmdHaltFlight:
		cmd = HaltFlight{AgentID: msg.AgentID}
	case protocol.CmdResumeFlight:
		cmd = ResumeFlight{AgentID: msg.AgentID, Reason: model.HaltReason(strings.ToUpper(msg.Reason))}
	case protocol.CmdDispatch:
		p, err := point()
		if err != nil {
			return nil, protocol.ErrBadRequest, err
		}
		c := Dispatch{AgentID: msg.AgentID, Destination: p}
		if msg.Altitude != nil {
			c.Altitude = *msg.Altitude
		}
		cmd = c
	case protocol.CmdReroute:
		p, err := point()
		if err != nil {
			return nil, protocol.ErrBadRequest, err
		}
		if p == nil {
			return nil, protocol.ErrBadRequest, fmt.Errorf("%w: REROUTE requires x and y", ErrBadRequest)
		}
		cmd = Reroute{AgentID: msg.AgentID, Destination: *p}
	case protocol.CmdLandFlight:
		cmd = LandFlight{AgentID: msg.AgentID, ParkingID: msg.ParkingID}
	case protocol.CmdSetHazard:
		if msg.Active == nil {
			return nil, protocol.ErrBadRequest, fmt.Errorf("%w: SET_HAZARD requires active", ErrBadRequest)
		}
		return SetHazard{Kind: model.HazardKind(strings.ToUpper(msg.Hazard)), Active: *msg.Active}, "", nil
	case protocol.CmdSetAltitude:
		if msg.Altitude == nil {
			return nil, protocol.ErrBadRequest, fmt.Errorf("%w: SET_ALTITUDE requires altitude", ErrBadRequest)
		}
		cmd = SetAltitude{AgentID: msg.AgentID, Altitude: *msg.Altitude}
	case protocol.CmdDeactivateAgent:
		active := false
		if msg.Active != nil {
			active = *msg.Active
		}
		cmd = DeactivateAgent{AgentID: msg.AgentID, Active: active}
	default:
		return nil, protocol.ErrUnknownCommand, fmt.Errorf("unknown command %q", msg.Cmd)
	}
	if err := needAgent(); err != nil {
		return nil, protocol.ErrBadRequest, err
	}
	return cmd, "", nil
}

// EncodeCommand is the inverse of DecodeCommand. The tick log records this
// form so replays re-apply exactly what the live loop applied.
func EncodeCommand(cmd Command) protocol.CommandMsg {
	msg := protocol.CommandMsg{
		Type:            protocol.TypeCommand,
		ProtocolVersion: protocol.Version,
		Cmd:             cmd.Name(),
		AgentID:         cmd.Target(),
	}
	switch c := cmd.(type) {
	case ResumeFlight:
		msg.Reason = string(c.Reason)
	case Dispatch:
		if c.Destination != nil {
			x, y := c.Destination.X, c.Destination.Y
			msg.X, msg.Y = &x, &y
		}
		if c.Altitude != 0 {
			alt := c.Altitude
			msg.Altitude = &alt
		}
	case Reroute:
		x, y := c.Destination.X, c.Destination.Y
		msg.X, msg.Y = &x, &y
	case LandFlight:
		msg.ParkingID = c.ParkingID
	case SetHazard:
		active := c.Active
		msg.Hazard, msg.Active = string(c.Kind), &active
	case SetAltitude:
		alt := c.Altitude
		msg.Altitude = &alt
	case DeactivateAgent:
		active := c.Active
		msg.Active = &active
	}
	return msg
}

// CodeFor maps a command error to its protocol code.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownAgent):
		return protocol.ErrUnknownAgent
	case errors.Is(err, parking.ErrUnknownSpace):
		return protocol.ErrUnknownSpace
	case errors.Is(err, hazard.ErrUnknownHazard):
		return protocol.ErrUnknownHazard
	case errors.Is(err, ErrInvalidState):
		return protocol.ErrInvalidState
	case errors.Is(err, ErrNoParking):
		return protocol.ErrNoParking
	case errors.Is(err, ErrInboxFull):
		return protocol.ErrInboxFull
	case errors.Is(err, ErrBadRequest):
		return protocol.ErrBadRequest
	}
	return protocol.ErrInternal
}

// applyCommand runs one command on the loop goroutine and returns the status
// transitions it caused.
func (w *World) applyCommand(cmd Command) ([]flight.Transition, error) {
	switch c := cmd.(type) {
	case HaltFlight:
		e, err := w.agent(c.AgentID)
		if err != nil {
			return nil, err
		}
		tr, ok := flight.Ground(&e.flight, model.HaltOperator)
		if !ok {
			return nil, w.stateErr(e, "halt")
		}
		return []flight.Transition{tr}, nil

	case ResumeFlight:
		e, err := w.agent(c.AgentID)
		if err != nil {
			return nil, err
		}
		reason := c.Reason
		if reason == model.HaltNone {
			reason = model.HaltOperator
		}
		tr, ok := flight.Resume(&e.flight, reason)
		if !ok {
			return nil, fmt.Errorf("%w: %s is %s (%s), cannot resume for %s",
				ErrInvalidState, e.agent.ID, e.flight.Status, e.flight.HaltReason, reason)
		}
		return []flight.Transition{tr}, nil

	case Dispatch:
		e, err := w.agent(c.AgentID)
		if err != nil {
			return nil, err
		}
		if c.Destination != nil && !w.inCity(*c.Destination) {
			return nil, fmt.Errorf("%w: destination outside city", ErrBadRequest)
		}
		alt := c.Altitude
		if alt <= 0 {
			alt = e.cruiseAlt
		}
		alt = max(alt, w.guard.MinimumSafeAltitude(e.agent.X, e.agent.Y))
		tr, vacated, ok := flight.Dispatch(&e.agent, &e.flight, &e.state, c.Destination, alt)
		if !ok {
			return nil, w.stateErr(e, "dispatch")
		}
		if vacated != "" {
			if err := w.lots.Vacate(vacated); err != nil {
				return []flight.Transition{tr}, err
			}
		}
		e.agent.Speed = w.cfg.BaseSpeed
		return []flight.Transition{tr}, nil

	case Reroute:
		e, err := w.agent(c.AgentID)
		if err != nil {
			return nil, err
		}
		if !w.inCity(c.Destination) {
			return nil, fmt.Errorf("%w: destination outside city", ErrBadRequest)
		}
		switch e.flight.Status {
		case model.StatusCruising, model.StatusEmergencyHalt:
		default:
			return nil, w.stateErr(e, "reroute")
		}
		if tr, ok := flight.Reroute(&e.agent, &e.flight, c.Destination); ok {
			return []flight.Transition{tr}, nil
		}
		return nil, nil

	case LandFlight:
		e, err := w.agent(c.AgentID)
		if err != nil {
			return nil, err
		}
		if e.flight.Status != model.StatusCruising {
			return nil, w.stateErr(e, "land")
		}
		space, err := w.pickSpace(e, c.ParkingID)
		if err != nil {
			return nil, err
		}
		if err := w.lots.Occupy(space.ID); err != nil {
			return nil, err
		}
		tr, _ := flight.BeginLanding(&e.flight, &e.state, space)
		return []flight.Transition{tr}, nil

	case SetHazard:
		return w.hazards.Set(c.Kind, c.Active, w.entries())

	case SetAltitude:
		e, err := w.agent(c.AgentID)
		if err != nil {
			return nil, err
		}
		switch e.flight.Status {
		case model.StatusCruising, model.StatusEmergencyHalt:
		default:
			return nil, w.stateErr(e, "change altitude")
		}
		p := model.Vec3{X: e.agent.X, Y: e.agent.Y, Alt: c.Altitude}
		if c.Altitude <= 0 || !w.guard.IsSafePosition(p) {
			return nil, fmt.Errorf("%w: altitude %.1f unsafe at (%.1f,%.1f), minimum %.1f",
				ErrBadRequest, c.Altitude, p.X, p.Y, w.guard.MinimumSafeAltitude(p.X, p.Y))
		}
		e.agent.Altitude = c.Altitude
		e.cruiseAlt = c.Altitude
		return nil, nil

	case DeactivateAgent:
		e, err := w.agent(c.AgentID)
		if err != nil {
			return nil, err
		}
		e.agent.Active = c.Active
		if !c.Active {
			e.agent.Speed = 0
			w.tracker.Forget(e.agent.ID)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("%w: unhandled command %T", ErrBadRequest, cmd)
}

func (w *World) pickSpace(e *flightEntry, id string) (model.ParkingSpace, error) {
	if id == "" {
		space, ok := w.lots.NearestAvailable(e.agent.X, e.agent.Y)
		if !ok {
			return model.ParkingSpace{}, ErrNoParking
		}
		return space, nil
	}
	space, ok := w.lots.Get(id)
	if !ok {
		return model.ParkingSpace{}, fmt.Errorf("%w: %s", parking.ErrUnknownSpace, id)
	}
	if space.Occupied {
		return model.ParkingSpace{}, fmt.Errorf("%w: %s is occupied", ErrNoParking, id)
	}
	return space, nil
}

func (w *World) stateErr(e *flightEntry, verb string) error {
	return fmt.Errorf("%w: cannot %s %s while %s", ErrInvalidState, verb, e.agent.ID, e.flight.Status)
}

func (w *World) inCity(p model.Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= float64(w.city.Width) && p.Y <= float64(w.city.Height)
}
