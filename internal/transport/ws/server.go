package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"skyway.city/internal/protocol"
	"skyway.city/internal/sim/world"
	"skyway.city/internal/sim/world/logic/rates"
)

type Options struct {
	// ReadOnly serves every client as an observer regardless of HELLO.role.
	ReadOnly bool
	// ResumeTTL bounds how long a resume token stays valid after issue or use.
	ResumeTTL time.Duration
	// MaxResume caps the number of remembered resume tokens.
	MaxResume int
	// EventRing is the number of events kept for EVENT_BATCH replay.
	EventRing int
	// SendQueue is the per-client outbound queue; STATE is dropped when full.
	SendQueue int
	// CommandTimeout bounds how long a COMMAND waits for its tick.
	CommandTimeout time.Duration
	// RateMax COMMANDs are accepted per connection every RateWindowTicks.
	// A negative RateMax disables the limit.
	RateWindowTicks uint64
	RateMax         int
}

func (o *Options) applyDefaults() {
	if o.ResumeTTL <= 0 {
		o.ResumeTTL = 10 * time.Minute
	}
	if o.MaxResume <= 0 {
		o.MaxResume = 4096
	}
	if o.EventRing <= 0 {
		o.EventRing = 4096
	}
	if o.SendQueue <= 0 {
		o.SendQueue = 32
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 5 * time.Second
	}
	if o.RateWindowTicks == 0 {
		o.RateWindowTicks = 50
	}
	if o.RateMax == 0 {
		o.RateMax = 30
	}
}

type resumeEntry struct {
	SessionID string
	Role      string
}

type client struct {
	sessionID string
	role      string
	out       chan []byte
	// rate is only touched by the connection's reader loop.
	rate rates.Window
}

type Stats struct {
	Clients       int    `json:"clients"`
	StateDropped  uint64 `json:"state_dropped_total"`
	ViewsConsumed uint64 `json:"views_consumed_total"`
	EventCursor   uint64 `json:"event_cursor"`
	CommandsTotal uint64 `json:"commands_total"`
	RejectedTotal uint64 `json:"commands_rejected_total"`
}

// Server streams STATE and EVENT to websocket clients and forwards operator
// COMMANDs into the world.
type Server struct {
	world *world.World
	log   *log.Logger
	opts  Options

	upgrader websocket.Upgrader
	views    chan *world.View
	events   *eventRing
	resume   *expirable.LRU[string, resumeEntry]

	city    protocol.CityParams
	digests protocol.Digests

	mu      sync.Mutex
	clients map[*client]struct{}

	stateDropped  atomic.Uint64
	viewsConsumed atomic.Uint64
	commands      atomic.Uint64
	rejected      atomic.Uint64
}

// NewServer registers itself as the world's view sink, so it must be called
// before the world starts running.
func NewServer(w *world.World, logger *log.Logger, opts Options) *Server {
	opts.applyDefaults()
	cfg := w.Config()
	city := w.City()
	s := &Server{
		world: w,
		log:   logger,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		views:   make(chan *world.View, 256),
		events:  newEventRing(opts.EventRing),
		resume:  expirable.NewLRU[string, resumeEntry](opts.MaxResume, nil, opts.ResumeTTL),
		clients: map[*client]struct{}{},
		city: protocol.CityParams{
			Code:          city.Code,
			Name:          city.Name,
			Width:         city.Width,
			Height:        city.Height,
			TickRateHz:    w.TickRateHz(),
			Seed:          cfg.Seed,
			Obstacles:     len(city.Obstacles),
			ParkingSpaces: len(w.ParkingSpaces()),
			BaseSpeed:     cfg.BaseSpeed,
		},
		digests: protocol.Digests{
			City:      city.Digest,
			Obstacles: city.ObstacleDigest(),
			Parking:   w.ParkingDigest(),
		},
	}
	w.SetViewSink(s.views)
	return s
}

// Run fans published views out to connected clients until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case v := <-s.views:
			s.consume(v)
		}
	}
}

func (s *Server) consume(v *world.View) {
	s.viewsConsumed.Add(1)
	for _, ev := range v.Events {
		cursor := s.events.append(ev)
		b, err := json.Marshal(protocol.EventMsg{
			Type:            protocol.TypeEvent,
			ProtocolVersion: protocol.Version,
			Cursor:          cursor,
			Event:           ev,
		})
		if err != nil {
			continue
		}
		s.broadcast(b)
	}
	b, err := json.Marshal(v.StateMsg())
	if err != nil {
		s.printf("ws: marshal state tick=%d err=%v", v.Tick, err)
		return
	}
	s.broadcast(b)
}

func (s *Server) broadcast(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.out <- b:
		default:
			s.stateDropped.Add(1)
		}
	}
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	n := len(s.clients)
	s.mu.Unlock()
	return Stats{
		Clients:       n,
		StateDropped:  s.stateDropped.Load(),
		ViewsConsumed: s.viewsConsumed.Load(),
		EventCursor:   s.events.cursor(),
		CommandsTotal: s.commands.Load(),
		RejectedTotal: s.rejected.Load(),
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := s.handshake(conn)
		if c == nil {
			return
		}
		s.mu.Lock()
		s.clients[c] = struct{}{}
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.clients, c)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeCommand:
				var cmd protocol.CommandMsg
				if err := json.Unmarshal(msg, &cmd); err != nil {
					s.send(c, protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, Code: protocol.ErrProtoBadRequest, Message: err.Error()})
					continue
				}
				s.send(c, s.handleCommand(ctx, c, cmd))
			case protocol.TypeEventBatchReq:
				var req protocol.EventBatchReqMsg
				if err := json.Unmarshal(msg, &req); err != nil {
					continue
				}
				items, next, missed := s.events.since(req.SinceCursor, req.Limit, req.Filter)
				s.send(c, protocol.EventBatchMsg{
					Type:            protocol.TypeEventBatch,
					ProtocolVersion: protocol.Version,
					ReqID:           req.ReqID,
					Events:          items,
					NextCursor:      next,
					Missed:          missed,
				})
			}
		}
	}
}

func (s *Server) handleCommand(ctx context.Context, c *client, msg protocol.CommandMsg) protocol.AckMsg {
	s.commands.Add(1)
	ack := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          msg.CommandID,
	}
	reject := func(code, message string) protocol.AckMsg {
		s.rejected.Add(1)
		ack.Code = code
		ack.Message = message
		ack.ServerTick = s.world.CurrentTick()
		return ack
	}
	if msg.ProtocolVersion != protocol.Version {
		return reject(protocol.ErrProtoVersion, "unsupported protocol_version")
	}
	if c.role != protocol.RoleOperator {
		return reject(protocol.ErrNoPermission, "operator role required")
	}
	if ok, cd := c.rate.Allow(s.world.CurrentTick(), rates.Limit{Ticks: s.opts.RateWindowTicks, Max: s.opts.RateMax}); !ok {
		return reject(protocol.ErrRateLimited, fmt.Sprintf("rate limited; retry in %d ticks", cd))
	}
	cmd, code, err := world.DecodeCommand(msg)
	if err != nil {
		return reject(code, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.CommandTimeout)
	defer cancel()
	tick, err := s.world.Execute(ctx, c.sessionID, cmd)
	if err != nil {
		code := world.CodeFor(err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, world.ErrStopped) {
			code = protocol.ErrInternal
		}
		r := reject(code, err.Error())
		r.ServerTick = tick
		return r
	}
	ack.Accepted = true
	ack.ServerTick = tick
	return ack
}

// send queues a reply; replies wait briefly for room rather than being dropped.
func (s *Server) send(c *client, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.out <- b:
	case <-time.After(time.Second):
		s.printf("ws: reply dropped session=%s", c.sessionID)
	}
}

func (s *Server) handshake(conn *websocket.Conn) *client {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}

	role := strings.ToLower(strings.TrimSpace(hello.Role))
	if role != protocol.RoleOperator || s.opts.ReadOnly {
		role = protocol.RoleObserver
	}

	token := strings.TrimSpace(hello.ResumeToken)
	resumed := false
	entry := resumeEntry{}
	if token != "" {
		if e, ok := s.resume.Get(token); ok {
			entry, resumed = e, true
			// The original role wins on resume.
			role = e.Role
		}
	}
	if !resumed {
		token = uuid.NewString()
		entry = resumeEntry{SessionID: uuid.NewString(), Role: role}
	}
	s.resume.Add(token, entry)

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       entry.SessionID,
		ResumeToken:     token,
		Resumed:         resumed,
		Role:            role,
		City:            s.city,
		Digests:         s.digests,
		EventCursor:     s.events.cursor(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	s.printf("ws: hello client=%q session=%s role=%s resumed=%v", hello.ClientName, entry.SessionID, role, resumed)
	return &client{sessionID: entry.SessionID, role: role, out: make(chan []byte, s.opts.SendQueue)}
}

func (s *Server) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
