package world

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"skyway.city/internal/persistence/snapshot"
	"skyway.city/internal/sim/catalogs"
	"skyway.city/internal/sim/weather"
	"skyway.city/internal/sim/world/feature/flight"
	"skyway.city/internal/sim/world/feature/hazard"
	"skyway.city/internal/sim/world/feature/parking"
	"skyway.city/internal/sim/world/feature/proximity"
	"skyway.city/internal/sim/world/feature/tracker"
	"skyway.city/internal/sim/world/kernel/model"
	"skyway.city/internal/sim/world/logic/ids"
	"skyway.city/internal/sim/world/terrain/guard"
)

var (
	ErrUnknownAgent = errors.New("unknown agent")
	ErrInboxFull    = errors.New("command inbox full")
	ErrInvalidState = errors.New("invalid flight state for command")
	ErrNoParking    = errors.New("no parking space available")
	ErrBadRequest   = errors.New("bad command")
	ErrStopped      = errors.New("world stopped")
)

// Deps are the collaborators a session is built from.
type Deps struct {
	// Map is sampled for parking generation when Parking is empty.
	Map parking.Pixels
	// Parking is a pool restored from cache; when set, generation is skipped.
	Parking       []model.ParkingSpace
	ParkingReport parking.Report
	// Weather may be nil (always calm).
	Weather weather.Source
	Now     func() time.Time
}

// World is a single-threaded authoritative simulation of one city.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg  WorldConfig
	city catalogs.City

	tick atomic.Uint64

	fleet []*flightEntry
	byID  map[string]*flightEntry

	nextAgent ids.Sequence

	guard    *guard.Guard
	machine  *flight.Machine
	analyzer *proximity.Analyzer
	hazards  *hazard.Coordinator
	lots     *parking.Allocator
	tracker  *tracker.Tracker

	weather       weather.Source
	lastWeather   weather.Report
	parkingReport parking.Report

	accidents  []model.AccidentRecord
	encounters []proximity.Encounter

	inbox    chan CommandEnvelope
	admin    chan snapshotRequest
	stop     chan struct{}
	stopOnce sync.Once

	// Optional sinks (may be nil). Implemented in internal/persistence/*.
	tickLogger  TickLogger
	auditLogger AuditLogger
	reporter    AccidentReporter
	notifier    Notifier

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1
	// Optional view sink; every published view is offered without blocking.
	viewSink chan<- *View

	metrics atomic.Value
	view    atomic.Pointer[View]
}

func New(cfg WorldConfig, city catalogs.City, deps Deps) (*World, error) {
	cfg.applyDefaults()
	if err := cfg.Proximity.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.ID, err)
	}
	if city.Code == "" {
		return nil, errors.New("world: city code required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	cfg.Proximity.Now = now
	cfg.Parking.CityCode = city.Code

	spaces, report := deps.Parking, deps.ParkingReport
	if len(spaces) == 0 && deps.Map != nil {
		spaces, report = parking.Generate(deps.Map, cfg.Parking)
	}

	g := guard.New(city.Obstacles, cfg.Terrain)
	w := &World{
		cfg:           cfg,
		city:          city,
		byID:          map[string]*flightEntry{},
		guard:         g,
		machine:       flight.New(g),
		analyzer:      proximity.New(cfg.Proximity),
		hazards:       hazard.New(),
		lots:          parking.NewAllocator(spaces),
		tracker:       tracker.New(),
		weather:       deps.Weather,
		lastWeather:   weather.ReportFor(0),
		parkingReport: report,
		inbox:         make(chan CommandEnvelope, cfg.InboxSize),
		admin:         make(chan snapshotRequest, 16),
		stop:          make(chan struct{}),
	}
	w.spawnFleet(cfg.FleetSize)
	w.publish(nil, 0)
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger)                  { w.auditLogger = l }
func (w *World) SetAccidentReporter(r AccidentReporter)        { w.reporter = r }
func (w *World) SetNotifier(n Notifier)                        { w.notifier = n }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }
func (w *World) SetViewSink(ch chan<- *View)                   { w.viewSink = ch }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) City() catalogs.City { return w.city }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

// ParkingReport describes how the session's pool was produced.
func (w *World) ParkingReport() parking.Report { return w.parkingReport }

// ParkingSpaces returns the pool as generated or restored. Safe only before
// Run or from the loop goroutine; other readers use View.
func (w *World) ParkingSpaces() []model.ParkingSpace { return w.lots.Spaces() }

func (w *World) ParkingDigest() string { return w.lots.Digest() }

// Submit queues a command for the next tick without blocking.
func (w *World) Submit(env CommandEnvelope) error {
	if env.Cmd == nil {
		return fmt.Errorf("%w: empty command", ErrBadRequest)
	}
	if id := env.Cmd.Target(); id != "" {
		if v := w.view.Load(); v != nil && !v.hasAgent(id) {
			return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
		}
	}
	select {
	case <-w.stop:
		return ErrStopped
	default:
	}
	select {
	case w.inbox <- env:
		return nil
	default:
		return ErrInboxFull
	}
}

func (w *World) agent(id string) (*flightEntry, error) {
	e := w.byID[id]
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	return e, nil
}
