package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"skyway.city/internal/persistence/snapshot"
	"skyway.city/internal/sim/catalogs"
	"skyway.city/internal/sim/tuning"
	"skyway.city/internal/sim/world"
	"skyway.city/internal/sim/world/kernel/model"
)

// SQLiteIndex is a queryable secondary copy of the JSONL streams. Writes are
// queued and applied by one goroutine in batched transactions; when the queue
// is full the write is dropped and counted.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	drops     [reqKindCount]atomic.Uint64
	writeErrs atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota
	reqAudit
	reqAccident
	reqAdvisory
	reqSnapshot
	reqSnapshotState
	reqSession
	reqKindCount
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	audit    world.AuditEntry
	accident model.AccidentRecord
	advisory world.Advisory
	snapshot snapshotRow
	state    snapshot.SnapshotV1
	session  sessionRow
}

type snapshotRow struct {
	Tick             uint64
	Path             string
	Seed             int64
	Flights          int
	ParkingTotal     int
	ParkingAvailable int
	Accidents        int
	Severity         int
	HazardStatus     string
}

type sessionRow struct {
	Session    int
	EndTick    uint64
	Path       string
	Seed       int64
	RecordedAt string
}

// Stats reports queue pressure. Drop counters only grow.
type Stats struct {
	QueueDepth    int `json:"queue_depth"`
	QueueCapacity int `json:"queue_capacity"`

	DropTickTotal          uint64 `json:"drop_tick_total"`
	DropAuditTotal         uint64 `json:"drop_audit_total"`
	DropAccidentTotal      uint64 `json:"drop_accident_total"`
	DropAdvisoryTotal      uint64 `json:"drop_advisory_total"`
	DropSnapshotTotal      uint64 `json:"drop_snapshot_total"`
	DropSnapshotStateTotal uint64 `json:"drop_snapshot_state_total"`
	DropSessionTotal       uint64 `json:"drop_session_total"`
	WriteErrorTotal        uint64 `json:"write_error_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Sized for accident storms: every stuck pair reports each tick.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			commands INTEGER NOT NULL,
			transitions INTEGER NOT NULL,
			encounters INTEGER NOT NULL,
			accidents INTEGER NOT NULL,
			severity INTEGER NOT NULL,
			safe_to_fly INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS commands (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			name TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			actor TEXT NOT NULL,
			ok INTEGER NOT NULL,
			code TEXT,
			message TEXT,
			wire_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_agent_tick ON commands(agent_id, tick);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			from_status TEXT,
			to_status TEXT,
			reason TEXT,
			x REAL NOT NULL,
			y REAL NOT NULL,
			altitude REAL NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_agent_tick ON audits(agent_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_action_tick ON audits(action, tick);`,
		`CREATE TABLE IF NOT EXISTS accidents (
			id TEXT PRIMARY KEY,
			tick INTEGER NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			flight_a TEXT NOT NULL,
			flight_b TEXT NOT NULL,
			description TEXT NOT NULL,
			occurred_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_accidents_tick ON accidents(tick);`,
		`CREATE TABLE IF NOT EXISTS advisories (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			level TEXT NOT NULL,
			flights TEXT NOT NULL,
			distance REAL NOT NULL,
			at_risk INTEGER NOT NULL,
			message TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			flights INTEGER NOT NULL,
			parking_total INTEGER NOT NULL,
			parking_available INTEGER NOT NULL,
			accidents INTEGER NOT NULL,
			severity INTEGER NOT NULL,
			hazard_status TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshot_flights (
			tick INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			callsign TEXT NOT NULL,
			status TEXT NOT NULL,
			halt_reason TEXT,
			x REAL NOT NULL,
			y REAL NOT NULL,
			altitude REAL NOT NULL,
			parking_id TEXT,
			active INTEGER NOT NULL,
			PRIMARY KEY (tick, agent_id)
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session INTEGER PRIMARY KEY,
			end_tick INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			snapshot_path TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_end_tick ON sessions(end_tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:             len(s.ch),
		QueueCapacity:          cap(s.ch),
		DropTickTotal:          s.drops[reqTick].Load(),
		DropAuditTotal:         s.drops[reqAudit].Load(),
		DropAccidentTotal:      s.drops[reqAccident].Load(),
		DropAdvisoryTotal:      s.drops[reqAdvisory].Load(),
		DropSnapshotTotal:      s.drops[reqSnapshot].Load(),
		DropSnapshotStateTotal: s.drops[reqSnapshotState].Load(),
		DropSessionTotal:       s.drops[reqSession].Load(),
		WriteErrorTotal:        s.writeErrs.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// JSONL logs remain the source of truth.
		s.drops[r.kind].Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	s.enqueue(req{kind: reqTick, tick: entry})
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	s.enqueue(req{kind: reqAudit, audit: entry})
	return nil
}

func (s *SQLiteIndex) ReportAccident(rec model.AccidentRecord) error {
	s.enqueue(req{kind: reqAccident, accident: rec})
	return nil
}

func (s *SQLiteIndex) Notify(a world.Advisory) error {
	s.enqueue(req{kind: reqAdvisory, advisory: a})
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	avail := 0
	for _, p := range snap.Parking {
		if !p.Occupied {
			avail++
		}
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{
		Tick:             snap.Header.Tick,
		Path:             path,
		Seed:             snap.Seed,
		Flights:          len(snap.Flights),
		ParkingTotal:     len(snap.Parking),
		ParkingAvailable: avail,
		Accidents:        len(snap.Accidents),
		Severity:         snap.Severity,
		HazardStatus:     snap.Hazards.Status,
	}})
}

// RecordSnapshotState stores per-flight rows for the snapshot tick.
func (s *SQLiteIndex) RecordSnapshotState(snap snapshot.SnapshotV1) {
	s.enqueue(req{kind: reqSnapshotState, state: snap})
}

func (s *SQLiteIndex) RecordSession(session int, endTick uint64, archivedSnapshotPath string, seed int64) {
	if session <= 0 || strings.TrimSpace(archivedSnapshotPath) == "" {
		return
	}
	s.enqueue(req{kind: reqSession, session: sessionRow{
		Session:    session,
		EndTick:    endTick,
		Path:       archivedSnapshotPath,
		Seed:       seed,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

type catalogRow struct {
	name   string
	digest string
	data   []byte
}

// catalogRows is shared by the sqlite and remote backends: one row per city
// file plus the applied tuning.
func catalogRows(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) []catalogRow {
	var rows []catalogRow
	if cats != nil {
		for _, code := range cats.Codes {
			c := cats.Cities[code]
			b, err := json.Marshal(c)
			if err != nil {
				continue
			}
			rows = append(rows, catalogRow{name: "city:" + code, digest: c.Digest, data: b})
		}
	}
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "tuning.yaml")); err == nil {
			sum := sha256.Sum256(b)
			rows = append(rows, catalogRow{name: "tuning_yaml", digest: hex.EncodeToString(sum[:]), data: mustJSONString(string(b))})
		}
	}
	// The values actually applied, after defaults.
	if b, err := json.Marshal(tune); err == nil {
		sum := sha256.Sum256(b)
		rows = append(rows, catalogRow{name: "tuning", digest: hex.EncodeToString(sum[:]), data: b})
	}
	return rows
}

func mustJSONString(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range catalogRows(configDir, cats, tune) {
		if r.name == "" || r.digest == "" || len(r.data) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.data), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	prep := func(q string) *sql.Stmt {
		st, err := s.db.Prepare(q)
		if err != nil {
			return nil
		}
		return st
	}
	insertTick := prep(`INSERT OR REPLACE INTO ticks(tick,digest,commands,transitions,encounters,accidents,severity,safe_to_fly,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertCommand := prep(`INSERT OR REPLACE INTO commands(tick,seq,name,agent_id,actor,ok,code,message,wire_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertAudit := prep(`INSERT OR REPLACE INTO audits(tick,seq,actor,action,agent_id,from_status,to_status,reason,x,y,altitude,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertAccident := prep(`INSERT OR REPLACE INTO accidents(id,tick,x,y,type,severity,flight_a,flight_b,description,occurred_at) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertAdvisory := prep(`INSERT OR REPLACE INTO advisories(tick,seq,level,flights,distance,at_risk,message) VALUES(?,?,?,?,?,?,?)`)
	insertSnapshot := prep(`INSERT OR REPLACE INTO snapshots(tick,path,seed,flights,parking_total,parking_available,accidents,severity,hazard_status) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertSnapFlight := prep(`INSERT OR REPLACE INTO snapshot_flights(tick,agent_id,callsign,status,halt_reason,x,y,altitude,parking_id,active) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertSession := prep(`INSERT OR REPLACE INTO sessions(session,end_tick,seed,snapshot_path,recorded_at) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertCommand, insertAudit, insertAccident, insertAdvisory, insertSnapshot, insertSnapFlight, insertSession} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick, lastAdvisoryTick uint64
		auditSeq, advisorySeq           int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrs.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	// exec runs one statement in the open tx; a failure discards the batch.
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			s.writeErrs.Add(1)
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			s.writeErrs.Add(1)
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			raw, _ := json.Marshal(t)
			if !exec(insertTick, int64(t.Tick), t.Digest, len(t.Commands), t.Transitions, t.Encounters,
				len(t.Accidents), t.Weather.Severity, boolInt(t.Weather.SafeToFly), string(raw)) {
				continue
			}
			for i, c := range t.Commands {
				wire, _ := json.Marshal(c.Wire)
				if !exec(insertCommand, int64(t.Tick), i, c.Name, c.AgentID, c.Actor, boolInt(c.OK), c.Code, c.Message, string(wire)) {
					break
				}
			}

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			exec(insertAudit, int64(a.Tick), seq, a.Actor, a.Action, a.AgentID, a.From, a.To, a.Reason,
				a.Pos.X, a.Pos.Y, a.Pos.Alt, string(raw))

		case reqAccident:
			a := r.accident
			exec(insertAccident, a.ID, int64(a.Tick), a.X, a.Y, a.Type, a.Severity, a.Flights[0], a.Flights[1],
				a.Description, a.Time.UTC().Format(time.RFC3339Nano))

		case reqAdvisory:
			a := r.advisory
			if a.Tick != lastAdvisoryTick {
				lastAdvisoryTick = a.Tick
				advisorySeq = 0
			}
			seq := advisorySeq
			advisorySeq++
			exec(insertAdvisory, int64(a.Tick), seq, a.Level, strings.Join(a.Flights, ","), a.Distance, boolInt(a.AtRisk), a.Message)

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Seed, sn.Flights, sn.ParkingTotal, sn.ParkingAvailable,
				sn.Accidents, sn.Severity, sn.HazardStatus)

		case reqSnapshotState:
			tick := int64(r.state.Header.Tick)
			for _, f := range r.state.Flights {
				if !exec(insertSnapFlight, tick, f.Agent.ID, f.Agent.Callsign, string(f.Flight.Status), string(f.Flight.HaltReason),
					f.Agent.X, f.Agent.Y, f.Agent.Altitude, f.State.ParkingID, boolInt(f.Agent.Active)) {
					break
				}
			}

		case reqSession:
			se := r.session
			exec(insertSession, se.Session, int64(se.EndTick), se.Seed, se.Path, se.RecordedAt)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
