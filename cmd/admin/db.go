package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const dbUsage = "usage: admin db [-data ./data] [-city CITY|-db PATH] [-tick T] [-agent ID] snapshots|flights|accidents|audits|commands|ticks|sessions"

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	cityID := fs.String("city", "", "city id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	tick := fs.Uint64("tick", 0, "snapshot tick for flights (optional; defaults to latest)")
	limit := fs.Int("limit", 20, "result limit")
	agentID := fs.String("agent", "", "agent_id filter (audits, commands, accidents)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*cityID) == "" {
			fmt.Fprintln(os.Stderr, "missing -city or -db")
			os.Exit(2)
		}
		path = filepath.Join(cityDirFor(*dataDir, *cityID), "index", "city.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}
	if q == "flights" && *tick == 0 {
		lt, err := latestSnapshotTick(db)
		if err != nil {
			fmt.Fprintln(os.Stderr, "latest tick:", err)
			os.Exit(1)
		}
		if lt == 0 {
			fmt.Fprintln(os.Stderr, "no snapshots found")
			os.Exit(2)
		}
		*tick = lt
	}

	if err := runQuery(db, q, *tick, *limit, strings.TrimSpace(*agentID), printJSON); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, dbUsage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// runQuery hands each row of the named query to emit as a JSON-ready struct.
func runQuery(db *sql.DB, q string, tick uint64, limit int, agentID string, emit func(any)) error {
	switch q {
	case "snapshots":
		return each(db, `SELECT tick,path,seed,flights,parking_total,parking_available,accidents,severity,hazard_status FROM snapshots ORDER BY tick DESC LIMIT ?`,
			[]any{limit}, func(rows *sql.Rows) (any, error) {
				var r struct {
					Tick             int64  `json:"tick"`
					Path             string `json:"path"`
					Seed             int64  `json:"seed"`
					Flights          int    `json:"flights"`
					ParkingTotal     int    `json:"parking_total"`
					ParkingAvailable int    `json:"parking_available"`
					Accidents        int    `json:"accidents"`
					Severity         int    `json:"severity"`
					HazardStatus     string `json:"hazard_status"`
				}
				err := rows.Scan(&r.Tick, &r.Path, &r.Seed, &r.Flights, &r.ParkingTotal, &r.ParkingAvailable, &r.Accidents, &r.Severity, &r.HazardStatus)
				return r, err
			}, emit)

	case "flights":
		return each(db, `SELECT agent_id,callsign,status,halt_reason,x,y,altitude,parking_id,active FROM snapshot_flights WHERE tick=? ORDER BY agent_id`,
			[]any{tick}, func(rows *sql.Rows) (any, error) {
				var r struct {
					Tick       uint64         `json:"tick"`
					AgentID    string         `json:"agent_id"`
					Callsign   string         `json:"callsign"`
					Status     string         `json:"status"`
					HaltReason sql.NullString `json:"halt_reason"`
					X          float64        `json:"x"`
					Y          float64        `json:"y"`
					Altitude   float64        `json:"altitude"`
					ParkingID  sql.NullString `json:"parking_id"`
					Active     bool           `json:"active"`
				}
				err := rows.Scan(&r.AgentID, &r.Callsign, &r.Status, &r.HaltReason, &r.X, &r.Y, &r.Altitude, &r.ParkingID, &r.Active)
				r.Tick = tick
				return r, err
			}, emit)

	case "accidents":
		sqlText := `SELECT id,tick,x,y,type,severity,flight_a,flight_b,description,occurred_at FROM accidents ORDER BY tick DESC LIMIT ?`
		args := []any{limit}
		if agentID != "" {
			sqlText = `SELECT id,tick,x,y,type,severity,flight_a,flight_b,description,occurred_at FROM accidents WHERE flight_a=? OR flight_b=? ORDER BY tick DESC LIMIT ?`
			args = []any{agentID, agentID, limit}
		}
		return each(db, sqlText, args, func(rows *sql.Rows) (any, error) {
			var r struct {
				ID          string  `json:"id"`
				Tick        int64   `json:"tick"`
				X           float64 `json:"x"`
				Y           float64 `json:"y"`
				Type        string  `json:"type"`
				Severity    string  `json:"severity"`
				FlightA     string  `json:"flight_a"`
				FlightB     string  `json:"flight_b"`
				Description string  `json:"description"`
				OccurredAt  string  `json:"occurred_at"`
			}
			err := rows.Scan(&r.ID, &r.Tick, &r.X, &r.Y, &r.Type, &r.Severity, &r.FlightA, &r.FlightB, &r.Description, &r.OccurredAt)
			return r, err
		}, emit)

	case "audits":
		sqlText := `SELECT tick,actor,action,agent_id,from_status,to_status,reason,x,y,altitude FROM audits ORDER BY tick DESC, seq DESC LIMIT ?`
		args := []any{limit}
		if agentID != "" {
			sqlText = `SELECT tick,actor,action,agent_id,from_status,to_status,reason,x,y,altitude FROM audits WHERE agent_id=? ORDER BY tick DESC, seq DESC LIMIT ?`
			args = []any{agentID, limit}
		}
		return each(db, sqlText, args, func(rows *sql.Rows) (any, error) {
			var r struct {
				Tick     int64          `json:"tick"`
				Actor    string         `json:"actor"`
				Action   string         `json:"action"`
				AgentID  string         `json:"agent_id"`
				From     sql.NullString `json:"from"`
				To       sql.NullString `json:"to"`
				Reason   sql.NullString `json:"reason"`
				X        float64        `json:"x"`
				Y        float64        `json:"y"`
				Altitude float64        `json:"altitude"`
			}
			err := rows.Scan(&r.Tick, &r.Actor, &r.Action, &r.AgentID, &r.From, &r.To, &r.Reason, &r.X, &r.Y, &r.Altitude)
			return r, err
		}, emit)

	case "commands":
		sqlText := `SELECT tick,name,agent_id,actor,ok,code,message FROM commands ORDER BY tick DESC, seq DESC LIMIT ?`
		args := []any{limit}
		if agentID != "" {
			sqlText = `SELECT tick,name,agent_id,actor,ok,code,message FROM commands WHERE agent_id=? ORDER BY tick DESC, seq DESC LIMIT ?`
			args = []any{agentID, limit}
		}
		return each(db, sqlText, args, func(rows *sql.Rows) (any, error) {
			var r struct {
				Tick    int64          `json:"tick"`
				Name    string         `json:"name"`
				AgentID string         `json:"agent_id"`
				Actor   string         `json:"actor"`
				OK      bool           `json:"ok"`
				Code    sql.NullString `json:"code"`
				Message sql.NullString `json:"message"`
			}
			err := rows.Scan(&r.Tick, &r.Name, &r.AgentID, &r.Actor, &r.OK, &r.Code, &r.Message)
			return r, err
		}, emit)

	case "ticks":
		return each(db, `SELECT tick,digest,commands,transitions,encounters,accidents,severity,safe_to_fly FROM ticks ORDER BY tick DESC LIMIT ?`,
			[]any{limit}, func(rows *sql.Rows) (any, error) {
				var r struct {
					Tick        int64  `json:"tick"`
					Digest      string `json:"digest"`
					Commands    int    `json:"commands"`
					Transitions int    `json:"transitions"`
					Encounters  int    `json:"encounters"`
					Accidents   int    `json:"accidents"`
					Severity    int    `json:"severity"`
					SafeToFly   bool   `json:"safe_to_fly"`
				}
				err := rows.Scan(&r.Tick, &r.Digest, &r.Commands, &r.Transitions, &r.Encounters, &r.Accidents, &r.Severity, &r.SafeToFly)
				return r, err
			}, emit)

	case "sessions":
		return each(db, `SELECT session,end_tick,seed,snapshot_path,recorded_at FROM sessions ORDER BY session DESC LIMIT ?`,
			[]any{limit}, func(rows *sql.Rows) (any, error) {
				var r struct {
					Session      int    `json:"session"`
					EndTick      int64  `json:"end_tick"`
					Seed         int64  `json:"seed"`
					SnapshotPath string `json:"snapshot_path"`
					RecordedAt   string `json:"recorded_at"`
				}
				err := rows.Scan(&r.Session, &r.EndTick, &r.Seed, &r.SnapshotPath, &r.RecordedAt)
				return r, err
			}, emit)
	}
	return fmt.Errorf("unknown query: %s", q)
}

func each(db *sql.DB, q string, args []any, scan func(*sql.Rows) (any, error), emit func(any)) error {
	rows, err := db.Query(q, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		emit(v)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows: %w", err)
	}
	return nil
}

func latestSnapshotTick(db *sql.DB) (uint64, error) {
	if db == nil {
		return 0, fmt.Errorf("nil db")
	}
	var t int64
	if err := db.QueryRow(`SELECT COALESCE(MAX(tick),0) FROM snapshots`).Scan(&t); err != nil {
		return 0, err
	}
	if t < 0 {
		return 0, nil
	}
	return uint64(t), nil
}
