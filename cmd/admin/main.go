package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"skyway.city/internal/persistence/archive"
	persistlog "skyway.city/internal/persistence/log"
	"skyway.city/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "trail":
			trailCmd(os.Args[2:])
			return
		case "sessions":
			sessionsCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func cityDirFor(dataDir, cityID string) string {
	return filepath.Join(dataDir, "cities", strings.ToLower(strings.TrimSpace(cityID)))
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	cityID := fs.String("city", "", "city id (optional; lists its data dirs)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "cities")
	if *cityID != "" {
		base = cityDirFor(*dataDir, *cityID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

func sessionsCmd(args []string) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	cityID := fs.String("city", "", "city id")
	_ = fs.Parse(args)

	if strings.TrimSpace(*cityID) == "" {
		fmt.Fprintln(os.Stderr, "missing -city")
		os.Exit(2)
	}
	metas, err := archive.ListSessions(cityDirFor(*dataDir, *cityID))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list sessions:", err)
		os.Exit(1)
	}
	if len(metas) == 0 {
		fmt.Println("no archived sessions")
		return
	}
	for _, m := range metas {
		printJSON(m)
	}
}

// trailCmd prints the movement audit inside a ground box, newest first, the
// way an investigator walks back from an incident.
func trailCmd(args []string) {
	fs := flag.NewFlagSet("trail", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	cityID := fs.String("city", "", "city id")
	box := fs.String("box", "", "ground box filter: x1,y1:x2,y2 (optional)")
	agentID := fs.String("agent", "", "agent id filter (optional)")
	action := fs.String("action", "", "audit action filter (optional)")
	sinceTick := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "last tick (inclusive, optional)")
	limit := fs.Int("limit", 200, "result limit")
	_ = fs.Parse(args)

	if strings.TrimSpace(*cityID) == "" {
		fmt.Fprintln(os.Stderr, "missing -city")
		os.Exit(2)
	}
	f := trailFilter{
		AgentID: strings.TrimSpace(*agentID),
		Action:  strings.ToUpper(strings.TrimSpace(*action)),
		Since:   *sinceTick,
		To:      *toTick,
	}
	if strings.TrimSpace(*box) != "" {
		min, max, err := parseBox(*box)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -box:", err)
			os.Exit(2)
		}
		f.Box, f.Min, f.Max = true, min, max
	}

	recs, err := readTrail(cityDirFor(*dataDir, *cityID), f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Println("no matching audit entries")
		return
	}
	if *limit > 0 && len(recs) > *limit {
		recs = recs[:*limit]
	}
	for _, r := range recs {
		printJSON(r.Entry)
	}
}

type trailFilter struct {
	AgentID string
	Action  string
	Since   uint64
	// To of zero means no upper bound.
	To       uint64
	Box      bool
	Min, Max [2]float64
}

func (f trailFilter) match(e world.AuditEntry) bool {
	if e.Tick < f.Since || (f.To != 0 && e.Tick > f.To) {
		return false
	}
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Box && !withinBox(e.Pos.X, e.Pos.Y, f.Min, f.Max) {
		return false
	}
	return true
}

type auditRec struct {
	Seq   uint64
	Entry world.AuditEntry
}

var errPastRange = errors.New("past range")

func readTrail(cityDir string, f trailFilter) ([]auditRec, error) {
	files, err := persistlog.ListFiles(filepath.Join(cityDir, persistlog.StreamAudit), persistlog.StreamAudit)
	if err != nil {
		return nil, err
	}
	out := make([]auditRec, 0, 256)
	var seq uint64
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(e world.AuditEntry) error {
			seq++
			if f.To != 0 && e.Tick > f.To {
				return errPastRange
			}
			if f.match(e) {
				out = append(out, auditRec{Seq: seq, Entry: e})
			}
			return nil
		})
		if errors.Is(err, errPastRange) {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	// Newest first; entries of one tick keep reverse read order.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Entry.Tick != out[j].Entry.Tick {
			return out[i].Entry.Tick > out[j].Entry.Tick
		}
		return out[i].Seq > out[j].Seq
	})
	return out, nil
}

func withinBox(x, y float64, min, max [2]float64) bool {
	return x >= min[0] && x <= max[0] && y >= min[1] && y <= max[1]
}

func parseBox(s string) (min, max [2]float64, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1:x2,y2")
	}
	a, err := parseVec2(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec2(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 2; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec2(s string) ([2]float64, error) {
	var v [2]float64
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return v, fmt.Errorf("expected x,y")
	}
	for i := 0; i < 2; i++ {
		n, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
