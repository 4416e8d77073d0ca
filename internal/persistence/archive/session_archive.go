// Package archive keeps the closing snapshot of each operating session.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"skyway.city/internal/persistence/snapshot"
)

type SessionArchiveMeta struct {
	Session      int    `json:"session"`
	CityCode     string `json:"city_code"`
	EndTick      uint64 `json:"end_tick"`
	Seed         int64  `json:"seed"`
	Snapshot     string `json:"snapshot"`
	CreatedAt    string `json:"created_at"`
	SessionTicks int    `json:"session_ticks,omitempty"`
	Flights      int    `json:"flights"`
	Accidents    int    `json:"accidents"`
	Reason       string `json:"reason"`
}

// Archive reasons.
const (
	ReasonWindow   = "window"
	ReasonShutdown = "shutdown"
)

// SessionEnd reports whether a snapshot at tick closes a session window of
// sessionTicks ticks, and which session. Snapshots represent the last
// executed tick, so session k ends at tick k*sessionTicks-1.
func SessionEnd(tick uint64, sessionTicks int) (int, bool) {
	if sessionTicks <= 0 {
		return 0, false
	}
	n := uint64(sessionTicks)
	if (tick+1)%n != 0 {
		return 0, false
	}
	return int((tick + 1) / n), true
}

// ArchiveSessionSnapshot copies a window-closing snapshot into
// cityDir/archives/session_<NNN>/. archived is false when the snapshot does
// not close a window.
func ArchiveSessionSnapshot(cityDir, snapshotPath string, snap snapshot.SnapshotV1, sessionTicks int) (session int, archivedPath string, archived bool, err error) {
	session, ok := SessionEnd(snap.Header.Tick, sessionTicks)
	if !ok || session <= 0 {
		return 0, "", false, nil
	}
	dst, err := archive(cityDir, snapshotPath, snap, session, sessionTicks, ReasonWindow)
	if err != nil {
		return 0, "", false, err
	}
	return session, dst, true, nil
}

// ArchiveShutdown files the final snapshot of a stopped server as the next
// session after those already archived.
func ArchiveShutdown(cityDir, snapshotPath string, snap snapshot.SnapshotV1) (session int, archivedPath string, err error) {
	sessions, err := ListSessions(cityDir)
	if err != nil {
		return 0, "", err
	}
	session = 1
	if len(sessions) > 0 {
		session = sessions[len(sessions)-1].Session + 1
	}
	dst, err := archive(cityDir, snapshotPath, snap, session, 0, ReasonShutdown)
	if err != nil {
		return 0, "", err
	}
	return session, dst, nil
}

func archive(cityDir, snapshotPath string, snap snapshot.SnapshotV1, session, sessionTicks int, reason string) (string, error) {
	archiveDir := filepath.Join(cityDir, "archives", fmt.Sprintf("session_%03d", session))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", err
	}

	meta := SessionArchiveMeta{
		Session:      session,
		CityCode:     snap.Header.CityCode,
		EndTick:      snap.Header.Tick,
		Seed:         snap.Seed,
		Snapshot:     filepath.Base(dst),
		CreatedAt:    time.Now().UTC().Format(time.RFC3339Nano),
		SessionTicks: sessionTicks,
		Flights:      len(snap.Flights),
		Accidents:    len(snap.Accidents),
		Reason:       reason,
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}
	return dst, nil
}

// ListSessions reads every archived session's meta.json in session order.
// Directories without readable metadata are skipped.
func ListSessions(cityDir string) ([]SessionArchiveMeta, error) {
	root := filepath.Join(cityDir, "archives")
	ents, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []SessionArchiveMeta
	for _, e := range ents {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "session_") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(root, e.Name(), "meta.json"))
		if err != nil {
			continue
		}
		var m SessionArchiveMeta
		if json.Unmarshal(b, &m) != nil || m.Session <= 0 {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Session < out[j].Session })
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
