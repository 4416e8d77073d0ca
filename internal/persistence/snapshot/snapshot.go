package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"skyway.city/internal/sim/world/kernel/model"
)

const Version = 1

type Header struct {
	Version  int    `json:"version"`
	WorldID  string `json:"world_id"`
	CityCode string `json:"city_code"`
	Tick     uint64 `json:"tick"`
}

// SnapshotV1 is everything needed to resume a city session at Tick.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed               int64   `json:"seed"`
	TickRate           int     `json:"tick_rate_hz"`
	SnapshotEveryTicks int     `json:"snapshot_every_ticks,omitempty"`
	SessionTicks       int     `json:"session_ticks,omitempty"`
	BaseSpeed          float64 `json:"base_speed"`

	ObstacleDigest string `json:"obstacle_digest"`
	ParkingDigest  string `json:"parking_digest"`

	Counters CountersV1 `json:"counters"`

	Flights   []FlightV1             `json:"flights"`
	Parking   []model.ParkingSpace   `json:"parking"`
	Hazards   model.HazardSet        `json:"hazards"`
	Severity  int                    `json:"weather_severity"`
	Accidents []model.AccidentRecord `json:"accidents,omitempty"`
	Tracked   []TrackedV1            `json:"tracked,omitempty"`
}

type CountersV1 struct {
	NextAgent   uint64 `json:"next_agent"`
	AccidentSeq uint64 `json:"accident_seq"`
}

type FlightV1 struct {
	Agent          model.Agent       `json:"agent"`
	Flight         model.Flight      `json:"flight"`
	State          model.FlightState `json:"state"`
	CruiseAltitude float64           `json:"cruise_altitude"`
}

type TrackedV1 struct {
	AgentID  string  `json:"agent_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Altitude float64 `json:"altitude"`
	Tick     uint64  `json:"tick"`
}

// WriteSnapshot writes a JSON header line followed by the gob body, both
// zstd-compressed.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func encode(w io.Writer, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	// The header line is for tools that do not speak gob; the body repeats it.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}
