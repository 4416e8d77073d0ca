// Package log writes the per-city JSONL streams: tick log, movement audit,
// accident reports and advisories. Files rotate hourly and are zstd-compressed.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"skyway.city/internal/sim/world"
	"skyway.city/internal/sim/world/kernel/model"
)

// Stream directories under a city's data dir. Each directory holds
// <prefix>-YYYY-MM-DD-HH.jsonl.zst files with the same prefix.
const (
	StreamTicks      = "ticks"
	StreamAudit      = "audit"
	StreamAccidents  = "accidents"
	StreamAdvisories = "advisories"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time
	// onClose receives each finished file after rotation or Close.
	onClose func(path string)

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

// WithClock replaces the rotation clock.
func (w *JSONLZstdWriter) WithClock(now func() time.Time) *JSONLZstdWriter {
	if now != nil {
		w.now = now
	}
	return w
}

// WithOnClose registers fn to be called with the path of every file the
// writer finishes.
func (w *JSONLZstdWriter) WithOnClose(fn func(path string)) *JSONLZstdWriter {
	w.onClose = fn
	return w
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	path := ""
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		path = w.f.Name()
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	if path != "" && w.onClose != nil {
		w.onClose(path)
	}
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// TickLogger writes one entry per tick; cmd/replay verifies digests from it.
type TickLogger struct{ w *JSONLZstdWriter }

func NewTickLogger(cityDir string) *TickLogger {
	return &TickLogger{w: NewJSONLZstdWriter(filepath.Join(cityDir, StreamTicks), StreamTicks)}
}

func (l *TickLogger) WriteTick(v world.TickLogEntry) error { return l.w.Write(v) }
func (l *TickLogger) Close() error                         { return l.w.Close() }

// AuditLogger writes the movement log.
type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(cityDir string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(filepath.Join(cityDir, StreamAudit), StreamAudit)}
}

func (l *AuditLogger) WriteAudit(v world.AuditEntry) error { return l.w.Write(v) }
func (l *AuditLogger) Close() error                        { return l.w.Close() }

// AccidentLog is the durable accident report stream.
type AccidentLog struct{ w *JSONLZstdWriter }

func NewAccidentLog(cityDir string) *AccidentLog {
	return &AccidentLog{w: NewJSONLZstdWriter(filepath.Join(cityDir, StreamAccidents), StreamAccidents)}
}

func (l *AccidentLog) ReportAccident(rec model.AccidentRecord) error { return l.w.Write(rec) }
func (l *AccidentLog) Close() error                                  { return l.w.Close() }

// AdvisoryLog records every advisory sent to operators.
type AdvisoryLog struct{ w *JSONLZstdWriter }

func NewAdvisoryLog(cityDir string) *AdvisoryLog {
	return &AdvisoryLog{w: NewJSONLZstdWriter(filepath.Join(cityDir, StreamAdvisories), StreamAdvisories)}
}

func (l *AdvisoryLog) Notify(a world.Advisory) error { return l.w.Write(a) }
func (l *AdvisoryLog) Close() error                  { return l.w.Close() }

// Streams bundles the four city streams.
type Streams struct {
	Ticks      *TickLogger
	Audit      *AuditLogger
	Accidents  *AccidentLog
	Advisories *AdvisoryLog
}

// OpenStreams creates the loggers under cityDir. onClose may be nil.
func OpenStreams(cityDir string, onClose func(path string)) *Streams {
	s := &Streams{
		Ticks:      NewTickLogger(cityDir),
		Audit:      NewAuditLogger(cityDir),
		Accidents:  NewAccidentLog(cityDir),
		Advisories: NewAdvisoryLog(cityDir),
	}
	s.Ticks.w.WithOnClose(onClose)
	s.Audit.w.WithOnClose(onClose)
	s.Accidents.w.WithOnClose(onClose)
	s.Advisories.w.WithOnClose(onClose)
	return s
}

func (s *Streams) Close() error {
	return errors.Join(s.Ticks.Close(), s.Audit.Close(), s.Accidents.Close(), s.Advisories.Close())
}

// ListFiles returns the stream's files in chronological order.
func ListFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".jsonl.zst") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// ReadJSONL decodes each line of a compressed stream file into a fresh T and
// passes it to fn. Returning an error from fn stops the scan.
func ReadJSONL[T any](path string, fn func(T) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var v T
		if err := json.Unmarshal(sc.Bytes(), &v); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return sc.Err()
}
