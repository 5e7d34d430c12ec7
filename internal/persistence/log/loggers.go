package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"bistro.ai/internal/sim/order"
	"bistro.ai/internal/sim/present"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst under baseDir.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

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
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
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
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

const (
	EntryPresent = "present"
	EntryTicket  = "ticket"
)

// Entry is one line of the event log.
type Entry struct {
	Kind   string         `json:"kind"`
	Event  *present.Event `json:"event,omitempty"`
	Ticket *order.Record  `json:"ticket,omitempty"`
}

// EventLogger writes presentation events and ticket transitions to one
// compressed stream. It is both a present.Sink and an order.Journal.
type EventLogger struct {
	w      *JSONLZstdWriter
	errs   atomic.Uint64
	writes atomic.Uint64
}

func NewEventLogger(dataDir string) *EventLogger {
	return &EventLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "events"), "events")}
}

func (l *EventLogger) Emit(ev present.Event) {
	if err := l.w.Write(Entry{Kind: EntryPresent, Event: &ev}); err != nil {
		l.errs.Add(1)
		return
	}
	l.writes.Add(1)
}

func (l *EventLogger) Record(r order.Record) error {
	if err := l.w.Write(Entry{Kind: EntryTicket, Ticket: &r}); err != nil {
		l.errs.Add(1)
		return fmt.Errorf("event log: %w", err)
	}
	l.writes.Add(1)
	return nil
}

// Errors is the number of entries that failed to write. Presentation events
// cannot return errors, so failures are only counted.
func (l *EventLogger) Errors() uint64 { return l.errs.Load() }

func (l *EventLogger) Writes() uint64 { return l.writes.Load() }

func (l *EventLogger) Close() error { return l.w.Close() }

// Files lists the event log files under dataDir in chronological order.
func Files(dataDir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dataDir, "events", "events-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadFile decodes every entry of one log file, in order.
func ReadFile(path string, fn func(Entry) error) error {
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
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}
