package server

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ppiankov/ringlog/internal/store"
	"github.com/ppiankov/ringlog/internal/target"
)

// Log is the shared service object: the in-memory ring and the append target
// behind one exclusive lock. Every append and every traversal takes the lock
// for exactly one operation; no method holds it across network I/O.
type Log struct {
	mu      sync.Mutex
	ring    *store.Ring
	target  target.Target
	version int // bumped on every append, for change detection

	metrics *Metrics
	logger  *slog.Logger
	onEvict func(store.Entry) // called outside the lock
}

// NewLog creates a Log holding up to capacity entries and persisting to tgt.
// metrics and logger may be nil.
func NewLog(capacity int, tgt target.Target, metrics *Metrics, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Log{
		ring:    store.NewRing(capacity),
		target:  tgt,
		metrics: metrics,
		logger:  logger,
	}
}

// SetOnEvict registers a callback receiving each evicted entry after the
// lock is released. The callback owns the entry.
func (l *Log) SetOnEvict(fn func(store.Entry)) {
	l.onEvict = fn
}

// Append persists p to the target and stores it in the ring. p is owned by
// the log afterwards. A target failure leaves the ring untouched.
func (l *Log) Append(p []byte) error {
	l.mu.Lock()
	if _, err := l.target.Append(p); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("%w: %w: append to %s: %w", ErrTarget, ErrIO, l.target.Kind(), err)
	}
	evicted, dropped := l.ring.Append(store.NewEntry(p))
	l.version++
	l.setResident()
	l.mu.Unlock()

	if dropped {
		l.release(evicted)
	}
	return nil
}

func (l *Log) release(e store.Entry) {
	if l.metrics != nil {
		l.metrics.EntriesEvicted.Inc()
		l.metrics.BytesEvicted.Add(float64(e.Len()))
	}
	l.logger.Debug("entry evicted", "bytes", e.Len())
	if l.onEvict != nil {
		l.onEvict(e)
	}
}

// Snapshot returns the resident entries, oldest first.
func (l *Log) Snapshot() []store.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ring.Snapshot()
}

// Len returns the number of resident entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ring.Len()
}

// Cap returns the ring capacity.
func (l *Log) Cap() int { return l.ring.Cap() }

// Size returns the byte length of all resident entries.
func (l *Log) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ring.Size()
}

// Version returns a counter that increments on every append.
func (l *Log) Version() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

// Find returns a copy of the entry holding absolute byte offset and the
// offset local to it.
func (l *Log) Find(offset int64) ([]byte, int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, local, ok := store.FindByByteOffset(l.ring, offset)
	if !ok {
		return nil, 0, false
	}
	return e.Bytes(), local, true
}

// Seek resolves byte off of the cmd-th resident entry to an absolute offset.
// It fails with store.ErrInvalidArgument and changes nothing otherwise.
func (l *Log) Seek(cmd, off int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return store.ResolveCommandOffset(l.ring, cmd, off)
}

// ReadFrom returns a copy of the resident content from absolute offset pos.
func (l *Log) ReadFrom(pos int64) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return store.ReadFrom(l.ring, pos)
}

// Echo streams the full target content to w. The lock is not held: the
// target serializes its own reads against appends.
func (l *Log) Echo(w io.Writer) (int64, error) {
	return l.target.WriteTo(w)
}

// Timestamps reports whether the target accepts heartbeat lines.
func (l *Log) Timestamps() bool { return l.target.Timestamps() }

// TargetKind returns the kind of the append target.
func (l *Log) TargetKind() target.Kind { return l.target.Kind() }

// Reset drops every resident entry.
func (l *Log) Reset() {
	l.mu.Lock()
	l.ring.Reset()
	l.version++
	l.setResident()
	l.mu.Unlock()
}

// setResident publishes the ring occupancy. Callers hold l.mu so gauge
// updates are ordered with the appends they describe.
func (l *Log) setResident() {
	if l.metrics == nil {
		return
	}
	l.metrics.ResidentEntries.Set(float64(l.ring.Len()))
	l.metrics.ResidentBytes.Set(float64(l.ring.Size()))
}

// Close resets the ring, removes the target content where supported
// (plain files are deleted) and closes the target.
func (l *Log) Close() error {
	l.Reset()
	if err := l.target.Remove(); err != nil {
		_ = l.target.Close()
		return fmt.Errorf("remove %s target: %w", l.target.Kind(), err)
	}
	return l.target.Close()
}
