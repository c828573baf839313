// Package chardev emulates a character device that keeps the most recent
// writes in a bounded circular log.
//
// Writes are accumulated until they end in a newline and then committed as
// one entry; the oldest entry is dropped once the log is at capacity. Reads
// walk the concatenated entries from the handle position, returning at most
// the rest of one entry per call.
package chardev

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ppiankov/ringlog/internal/store"
)

// ErrClosed is returned by handles of a device that has been closed.
var ErrClosed = errors.New("device closed")

// Device is an in-process log device. All methods are safe for concurrent use.
type Device struct {
	mu      sync.Mutex
	ring    *store.Ring
	pending []byte // partial write not yet terminated by '\n'
	closed  bool

	onEvict func(store.Entry)
}

// New creates a device retaining up to capacity entries.
func New(capacity int) *Device {
	return &Device{ring: store.NewRing(capacity)}
}

// SetOnEvict registers a callback invoked, outside the device lock, with
// each entry dropped by a write.
func (d *Device) SetOnEvict(fn func(store.Entry)) {
	d.onEvict = fn
}

// Open returns a new handle positioned at the start of the content.
func (d *Device) Open() (*Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	return &Handle{dev: d}, nil
}

// Size returns the number of committed bytes currently readable.
func (d *Device) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ring.Size()
}

// Entries returns the committed entries, oldest first.
func (d *Device) Entries() []store.Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ring.Snapshot()
}

// Close drops every entry and any partial write. Further opens fail.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.ring.Reset()
	d.pending = nil
	return nil
}

func (d *Device) write(p []byte) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, ErrClosed
	}
	d.pending = append(d.pending, p...)
	var (
		evicted store.Entry
		dropped bool
	)
	if n := len(d.pending); n > 0 && d.pending[n-1] == '\n' {
		evicted, dropped = d.ring.Append(store.NewEntry(d.pending))
		d.pending = nil
	}
	d.mu.Unlock()

	if dropped && d.onEvict != nil {
		d.onEvict(evicted)
	}
	return len(p), nil
}

func (d *Device) readAt(p []byte, pos int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	e, local, ok := store.FindByByteOffset(d.ring, pos)
	if !ok {
		return 0, io.EOF
	}
	return e.CopyAt(p, local), nil
}

func (d *Device) resolve(cmd, off int64) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return store.ResolveCommandOffset(d.ring, cmd, off)
}

// Handle is an open file on a Device with its own read position.
type Handle struct {
	dev *Device
	mu  sync.Mutex
	pos int64
}

// Write appends p to the device's pending entry, committing it when p
// completes a line. Writes ignore the handle position.
func (h *Handle) Write(p []byte) (int, error) {
	return h.dev.write(p)
}

// Read copies bytes from the entry containing the handle position. A single
// call never crosses an entry boundary.
func (h *Handle) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(p) == 0 {
		return 0, nil
	}
	n, err := h.dev.readAt(p, h.pos)
	h.pos += int64(n)
	return n, err
}

// Seek implements io.Seeker relative to the committed content.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = h.pos
	case io.SeekEnd:
		base = h.dev.Size()
	default:
		return 0, fmt.Errorf("whence %d: %w", whence, store.ErrInvalidArgument)
	}
	next := base + offset
	if next < 0 {
		return 0, fmt.Errorf("negative position %d: %w", next, store.ErrInvalidArgument)
	}
	h.pos = next
	return next, nil
}

// SeekTo moves the handle to byte off of the cmd-th resident entry.
func (h *Handle) SeekTo(cmd, off int64) (int64, error) {
	pos, err := h.dev.resolve(cmd, off)
	if err != nil {
		return 0, err
	}
	h.mu.Lock()
	h.pos = pos
	h.mu.Unlock()
	return pos, nil
}

// Close releases the handle. The device keeps its content.
func (h *Handle) Close() error { return nil }
