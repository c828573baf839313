package target

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Opener returns a fresh handle on a device, positioned at its start.
type Opener func() (io.ReadWriteCloser, error)

// Device is a character device that keeps its own bounded log. Writes go
// through one long-lived handle; every read opens a new handle and consumes
// the device sequentially from the beginning.
type Device struct {
	name string
	open Opener

	mu     sync.Mutex
	w      io.ReadWriteCloser
	closed bool
}

// OpenDevice opens the character device at path.
func OpenDevice(path string) (*Device, error) {
	return NewDevice(path, func() (io.ReadWriteCloser, error) {
		return os.OpenFile(path, os.O_RDWR, 0)
	})
}

// NewDevice wraps any device reachable through open.
func NewDevice(name string, open Opener) (*Device, error) {
	w, err := open()
	if err != nil {
		return nil, fmt.Errorf("open device %s: %w", name, err)
	}
	return &Device{name: name, open: open, w: w}, nil
}

// Name returns the device name given at construction.
func (d *Device) Name() string { return d.name }

// Append writes p to the device.
func (d *Device) Append(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	return writeFull(d.w, p)
}

// WriteTo streams the device content to w.
func (d *Device) WriteTo(w io.Writer) (int64, error) {
	return d.StreamFrom(w, 0)
}

// StreamFrom streams the device content from byte pos. Devices only read
// forward from the beginning, so the leading bytes are read and dropped.
func (d *Device) StreamFrom(w io.Writer, pos int64) (int64, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	r, err := d.open()
	if err != nil {
		return 0, fmt.Errorf("open device %s: %w", d.name, err)
	}
	defer func() { _ = r.Close() }()

	if pos > 0 {
		if _, err := io.CopyN(io.Discard, r, pos); err != nil {
			if err == io.EOF {
				return 0, nil
			}
			return 0, err
		}
	}
	// hide ReaderFrom fast paths: devices do not support sendfile/splice
	return io.Copy(w, struct{ io.Reader }{r})
}

// Remove is a no-op: the device owns its retention.
func (d *Device) Remove() error { return nil }

// Close closes the write handle.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.w.Close()
}

func (d *Device) Kind() Kind       { return KindDevice }
func (d *Device) Timestamps() bool { return false }
