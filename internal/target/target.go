// Package target implements the durable sinks that ingested packets are
// persisted to alongside the in-memory log: a plain append-only file and a
// character device that applies its own retention.
package target

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Kind identifies a target realization.
type Kind string

const (
	KindFile   Kind = "file"
	KindDevice Kind = "device"
)

// ParseKind accepts "file" or "device" (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindFile, KindDevice:
		return k, nil
	}
	return "", fmt.Errorf("unknown target kind %q (want file or device)", s)
}

// ErrClosed is returned by operations on a closed target.
var ErrClosed = errors.New("target closed")

// Target is a durable append sink.
type Target interface {
	// Append persists p in full.
	Append(p []byte) (int, error)
	// WriteTo streams the whole readable content to w, oldest byte first.
	WriteTo(w io.Writer) (int64, error)
	// StreamFrom streams the readable content starting at byte pos.
	StreamFrom(w io.Writer, pos int64) (int64, error)
	// Remove discards the persisted content where the target supports it.
	Remove() error
	Close() error
	Kind() Kind
	// Timestamps reports whether periodic timestamp lines may be appended.
	Timestamps() bool
}

// writeFull loops over short writes.
func writeFull(w io.Writer, p []byte) (int, error) {
	var written int
	for written < len(p) {
		n, err := w.Write(p[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}
