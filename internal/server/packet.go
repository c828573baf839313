package server

import (
	"bytes"
	"fmt"
)

// DefaultMaxPacketBytes bounds the bytes a connection may buffer while
// waiting for a newline.
const DefaultMaxPacketBytes = 1 << 20

// Assembler reassembles a byte stream into newline-terminated packets.
// Bytes after the last newline are kept for the next Feed; nothing is
// duplicated or dropped across calls.
type Assembler struct {
	buf     []byte
	scanned int // prefix of buf already searched for '\n'
	max     int
}

// NewAssembler creates an assembler whose buffer may not grow past max
// bytes. If max ≤ 0, DefaultMaxPacketBytes is used.
func NewAssembler(max int) *Assembler {
	if max <= 0 {
		max = DefaultMaxPacketBytes
	}
	return &Assembler{max: max}
}

// Feed adds p to the buffer and returns every packet completed by it, in
// order, each including its trailing newline. It fails with
// ErrResourceExhausted, buffering nothing, when p does not fit.
func (a *Assembler) Feed(p []byte) ([][]byte, error) {
	if len(a.buf)+len(p) > a.max {
		return nil, fmt.Errorf("%w: packet buffer would grow to %d bytes (limit %d)",
			ErrResourceExhausted, len(a.buf)+len(p), a.max)
	}
	a.buf = append(a.buf, p...)

	var packets [][]byte
	start := 0
	for {
		i := bytes.IndexByte(a.buf[a.scanned:], '\n')
		if i < 0 {
			a.scanned = len(a.buf)
			break
		}
		end := a.scanned + i + 1
		pkt := make([]byte, end-start)
		copy(pkt, a.buf[start:end])
		packets = append(packets, pkt)
		start, a.scanned = end, end
	}

	if start > 0 {
		n := copy(a.buf, a.buf[start:])
		a.buf = a.buf[:n]
		a.scanned -= start
	}
	return packets, nil
}

// Buffered returns the number of bytes waiting for a newline.
func (a *Assembler) Buffered() int { return len(a.buf) }

// Reset discards buffered bytes and releases the buffer.
func (a *Assembler) Reset() {
	a.buf = nil
	a.scanned = 0
}
