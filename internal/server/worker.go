package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/ppiankov/ringlog/internal/store"
)

// ReadChunk is the most a worker reads from its connection at once.
const ReadChunk = 1024

// InvalidSeekReply answers a seek command that names no resident position.
const InvalidSeekReply = "error: invalid argument\n"

// worker serves one client connection: it reassembles packets, appends each
// to the log, and streams content back.
type worker struct {
	id     string
	conn   net.Conn
	remote string
	log    *Log
	cfg    Config

	logger  *slog.Logger
	metrics *Metrics
	stats   *Stats

	packets int
	bytes   int64
}

// run serves the connection until the peer closes it, a failure occurs or
// ctx is cancelled. Peer close and cancellation return nil.
func (w *worker) run(ctx context.Context) error {
	// unblock a pending Read or echo Write once cancelled
	stop := context.AfterFunc(ctx, func() {
		_ = w.conn.SetDeadline(time.Now())
	})
	defer stop()

	asm := NewAssembler(w.cfg.MaxPacketBytes)
	defer asm.Reset()
	buf := make([]byte, ReadChunk)

	for {
		if ctx.Err() != nil {
			return nil
		}
		n, rerr := w.conn.Read(buf)
		if n > 0 {
			packets, err := asm.Feed(buf[:n])
			if err != nil {
				return err
			}
			for _, pkt := range packets {
				if err := w.process(pkt); err != nil {
					if ctx.Err() != nil && errors.Is(err, ErrIO) && !errors.Is(err, ErrTarget) {
						return nil
					}
					return err
				}
			}
		}
		if rerr != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(rerr, io.EOF):
				return nil
			}
			return fmt.Errorf("%w: read: %w", ErrIO, rerr)
		}
	}
}

func (w *worker) process(pkt []byte) error {
	if cmd, off, ok, err := ParseSeekCommand(pkt); ok {
		return w.seek(cmd, off, err)
	}

	size := len(pkt)
	if err := w.log.Append(pkt); err != nil {
		return err
	}
	w.packets++
	w.bytes += int64(size)
	if w.metrics != nil {
		w.metrics.PacketsIngested.Inc()
		w.metrics.BytesIngested.Add(float64(size))
		w.metrics.PacketSize.Observe(float64(size))
	}
	if w.stats != nil {
		w.stats.RecordPacket(hostOnly(w.remote), size)
	}

	if !w.cfg.Echo {
		return nil
	}
	n, err := w.log.Echo(w.conn)
	w.countEcho(n)
	if err != nil {
		return fmt.Errorf("%w: echo: %w", ErrIO, err)
	}
	return nil
}

// seek answers a control packet. An invalid command is reported to the
// client and the connection carries on.
func (w *worker) seek(cmd, off int64, err error) error {
	var pos int64
	if err == nil {
		pos, err = w.log.Seek(cmd, off)
	}
	if err != nil {
		if !errors.Is(err, store.ErrInvalidArgument) {
			return err
		}
		w.logger.Warn("rejected seek command", "cmd", cmd, "offset", off, "error", err)
		if w.metrics != nil {
			w.metrics.SeekCommands.WithLabelValues("invalid").Inc()
		}
		if _, werr := w.conn.Write([]byte(InvalidSeekReply)); werr != nil {
			return fmt.Errorf("%w: seek reply: %w", ErrIO, werr)
		}
		return nil
	}

	if w.metrics != nil {
		w.metrics.SeekCommands.WithLabelValues("ok").Inc()
	}
	data := w.log.ReadFrom(pos)
	n, werr := w.conn.Write(data)
	w.countEcho(int64(n))
	if werr != nil {
		return fmt.Errorf("%w: seek reply: %w", ErrIO, werr)
	}
	w.logger.Debug("seek served", "cmd", cmd, "offset", off, "position", pos, "bytes", n)
	return nil
}

func (w *worker) countEcho(n int64) {
	if n <= 0 {
		return
	}
	if w.metrics != nil {
		w.metrics.EchoBytes.Add(float64(n))
	}
	if w.stats != nil {
		w.stats.EchoBytes.Add(n)
	}
}

// errorReason labels a worker exit error for metrics.
func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrResourceExhausted):
		return "resource_exhausted"
	case errors.Is(err, ErrTarget):
		return "target"
	case errors.Is(err, ErrIO):
		return "io"
	default:
		return "other"
	}
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
