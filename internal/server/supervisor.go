package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config controls connection handling.
type Config struct {
	Echo            bool          // stream the full log back after each packet
	MaxPacketBytes  int           // per-connection reassembly limit
	HeartbeatPeriod time.Duration // 0 disables timestamps
}

// DefaultConfig returns the stock server settings.
func DefaultConfig() Config {
	return Config{
		Echo:            true,
		MaxPacketBytes:  DefaultMaxPacketBytes,
		HeartbeatPeriod: DefaultHeartbeatPeriod,
	}
}

// workerHandle tracks one connection worker. done is set by the worker
// on its way out; exited is closed right after, and joining means
// waiting on it.
type workerHandle struct {
	id     string
	remote string
	done   atomic.Bool
	exited chan struct{}
}

// Supervisor accepts connections, runs a worker per connection, reaps
// finished workers and drives shutdown.
type Supervisor struct {
	cfg    Config
	log    *Log
	logger *slog.Logger

	metrics *Metrics
	stats   *Stats
	audit   *AuditLogger

	mu      sync.Mutex
	handles []*workerHandle
}

// NewSupervisor creates a supervisor serving log.
func NewSupervisor(log *Log, cfg Config, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Supervisor{cfg: cfg, log: log, logger: logger}
}

// SetMetrics attaches Prometheus metrics.
func (s *Supervisor) SetMetrics(m *Metrics) { s.metrics = m }

// SetStats attaches the dashboard stats collector.
func (s *Supervisor) SetStats(st *Stats) { s.stats = st }

// SetAuditLogger attaches an audit logger.
func (s *Supervisor) SetAuditLogger(a *AuditLogger) { s.audit = a }

// Workers returns the number of tracked worker handles, finished or not.
func (s *Supervisor) Workers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Serve accepts connections on ln until ctx is cancelled or a fatal error
// occurs, then stops accepting, waits for every worker to exit on its own,
// resets the log, removes the target content and closes ln.
//
// Cancellation returns nil. Append-target failures and listener failures
// are fatal and returned.
func (s *Supervisor) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stopListener := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stopListener()

	s.logger.Info("accepting connections", "addr", ln.Addr().String(),
		"target", string(s.log.TargetKind()), "capacity", s.log.Cap(), "echo", s.cfg.Echo)
	s.audit.Log(AuditEntry{Event: "server_started"})

	var bg sync.WaitGroup
	if s.cfg.HeartbeatPeriod > 0 && s.log.Timestamps() {
		hb := NewHeartbeat(s.log, s.cfg.HeartbeatPeriod, s.logger.With("component", "heartbeat"), s.metrics)
		bg.Go(func() {
			if err := hb.Run(ctx); err != nil {
				cancel(err)
			}
		})
	}

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				cancel(fmt.Errorf("%w: accept: %w", ErrIO, err))
				break
			}
			// transient accept failure (e.g. EMFILE): back off and retry
			tempDelay = min(max(2*tempDelay, 5*time.Millisecond), time.Second)
			s.logger.Warn("accept failed", "error", err, "retry_in", tempDelay)
			select {
			case <-time.After(tempDelay):
			case <-ctx.Done():
			}
			s.sweep()
			continue
		}
		tempDelay = 0
		s.spawn(ctx, conn, cancel)
		s.sweep()
	}

	cause := context.Cause(ctx)
	if errors.Is(cause, context.Canceled) {
		cause = nil
	}
	s.logger.Info("shutting down", "workers", s.Workers(), "cause", cause)

	_ = ln.Close()
	s.joinAll()
	bg.Wait()

	if err := s.log.Close(); err != nil {
		s.logger.Error("release log", "error", err)
		cause = errors.Join(cause, err)
	}
	s.audit.Log(AuditEntry{Event: "server_stopped"})
	return cause
}

func (s *Supervisor) spawn(ctx context.Context, conn net.Conn, fail context.CancelCauseFunc) {
	h := &workerHandle{
		id:     uuid.New().String(),
		remote: conn.RemoteAddr().String(),
		exited: make(chan struct{}),
	}
	w := &worker{
		id:      h.id,
		conn:    conn,
		remote:  h.remote,
		log:     s.log,
		cfg:     s.cfg,
		logger:  s.logger.With("conn_id", h.id, "remote", h.remote),
		metrics: s.metrics,
		stats:   s.stats,
	}

	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
	s.trackOpen()

	w.logger.Info("accepted connection")
	s.audit.Log(AuditEntry{Event: "connection_accepted", ConnID: h.id, RemoteIP: hostOnly(h.remote)})

	go func() {
		start := time.Now()
		err := w.run(ctx)
		_ = conn.Close()

		entry := AuditEntry{
			Event:    "connection_closed",
			ConnID:   h.id,
			RemoteIP: hostOnly(h.remote),
			Packets:  w.packets,
			Bytes:    w.bytes,
			Duration: time.Since(start),
		}
		if err != nil {
			entry.Error = err.Error()
			w.logger.Error("connection failed", "error", err, "packets", w.packets)
			if s.metrics != nil {
				s.metrics.ConnectionErrors.WithLabelValues(errorReason(err)).Inc()
			}
			if errors.Is(err, ErrTarget) {
				fail(err)
			}
		} else {
			w.logger.Info("closed connection", "packets", w.packets, "bytes", w.bytes)
		}
		s.audit.Log(entry)
		s.trackClose()

		h.done.Store(true)
		close(h.exited)
	}()
}

// sweep joins and forgets every worker that has finished.
func (s *Supervisor) sweep() {
	s.mu.Lock()
	before := len(s.handles)
	s.handles = slices.DeleteFunc(s.handles, func(h *workerHandle) bool {
		if !h.done.Load() {
			return false
		}
		<-h.exited
		return true
	})
	reaped := before - len(s.handles)
	s.mu.Unlock()

	if reaped > 0 && s.metrics != nil {
		s.metrics.WorkersReaped.Add(float64(reaped))
	}
}

// joinAll waits for every tracked worker to exit and forgets it.
func (s *Supervisor) joinAll() {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()

	for _, h := range handles {
		<-h.exited
	}
	if len(handles) > 0 && s.metrics != nil {
		s.metrics.WorkersReaped.Add(float64(len(handles)))
	}
}

func (s *Supervisor) trackOpen() {
	if s.metrics != nil {
		s.metrics.ConnectionsTotal.Inc()
		s.metrics.ActiveConnections.Inc()
	}
	if s.stats != nil {
		s.stats.ActiveConns.Add(1)
	}
}

func (s *Supervisor) trackClose() {
	if s.metrics != nil {
		s.metrics.ActiveConnections.Dec()
	}
	if s.stats != nil {
		s.stats.ActiveConns.Add(-1)
	}
}
