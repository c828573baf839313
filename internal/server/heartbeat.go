package server

import (
	"context"
	"log/slog"
	"time"
)

// DefaultHeartbeatPeriod is how often a timestamp line is appended.
const DefaultHeartbeatPeriod = 10 * time.Second

// TimestampLayout formats heartbeat lines, e.g.
// "timestamp: 2024, Mar, 05, 14:03:59\n".
const TimestampLayout = "timestamp: 2006, Jan, 02, 15:04:05\n"

// Heartbeat appends a local-time timestamp line to the log on a fixed
// period. Ticks come from the monotonic clock, so wall-clock steps neither
// shorten nor stretch the interval.
type Heartbeat struct {
	log    *Log
	period time.Duration
	now    func() time.Time

	logger  *slog.Logger
	metrics *Metrics
}

// NewHeartbeat creates a heartbeat for log. If period ≤ 0,
// DefaultHeartbeatPeriod is used.
func NewHeartbeat(log *Log, period time.Duration, logger *slog.Logger, metrics *Metrics) *Heartbeat {
	if period <= 0 {
		period = DefaultHeartbeatPeriod
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Heartbeat{
		log:     log,
		period:  period,
		now:     time.Now,
		logger:  logger,
		metrics: metrics,
	}
}

// Run appends one timestamp per period until ctx is cancelled. It returns
// nil on cancellation and the append error if the log rejects a line.
func (h *Heartbeat) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			line := h.now().Local().Format(TimestampLayout)
			if err := h.log.Append([]byte(line)); err != nil {
				h.logger.Error("append timestamp", "error", err)
				return err
			}
			if h.metrics != nil {
				h.metrics.Heartbeats.Inc()
			}
		}
	}
}
