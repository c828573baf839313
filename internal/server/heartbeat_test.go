package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHeartbeatAppendsTimestamps(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	tgt := &memTarget{timestamps: true}
	l := NewLog(10, tgt, nil, nil)

	hb := NewHeartbeat(l, 5*time.Millisecond, nil, metrics)
	fixed := time.Date(2024, time.March, 5, 14, 3, 59, 0, time.Local)
	hb.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hb.Run(ctx) }()

	waitFor(t, time.Second, func() bool { return l.Len() >= 2 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, e := range l.Snapshot() {
		if got := e.String(); got != "timestamp: 2024, Mar, 05, 14:03:59\n" {
			t.Errorf("entry = %q", got)
		}
	}
	if v := metricValue(t, reg, "ringlog_heartbeats_total"); v < 2 {
		t.Errorf("heartbeats = %v, want >= 2", v)
	}
}

func TestHeartbeatStopsOnAppendFailure(t *testing.T) {
	tgt := &memTarget{timestamps: true, failAppend: errors.New("gone")}
	l := NewLog(10, tgt, nil, nil)
	hb := NewHeartbeat(l, time.Millisecond, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := hb.Run(ctx); !errors.Is(err, ErrTarget) {
		t.Fatalf("err = %v, want ErrTarget", err)
	}
}

func TestNewHeartbeatDefaultPeriod(t *testing.T) {
	hb := NewHeartbeat(NewLog(1, &memTarget{}, nil, nil), 0, nil, nil)
	if hb.period != DefaultHeartbeatPeriod {
		t.Errorf("period = %v, want %v", hb.period, DefaultHeartbeatPeriod)
	}
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
