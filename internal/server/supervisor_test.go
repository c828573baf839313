package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ppiankov/ringlog/internal/target"
)

type testServer struct {
	addr    string
	log     *Log
	sup     *Supervisor
	stats   *Stats
	reg     *prometheus.Registry
	cancel  context.CancelFunc
	errCh   chan error
	stopped bool
}

func startServer(t *testing.T, tgt target.Target, capacity int, cfg Config) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	stats := NewStats()
	l := NewLog(capacity, tgt, metrics, nil)
	sup := NewSupervisor(l, cfg, nil)
	sup.SetMetrics(metrics)
	sup.SetStats(stats)

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{
		addr:   ln.Addr().String(),
		log:    l,
		sup:    sup,
		stats:  stats,
		reg:    reg,
		cancel: cancel,
		errCh:  make(chan error, 1),
	}
	go func() { ts.errCh <- sup.Serve(ctx, ln) }()
	t.Cleanup(func() {
		if !ts.stopped {
			_ = ts.stop(t)
		}
	})
	return ts
}

func (ts *testServer) stop(t *testing.T) error {
	t.Helper()
	ts.stopped = true
	ts.cancel()
	select {
	case err := <-ts.errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
		return nil
	}
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readN(t *testing.T, conn net.Conn, n int) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read %d bytes: %v (got %q)", n, err, buf)
	}
	return string(buf)
}

func send(t *testing.T, conn net.Conn, s string) {
	t.Helper()
	if _, err := conn.Write([]byte(s)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.HeartbeatPeriod = 0
	return cfg
}

func TestServeEchoesFullContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	tgt, err := target.OpenFile(target.FileConfig{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	ts := startServer(t, tgt, 10, quietConfig())

	c1 := dial(t, ts.addr)
	send(t, c1, "hello\n")
	if got := readN(t, c1, 6); got != "hello\n" {
		t.Errorf("first echo = %q", got)
	}

	c2 := dial(t, ts.addr)
	send(t, c2, "wor")
	send(t, c2, "ld\n")
	if got := readN(t, c2, 12); got != "hello\nworld\n" {
		t.Errorf("second echo = %q", got)
	}

	if err := ts.stop(t); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("data file still exists after shutdown: %v", err)
	}
	if n := ts.sup.Workers(); n != 0 {
		t.Errorf("workers after shutdown = %d", n)
	}
}

func TestServeEchoesBeyondRingCapacity(t *testing.T) {
	tgt := &memTarget{}
	ts := startServer(t, tgt, 2, quietConfig())

	c := dial(t, ts.addr)
	want := ""
	for _, s := range []string{"a\n", "b\n", "c\n"} {
		send(t, c, s)
		want += s
		if got := readN(t, c, len(want)); got != want {
			t.Fatalf("echo = %q, want %q", got, want)
		}
	}
	if ts.log.Len() != 2 {
		t.Errorf("resident = %d, want 2", ts.log.Len())
	}
}

func TestServeWithoutEcho(t *testing.T) {
	cfg := quietConfig()
	cfg.Echo = false
	tgt := &memTarget{}
	ts := startServer(t, tgt, 10, cfg)

	c := dial(t, ts.addr)
	send(t, c, "quiet\n")
	waitFor(t, 2*time.Second, func() bool { return ts.log.Len() == 1 })

	_ = c.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	var buf [1]byte
	if n, err := c.Read(buf[:]); n != 0 || err == nil {
		t.Errorf("read = %d, %v; want timeout with no data", n, err)
	}
}

func TestServeSeekCommand(t *testing.T) {
	tgt := &memTarget{}
	ts := startServer(t, tgt, 10, quietConfig())

	c := dial(t, ts.addr)
	send(t, c, "one\n")
	readN(t, c, 4)
	send(t, c, "two\n")
	readN(t, c, 8)

	send(t, c, string(FormatSeekCommand(1, 1)))
	if got := readN(t, c, 3); got != "wo\n" {
		t.Errorf("seek reply = %q, want %q", got, "wo\n")
	}
	if ts.log.Len() != 2 {
		t.Errorf("seek command was stored: len = %d", ts.log.Len())
	}

	send(t, c, "AESDCHAR_IOCSEEKTO:5,0\n")
	if got := readN(t, c, len(InvalidSeekReply)); got != InvalidSeekReply {
		t.Errorf("invalid seek reply = %q", got)
	}

	// connection stays usable
	send(t, c, "three\n")
	if got := readN(t, c, 14); got != "one\ntwo\nthree\n" {
		t.Errorf("echo after invalid seek = %q", got)
	}

	if v := gatherMetric(t, ts.reg, "ringlog_seek_commands_total"); v == nil || len(v.GetMetric()) != 2 {
		t.Errorf("seek command metric families = %v", v)
	}
}

func TestServeDropsOversizedPacket(t *testing.T) {
	cfg := quietConfig()
	cfg.MaxPacketBytes = 16
	tgt := &memTarget{}
	ts := startServer(t, tgt, 10, cfg)

	c := dial(t, ts.addr)
	send(t, c, strings.Repeat("x", 32))
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	data, err := io.ReadAll(c)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatal("connection was not closed")
	}
	if len(data) != 0 {
		t.Errorf("got %q, want connection closed without echo", data)
	}
	if ts.log.Len() != 0 {
		t.Errorf("len = %d, want 0", ts.log.Len())
	}

	// the server keeps serving others
	c2 := dial(t, ts.addr)
	send(t, c2, "ok\n")
	if got := readN(t, c2, 3); got != "ok\n" {
		t.Errorf("echo = %q", got)
	}

	waitFor(t, 2*time.Second, func() bool {
		return gatherMetric(t, ts.reg, "ringlog_connection_errors_total") != nil
	})
	f := gatherMetric(t, ts.reg, "ringlog_connection_errors_total")
	if got := f.GetMetric()[0].GetLabel()[0].GetValue(); got != "resource_exhausted" {
		t.Errorf("connection error reason = %q", got)
	}
}

func TestServeReapsFinishedWorkers(t *testing.T) {
	ts := startServer(t, &memTarget{}, 10, quietConfig())

	for range 3 {
		c := dial(t, ts.addr)
		send(t, c, "x\n")
		readN(t, c, 1)
		_ = c.Close()
	}
	waitFor(t, 2*time.Second, func() bool { return ts.stats.ActiveConns.Load() == 0 })

	// the next accept sweeps finished handles
	waitFor(t, 2*time.Second, func() bool {
		c := dial(t, ts.addr)
		_ = c.Close()
		return ts.sup.Workers() <= 1
	})
	if v := metricValue(t, ts.reg, "ringlog_workers_reaped_total"); v < 3 {
		t.Errorf("reaped = %v, want >= 3", v)
	}
}

func TestServeShutdownWithIdleClient(t *testing.T) {
	tgt := &memTarget{}
	ts := startServer(t, tgt, 10, quietConfig())

	c := dial(t, ts.addr)
	send(t, c, "partial")
	waitFor(t, 2*time.Second, func() bool { return ts.stats.ActiveConns.Load() == 1 })

	if err := ts.stop(t); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	removed, closed := tgt.state()
	if !removed || !closed {
		t.Errorf("removed=%v closed=%v", removed, closed)
	}
	if ts.log.Len() != 0 {
		t.Errorf("ring not reset: len = %d", ts.log.Len())
	}

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := bufio.NewReader(c).ReadByte(); !errors.Is(err, io.EOF) {
		t.Errorf("client read after shutdown: %v, want EOF", err)
	}
}

func TestServeShutdownWithStalledReader(t *testing.T) {
	tgt, err := target.OpenFile(target.FileConfig{Path: filepath.Join(t.TempDir(), "data")})
	if err != nil {
		t.Fatal(err)
	}
	ts := startServer(t, tgt, 10, quietConfig())

	// the client floods large lines and never reads, so the echo of the
	// growing file fills the socket buffers and the worker blocks writing
	c := dial(t, ts.addr)
	line := strings.Repeat("x", 500*1024) + "\n"
	go func() {
		for range 20 {
			if _, err := c.Write([]byte(line)); err != nil {
				return
			}
		}
	}()
	waitFor(t, 5*time.Second, func() bool { return ts.log.Len() >= 1 })
	time.Sleep(200 * time.Millisecond)

	if err := ts.stop(t); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if ts.sup.Workers() != 0 {
		t.Errorf("workers after shutdown = %d", ts.sup.Workers())
	}
}

func TestServeTargetFailureIsFatal(t *testing.T) {
	tgt := &memTarget{failAppend: errors.New("no space left on device")}
	ts := startServer(t, tgt, 10, quietConfig())

	c := dial(t, ts.addr)
	send(t, c, "x\n")

	select {
	case err := <-ts.errCh:
		ts.stopped = true
		if !errors.Is(err, ErrTarget) {
			t.Fatalf("Serve = %v, want ErrTarget", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop on target failure")
	}
}

func TestServeHeartbeatOnlyForTimestampTargets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatPeriod = 5 * time.Millisecond

	stamped := startServer(t, &memTarget{timestamps: true}, 10, cfg)
	waitFor(t, 2*time.Second, func() bool { return stamped.log.Len() > 0 })
	if got := stamped.log.Snapshot()[0].String(); !strings.HasPrefix(got, "timestamp: ") {
		t.Errorf("heartbeat entry = %q", got)
	}

	plain := startServer(t, &memTarget{}, 10, cfg)
	time.Sleep(50 * time.Millisecond)
	if plain.log.Len() != 0 {
		t.Errorf("heartbeat ran for a target without timestamps: len = %d", plain.log.Len())
	}
}
