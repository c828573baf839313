package server

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/ppiankov/ringlog/internal/target"
)

// memTarget is an in-memory target.Target for tests.
type memTarget struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	failAppend error
	timestamps bool
	removed    bool
	closed     bool
}

func (m *memTarget) Append(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppend != nil {
		return 0, m.failAppend
	}
	if m.closed {
		return 0, target.ErrClosed
	}
	return m.buf.Write(p)
}

func (m *memTarget) WriteTo(w io.Writer) (int64, error) {
	return m.StreamFrom(w, 0)
}

func (m *memTarget) StreamFrom(w io.Writer, pos int64) (int64, error) {
	m.mu.Lock()
	data := bytes.Clone(m.buf.Bytes())
	m.mu.Unlock()
	if pos >= int64(len(data)) {
		return 0, nil
	}
	n, err := w.Write(data[pos:])
	return int64(n), err
}

func (m *memTarget) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = true
	m.buf.Reset()
	return nil
}

func (m *memTarget) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("closed twice")
	}
	m.closed = true
	return nil
}

func (m *memTarget) Kind() target.Kind { return target.KindFile }
func (m *memTarget) Timestamps() bool  { return m.timestamps }

func (m *memTarget) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.String()
}

func (m *memTarget) state() (removed, closed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removed, m.closed
}

func gatherMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

// metricValue returns the value of the first sample of a counter or gauge,
// or -1 if the family is missing.
func metricValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	f := gatherMetric(t, reg, name)
	if f == nil || len(f.GetMetric()) == 0 {
		return -1
	}
	m := f.GetMetric()[0]
	if c := m.GetCounter(); c != nil {
		return c.GetValue()
	}
	return m.GetGauge().GetValue()
}
