package server

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus metrics for the log service.
type Metrics struct {
	PacketsIngested   prometheus.Counter
	BytesIngested     prometheus.Counter
	PacketSize        prometheus.Histogram
	EntriesEvicted    prometheus.Counter
	BytesEvicted      prometheus.Counter
	ResidentEntries   prometheus.Gauge
	ResidentBytes     prometheus.Gauge
	ActiveConnections prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	ConnectionErrors  *prometheus.CounterVec
	WorkersReaped     prometheus.Counter
	EchoBytes         prometheus.Counter
	SeekCommands      *prometheus.CounterVec
	Heartbeats        prometheus.Counter
}

// NewMetrics creates and registers all service metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PacketsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringlog_packets_ingested_total",
			Help: "Total packets appended to the log",
		}),
		BytesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringlog_bytes_ingested_total",
			Help: "Total packet bytes appended to the log",
		}),
		PacketSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ringlog_packet_size_bytes",
			Help:    "Size of ingested packets",
			Buckets: prometheus.ExponentialBuckets(16, 4, 8),
		}),
		EntriesEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringlog_entries_evicted_total",
			Help: "Total entries evicted to make room for new appends",
		}),
		BytesEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringlog_bytes_evicted_total",
			Help: "Total bytes released by eviction",
		}),
		ResidentEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ringlog_resident_entries",
			Help: "Entries currently held in the ring",
		}),
		ResidentBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ringlog_resident_bytes",
			Help: "Bytes currently held in the ring",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ringlog_active_connections",
			Help: "Current client connections",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringlog_connections_total",
			Help: "Total accepted client connections",
		}),
		ConnectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ringlog_connection_errors_total",
			Help: "Connections terminated by an error, by reason",
		}, []string{"reason"}),
		WorkersReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringlog_workers_reaped_total",
			Help: "Finished connection workers joined by the supervisor",
		}),
		EchoBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringlog_echo_bytes_total",
			Help: "Total bytes streamed back to clients",
		}),
		SeekCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ringlog_seek_commands_total",
			Help: "Seek control commands by result",
		}, []string{"result"}),
		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringlog_heartbeats_total",
			Help: "Total timestamp lines appended",
		}),
	}
	reg.MustRegister(
		m.PacketsIngested,
		m.BytesIngested,
		m.PacketSize,
		m.EntriesEvicted,
		m.BytesEvicted,
		m.ResidentEntries,
		m.ResidentBytes,
		m.ActiveConnections,
		m.ConnectionsTotal,
		m.ConnectionErrors,
		m.WorkersReaped,
		m.EchoBytes,
		m.SeekCommands,
		m.Heartbeats,
	)
	return m
}
