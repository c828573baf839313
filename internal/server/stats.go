package server

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Stats collects service counters for the dashboard.
// All methods are safe for concurrent use.
type Stats struct {
	PacketsReceived atomic.Int64
	BytesReceived   atomic.Int64
	EchoBytes       atomic.Int64
	ActiveConns     atomic.Int64
	Evictions       atomic.Int64
	// DeviceEvictions counts entries dropped by an emulated device's own ring.
	DeviceEvictions atomic.Int64

	mu      sync.Mutex
	clients map[string]int64
}

// NewStats creates a Stats collector.
func NewStats() *Stats {
	return &Stats{
		clients: make(map[string]int64),
	}
}

// RecordPacket counts one ingested packet from the given remote host.
func (s *Stats) RecordPacket(host string, size int) {
	s.PacketsReceived.Add(1)
	s.BytesReceived.Add(int64(size))
	if host == "" {
		return
	}
	s.mu.Lock()
	s.clients[host]++
	s.mu.Unlock()
}

// Client is a remote host and its cumulative packet count.
type Client struct {
	Host  string
	Count int64
}

// Snapshot is a point-in-time copy of service stats.
type Snapshot struct {
	PacketsReceived int64
	BytesReceived   int64
	EchoBytes       int64
	ActiveConns     int64
	Evictions       int64
	DeviceEvictions int64
	Resident        int
	Capacity        int
	ResidentBytes   int64
	Clients         []Client
}

// Snapshot returns a copy of all counters, with clients sorted by
// packet count, busiest first.
func (s *Stats) Snapshot(resident, capacity int, residentBytes int64) Snapshot {
	snap := Snapshot{
		PacketsReceived: s.PacketsReceived.Load(),
		BytesReceived:   s.BytesReceived.Load(),
		EchoBytes:       s.EchoBytes.Load(),
		ActiveConns:     s.ActiveConns.Load(),
		Evictions:       s.Evictions.Load(),
		DeviceEvictions: s.DeviceEvictions.Load(),
		Resident:        resident,
		Capacity:        capacity,
		ResidentBytes:   residentBytes,
	}

	s.mu.Lock()
	snap.Clients = make([]Client, 0, len(s.clients))
	for host, count := range s.clients {
		snap.Clients = append(snap.Clients, Client{Host: host, Count: count})
	}
	s.mu.Unlock()

	sort.Slice(snap.Clients, func(i, j int) bool {
		if snap.Clients[i].Count != snap.Clients[j].Count {
			return snap.Clients[i].Count > snap.Clients[j].Count
		}
		return snap.Clients[i].Host < snap.Clients[j].Host
	})
	return snap
}
