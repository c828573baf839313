package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/ringlog/internal/store"
)

// EntryView is the JSON form of one resident entry.
type EntryView struct {
	Index  int    `json:"index"`
	Offset int64  `json:"offset"`
	Size   int    `json:"size"`
	Data   string `json:"data"`
}

// EntriesResponse is returned by GET /api/entries.
type EntriesResponse struct {
	Capacity int         `json:"capacity"`
	Size     int64       `json:"size"`
	Entries  []EntryView `json:"entries"`
}

// AdminServer exposes health, version, log inspection and metrics over
// HTTP. It never writes to the log.
type AdminServer struct {
	log      *Log
	sup      *Supervisor
	stats    *Stats
	version  string
	gatherer prometheus.Gatherer
	httpSrv  *http.Server
}

// NewAdminServer creates an admin server bound to addr. If gatherer is
// nil, prometheus.DefaultGatherer is used for /metrics.
func NewAdminServer(addr string, log *Log, sup *Supervisor, stats *Stats, gatherer prometheus.Gatherer) *AdminServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &AdminServer{log: log, sup: sup, stats: stats, gatherer: gatherer}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/api/version", s.handleVersion).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/entries", s.handleEntries).Methods(http.MethodGet)
	r.HandleFunc("/api/entries/{index:[0-9]+}", s.handleEntry).Methods(http.MethodGet)
	r.HandleFunc("/api/seek", s.handleSeek).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// SetVersion sets the application version reported by /api/version.
func (s *AdminServer) SetVersion(v string) {
	s.version = v
}

// Handler returns the router, for tests.
func (s *AdminServer) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe starts the HTTP server.
func (s *AdminServer) ListenAndServe() error {
	return s.httpSrv.ListenAndServe()
}

// Serve accepts connections on a listener.
func (s *AdminServer) Serve(ln net.Listener) error {
	return s.httpSrv.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *AdminServer) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *AdminServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *AdminServer) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *AdminServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := s.stats
	if st == nil {
		st = NewStats()
	}
	snap := st.Snapshot(s.log.Len(), s.log.Cap(), s.log.Size())
	writeJSON(w, http.StatusOK, struct {
		Snapshot
		Workers int    `json:"workers"`
		Target  string `json:"target"`
	}{snap, s.workers(), string(s.log.TargetKind())})
}

func (s *AdminServer) handleEntries(w http.ResponseWriter, _ *http.Request) {
	entries := s.log.Snapshot()
	resp := EntriesResponse{
		Capacity: s.log.Cap(),
		Entries:  make([]EntryView, 0, len(entries)),
	}
	for i, e := range entries {
		resp.Entries = append(resp.Entries, EntryView{
			Index:  i,
			Offset: resp.Size,
			Size:   e.Len(),
			Data:   e.String(),
		})
		resp.Size += int64(e.Len())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *AdminServer) handleEntry(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		http.Error(w, "invalid index", http.StatusBadRequest)
		return
	}
	entries := s.log.Snapshot()
	if idx >= len(entries) {
		http.Error(w, fmt.Sprintf("entry %d not resident", idx), http.StatusNotFound)
		return
	}
	var off int64
	for _, e := range entries[:idx] {
		off += int64(e.Len())
	}
	e := entries[idx]
	writeJSON(w, http.StatusOK, EntryView{Index: idx, Offset: off, Size: e.Len(), Data: e.String()})
}

// handleSeek serves GET /api/seek?cmd=X&offset=Y with the same semantics
// as the in-band seek command.
func (s *AdminServer) handleSeek(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cmd, err1 := strconv.ParseInt(q.Get("cmd"), 10, 64)
	off, err2 := strconv.ParseInt(q.Get("offset"), 10, 64)
	if err := errors.Join(err1, err2); err != nil {
		http.Error(w, "cmd and offset must be integers", http.StatusBadRequest)
		return
	}
	pos, err := s.log.Seek(cmd, off)
	if err != nil {
		if errors.Is(err, store.ErrInvalidArgument) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Ringlog-Position", strconv.FormatInt(pos, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.log.ReadFrom(pos))
}

func (s *AdminServer) workers() int {
	if s.sup == nil {
		return 0
	}
	return s.sup.Workers()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
