package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestAdmin(t *testing.T) (*AdminServer, *Log, *httptest.Server) {
	t.Helper()
	reg := prometheus.NewRegistry()
	l := NewLog(10, &memTarget{}, NewMetrics(reg), nil)
	for _, s := range []string{"one\n", "two\n", "three\n"} {
		if err := l.Append([]byte(s)); err != nil {
			t.Fatal(err)
		}
	}
	stats := NewStats()
	stats.RecordPacket("10.0.0.1", 4)
	a := NewAdminServer(":0", l, nil, stats, reg)
	a.SetVersion("1.2.3")
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return a, l, srv
}

func get(t *testing.T, url string) (int, string, http.Header) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), resp.Header
}

func TestAdminHealthAndVersion(t *testing.T) {
	_, _, srv := newTestAdmin(t)

	if code, body, _ := get(t, srv.URL+"/healthz"); code != http.StatusOK || body != "ok\n" {
		t.Errorf("healthz = %d %q", code, body)
	}

	code, body, _ := get(t, srv.URL+"/api/version")
	if code != http.StatusOK {
		t.Fatalf("version status = %d", code)
	}
	var v map[string]string
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		t.Fatal(err)
	}
	if v["version"] != "1.2.3" {
		t.Errorf("version = %q", v["version"])
	}
}

func TestAdminEntries(t *testing.T) {
	_, _, srv := newTestAdmin(t)

	code, body, _ := get(t, srv.URL+"/api/entries")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var resp EntriesResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Capacity != 10 || resp.Size != 14 || len(resp.Entries) != 3 {
		t.Fatalf("resp = %+v", resp)
	}
	if e := resp.Entries[2]; e.Offset != 8 || e.Data != "three\n" || e.Size != 6 {
		t.Errorf("entry 2 = %+v", e)
	}

	code, body, _ = get(t, srv.URL+"/api/entries/1")
	if code != http.StatusOK || !strings.Contains(body, `"data":"two\n"`) {
		t.Errorf("entry 1 = %d %s", code, body)
	}
	if code, _, _ := get(t, srv.URL+"/api/entries/3"); code != http.StatusNotFound {
		t.Errorf("missing entry status = %d", code)
	}
	if code, _, _ := get(t, srv.URL+"/api/entries/x"); code != http.StatusNotFound {
		t.Errorf("non-numeric index status = %d", code)
	}
}

func TestAdminSeek(t *testing.T) {
	_, _, srv := newTestAdmin(t)

	code, body, hdr := get(t, srv.URL+"/api/seek?cmd=1&offset=1")
	if code != http.StatusOK || body != "wo\nthree\n" {
		t.Errorf("seek = %d %q", code, body)
	}
	if hdr.Get("X-Ringlog-Position") != "5" {
		t.Errorf("position header = %q", hdr.Get("X-Ringlog-Position"))
	}

	if code, _, _ := get(t, srv.URL+"/api/seek?cmd=9&offset=0"); code != http.StatusBadRequest {
		t.Errorf("invalid seek status = %d", code)
	}
	if code, _, _ := get(t, srv.URL+"/api/seek?cmd=a"); code != http.StatusBadRequest {
		t.Errorf("malformed seek status = %d", code)
	}
}

func TestAdminStatsAndMetrics(t *testing.T) {
	_, _, srv := newTestAdmin(t)

	code, body, _ := get(t, srv.URL+"/api/stats")
	if code != http.StatusOK {
		t.Fatalf("stats status = %d", code)
	}
	var st struct {
		PacketsReceived int64
		Resident        int
		Target          string `json:"target"`
	}
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatal(err)
	}
	if st.PacketsReceived != 1 || st.Resident != 3 || st.Target != "file" {
		t.Errorf("stats = %+v", st)
	}

	code, body, _ = get(t, srv.URL+"/metrics")
	if code != http.StatusOK || !strings.Contains(body, "ringlog_resident_entries 3") {
		t.Errorf("metrics = %d, missing resident gauge", code)
	}
}

func TestAdminRejectsWrites(t *testing.T) {
	_, l, srv := newTestAdmin(t)
	resp, err := http.Post(srv.URL+"/api/entries", "text/plain", strings.NewReader("x\n"))
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", resp.StatusCode)
	}
	if l.Len() != 3 {
		t.Errorf("len = %d", l.Len())
	}
}
