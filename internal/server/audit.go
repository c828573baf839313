package server

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEntry records a single auditable event.
type AuditEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	Event     string        `json:"event"`
	ConnID    string        `json:"conn_id,omitempty"`
	RemoteIP  string        `json:"remote_ip,omitempty"`
	Packets   int           `json:"packets,omitempty"`
	Bytes     int64         `json:"bytes,omitempty"`
	Duration  time.Duration `json:"duration_ns,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// AuditLogger writes append-only JSONL audit records.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewAuditLogger creates an audit logger appending to path.
func NewAuditLogger(path string) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &AuditLogger{file: f, enc: json.NewEncoder(f)}, nil
}

// Log writes an audit entry. Safe to call from multiple goroutines.
// If a is nil, the call is a no-op.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}
	entry.Timestamp = time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(entry)
}

// Close closes the audit log file.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	return a.file.Close()
}
