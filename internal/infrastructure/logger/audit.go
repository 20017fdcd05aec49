package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditLogger appends request/response audit records as JSON Lines.
// Exactly two records per completed request: one "request", one
// "response". A mutex serializes writers so lines never interleave.
type AuditLogger struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

type auditRequestRecord struct {
	RequestID string            `json:"request_id"`
	Timestamp string            `json:"timestamp"`
	Type      string            `json:"type"`
	Payload   json.RawMessage   `json:"payload"`
	Headers   map[string]string `json:"headers"`
}

type auditResponseRecord struct {
	RequestID  string          `json:"request_id"`
	Timestamp  string          `json:"timestamp"`
	Type       string          `json:"type"`
	Response   json.RawMessage `json:"response"`
	StatusCode int             `json:"status_code"`
}

// NewAuditLogger opens (or creates) the audit file in append mode.
func NewAuditLogger(path string) (*AuditLogger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &AuditLogger{f: f, enc: json.NewEncoder(f)}, nil
}

// LogRequest writes the request half of an audit pair. payload must be
// valid JSON; non-JSON bodies are quoted as a JSON string upstream.
func (a *AuditLogger) LogRequest(requestID string, payload json.RawMessage, headers map[string]string) {
	a.write(auditRequestRecord{
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Type:      "request",
		Payload:   payload,
		Headers:   headers,
	})
}

// LogResponse writes the response half of an audit pair.
func (a *AuditLogger) LogResponse(requestID string, response json.RawMessage, statusCode int) {
	a.write(auditResponseRecord{
		RequestID:  requestID,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Type:       "response",
		Response:   response,
		StatusCode: statusCode,
	})
}

func (a *AuditLogger) write(record interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(record)
}

// Close flushes and closes the underlying file.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.f.Close()
}
