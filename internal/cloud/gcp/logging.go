package gcp

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Severity levels for structured logs
type Severity string

const (
	SeverityDefault  Severity = "DEFAULT"
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// component is the label every entry carries.
const component = "crowdplay-controller"

// LogEntry represents a structured log entry for Cloud Logging
type LogEntry struct {
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id"`
	Round     int                    `json:"round"`
	Labels    map[string]string      `json:"labels,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LoggerInterface defines the interface for structured logging operations
type LoggerInterface interface {
	Log(severity Severity, message string, fields map[string]interface{})
	LogInfo(message string)
	LogWarning(message string)
	LogError(message string)
	SetRound(round int)
	Flush() error
	Close() error
}

// CloudLogger writes structured JSON compatible with the Cloud Logging agent.
// On GCP VMs the agent picks entries up from stderr and forwards them with
// their severity and labels; elsewhere the same lines go to stdout.
type CloudLogger struct {
	writer    io.Writer
	sessionID string
	round     int
	labels    map[string]string
	mu        sync.Mutex
	closed    bool
	flushFn   func() error
	now       func() time.Time
}

// CloudLoggerOption allows configuring the CloudLogger
type CloudLoggerOption func(*CloudLogger)

// WithLabels adds custom labels to all log entries
func WithLabels(labels map[string]string) CloudLoggerOption {
	return func(cl *CloudLogger) {
		for k, v := range labels {
			cl.labels[k] = v
		}
	}
}

// WithRound sets the starting round number
func WithRound(round int) CloudLoggerOption {
	return func(cl *CloudLogger) {
		cl.round = round
	}
}

// WithWriter sets a custom writer for log output
func WithWriter(w io.Writer) CloudLoggerOption {
	return func(cl *CloudLogger) {
		cl.writer = w
	}
}

// WithFlushFunc sets a custom flush function
func WithFlushFunc(fn func() error) CloudLoggerOption {
	return func(cl *CloudLogger) {
		cl.flushFn = fn
	}
}

// NewCloudLogger creates a logger writing structured JSON to stderr.
func NewCloudLogger(sessionID string, opts ...CloudLoggerOption) *CloudLogger {
	cl := &CloudLogger{
		writer:    os.Stderr,
		sessionID: sessionID,
		labels: map[string]string{
			"session_id": sessionID,
			"component":  component,
		},
		now: time.Now,
	}

	for _, opt := range opts {
		opt(cl)
	}

	return cl
}

// Log writes a structured log entry. Messages are passed through
// SanitizeForLog first.
func (cl *CloudLogger) Log(severity Severity, message string, fields map[string]interface{}) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed || cl.writer == nil {
		return
	}

	entry := LogEntry{
		Severity:  severity,
		Message:   SanitizeForLog(message),
		Timestamp: cl.now().UTC(),
		SessionID: cl.sessionID,
		Round:     cl.round,
		Labels:    cl.labels,
		Fields:    fields,
	}

	fmt.Fprintln(cl.writer, FormatLogEntry(entry))
}

// LogInfo writes an INFO level log entry
func (cl *CloudLogger) LogInfo(message string) {
	cl.Log(SeverityInfo, message, nil)
}

// LogWarning writes a WARNING level log entry
func (cl *CloudLogger) LogWarning(message string) {
	cl.Log(SeverityWarning, message, nil)
}

// LogError writes an ERROR level log entry
func (cl *CloudLogger) LogError(message string) {
	cl.Log(SeverityError, message, nil)
}

// SetRound updates the round number for subsequent logs
func (cl *CloudLogger) SetRound(round int) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.round = round
}

// Flush ensures all buffered logs are written
func (cl *CloudLogger) Flush() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return nil
	}
	return cl.flush()
}

func (cl *CloudLogger) flush() error {
	if cl.flushFn != nil {
		return cl.flushFn()
	}
	if syncer, ok := cl.writer.(interface{ Sync() error }); ok {
		return syncer.Sync()
	}
	return nil
}

// Close flushes remaining logs and marks the logger as closed
func (cl *CloudLogger) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return nil
	}
	cl.closed = true
	if cl.flushFn != nil {
		return cl.flushFn()
	}
	return nil
}

// FormatLogEntry formats a LogEntry as a JSON string
func FormatLogEntry(entry LogEntry) string {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"severity":"ERROR","message":"failed to marshal log entry: %v"}`, err)
	}
	return string(data)
}

// NewLogger picks the output for the environment: stderr on GCP, where the
// logging agent reads it, stdout otherwise.
func NewLogger(sessionID string, opts ...CloudLoggerOption) *CloudLogger {
	if !IsRunningOnGCP() {
		opts = append([]CloudLoggerOption{WithWriter(os.Stdout)}, opts...)
	}
	return NewCloudLogger(sessionID, opts...)
}

var _ LoggerInterface = (*CloudLogger)(nil)

var (
	bearerPattern = regexp.MustCompile(`Bearer [A-Za-z0-9\-_.=]+`)
	oauthPattern  = regexp.MustCompile(`oauth_(token|signature|consumer_key)="?[^",&\s]+"?`)
)

// SanitizeForLog masks credentials that may end up in error text: bearer
// tokens and OAuth 1.0a header parameters.
func SanitizeForLog(s string) string {
	if !strings.Contains(s, "Bearer ") && !strings.Contains(s, "oauth_") {
		return s
	}
	s = bearerPattern.ReplaceAllString(s, "Bearer [REDACTED]")
	return oauthPattern.ReplaceAllString(s, "oauth_$1=[REDACTED]")
}
