package sandbox

import (
	"errors"
	"time"
)

// ErrorKind classifies execution failures.
type ErrorKind string

const (
	KindRuntimeError   ErrorKind = "RuntimeError"
	KindSyntaxError    ErrorKind = "SyntaxError"
	KindTimeout        ErrorKind = "Timeout"
	KindTerminated     ErrorKind = "Terminated"
	KindTransportError ErrorKind = "TransportError"
)

// TerminateReason is carried on explicit termination requests.
type TerminateReason string

const (
	ReasonTimeout     TerminateReason = "Timeout"
	ReasonMemoryLimit TerminateReason = "MemoryLimit"
	ReasonManual      TerminateReason = "Manual"
)

// Valid reports whether the reason is one of the recognized values.
func (r TerminateReason) Valid() bool {
	switch r {
	case ReasonTimeout, ReasonMemoryLimit, ReasonManual:
		return true
	}
	return false
}

var (
	ErrDestroyed = errors.New("sandbox manager is destroyed")
	// ErrEngineFailed means a fresh isolation context could not be built
	// after a crash. The engine is unusable, as opposed to a single script
	// having failed.
	ErrEngineFailed = errors.New("sandbox engine failed: context cannot be rebuilt")
	ErrEmptySource  = errors.New("script source cannot be empty")
)

// Config defines engine configuration.
type Config struct {
	DeadlineMs      int64         // Default per-execution deadline
	OuterBufferMs   int64         // Outer-guard slack over the inner deadline
	MaxCallStack    int           // Interpreter call-stack depth limit
	EnableConsole   bool          // Expose console.log/warn/error to guests
	HostCallTimeout time.Duration // Upper bound for one host round-trip
}

// DefaultConfig returns production-ready engine configuration.
func DefaultConfig() Config {
	return Config{
		DeadlineMs:      5000,
		OuterBufferMs:   250,
		MaxCallStack:    1024,
		EnableConsole:   true,
		HostCallTimeout: 10 * time.Second,
	}
}

// Options configures one execution.
type Options struct {
	// DeadlineMs overrides the configured default when positive.
	DeadlineMs int64
	// InitialBindings are extra plain-data globals. Reserved capability
	// table names always win on collision.
	InitialBindings map[string]interface{}
	// IncludeCapabilities controls whether capability tables are
	// registered at all. Nil means true.
	IncludeCapabilities *bool
	// Namespace scopes stateful capabilities for this execution. Empty
	// means "default".
	Namespace string
}

func (o Options) includeCapabilities() bool {
	return o.IncludeCapabilities == nil || *o.IncludeCapabilities
}

// LogEntry is one captured console line.
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Outcome is the single result produced for one execution. Exactly one
// Outcome exists per submission, correlated by ID.
type Outcome struct {
	ID        string      `json:"id"`
	Success   bool        `json:"success"`
	Value     interface{} `json:"value,omitempty"`
	ErrorKind ErrorKind   `json:"error_kind,omitempty"`
	Message   string      `json:"message,omitempty"`
	Stack     string      `json:"stack,omitempty"`
	ElapsedMs int64       `json:"elapsed_ms"`
	Console   []LogEntry  `json:"console,omitempty"`
}

// Failed reports whether the outcome is a failure of the given kind.
func (o Outcome) Failed(kind ErrorKind) bool {
	return !o.Success && o.ErrorKind == kind
}

func success(id string, value interface{}, elapsed time.Duration, console []LogEntry) Outcome {
	return Outcome{
		ID:        id,
		Success:   true,
		Value:     value,
		ElapsedMs: elapsed.Milliseconds(),
		Console:   console,
	}
}

func failure(id string, kind ErrorKind, message string, elapsed time.Duration) Outcome {
	return Outcome{
		ID:        id,
		Success:   false,
		ErrorKind: kind,
		Message:   message,
		ElapsedMs: elapsed.Milliseconds(),
	}
}

// Recorder receives engine events for metrics. Implementations must be
// safe for concurrent use.
type Recorder interface {
	RecordExecution(kind ErrorKind, success bool, d time.Duration)
	RecordHostCall(op string, success bool, d time.Duration)
	RecordContextRestart()
}

type nopRecorder struct{}

func (nopRecorder) RecordExecution(ErrorKind, bool, time.Duration) {}
func (nopRecorder) RecordHostCall(string, bool, time.Duration)    {}
func (nopRecorder) RecordContextRestart()                         {}
