// Package id provides centralized ID generation for the sandbox service.
//
// This package offers type-safe ULID generation with:
//   - Lexicographic sortability: outcomes can be ordered by submission time
//   - Prefixed types: type-specific prefixes for debugging (exec_*, call_*, ctx_*)
//   - Type safety: separate types prevent ID misuse across subsystems
//
// Design principles:
//   - ULIDs only: single ID format across the entire service
//   - K-sortable: timeline queries without extra timestamps
//   - Debuggable: prefixes make logs readable
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ExecutionID identifies one script submission. Uniqueness per manager
// instance is the only invariant callers may rely on.
type ExecutionID string

// CallID identifies one guest-to-host capability call.
type CallID string

// ContextID identifies an isolation context instance.
type ContextID string

const (
	ExecutionPrefix = "exec"
	CallPrefix      = "call"
	ContextPrefix   = "ctx"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string.
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewExecutionID generates a new execution ID.
func NewExecutionID() ExecutionID {
	return ExecutionID(Default().GenerateWithPrefix(ExecutionPrefix))
}

// NewCallID generates a new host-call correlation ID.
func NewCallID() CallID {
	return CallID(Default().GenerateWithPrefix(CallPrefix))
}

// NewContextID generates a new isolation-context ID.
func NewContextID() ContextID {
	return ContextID(Default().GenerateWithPrefix(ContextPrefix))
}

func (id ExecutionID) String() string { return string(id) }
func (id CallID) String() string      { return string(id) }
func (id ContextID) String() string   { return string(id) }

// IsValid checks if an ID string (without prefix) is a valid ULID.
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Parse parses a ULID string.
func Parse(id string) (ulid.ULID, error) {
	return ulid.Parse(id)
}

// Timestamp extracts the timestamp from a ULID.
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
