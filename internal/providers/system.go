package providers

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/scriptbox/scriptbox/internal/types"
)

// System exposes read-only host information to guest scripts. It never
// mutates host state.
type System struct {
	version string
	started time.Time
}

// NewSystem creates the system capability. version is the engine build
// version reported to guests.
func NewSystem(version string) *System {
	return &System{version: version, started: time.Now()}
}

// Definition returns capability metadata.
func (s *System) Definition() types.Capability {
	return types.Capability{
		ID:          "system",
		Name:        "System Info",
		Description: "Read-only host and engine information",
		Kind:        types.KindSystem,
		Operations: []types.Operation{
			{
				ID:          "system.info",
				Name:        "Info",
				Description: "Engine version, platform and uptime",
				Returns:     "object",
			},
			{
				ID:          "system.time",
				Name:        "Time",
				Description: "Current host time",
				Returns:     "object",
			},
			{
				ID:          "system.runtime",
				Name:        "Runtime",
				Description: "Host runtime statistics",
				Returns:     "object",
			},
		},
	}
}

// Execute runs a system operation.
func (s *System) Execute(_ context.Context, opID string, _ map[string]interface{}, _ *types.Context) (*types.Result, error) {
	switch opID {
	case "system.info":
		return s.info(), nil
	case "system.time":
		return s.time(), nil
	case "system.runtime":
		return s.runtimeStats(), nil
	default:
		return types.Fail(fmt.Sprintf("unknown operation: %s", opID)), nil
	}
}

func (s *System) info() *types.Result {
	return types.Ok(map[string]interface{}{
		"version":   s.version,
		"os":        runtime.GOOS,
		"arch":      runtime.GOARCH,
		"uptime_ms": int64(time.Since(s.started) / time.Millisecond),
	})
}

func (s *System) time() *types.Result {
	now := time.Now()
	return types.Ok(map[string]interface{}{
		"unix_ms": now.UnixMilli(),
		"iso":     now.UTC().Format(time.RFC3339Nano),
		"zone":    now.Location().String(),
	})
}

func (s *System) runtimeStats() *types.Result {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return types.Ok(map[string]interface{}{
		"goroutines":     int64(runtime.NumGoroutine()),
		"cpus":           int64(runtime.NumCPU()),
		"heap_alloc":     int64(mem.HeapAlloc),
		"heap_objects":   int64(mem.HeapObjects),
		"gc_cycles":      int64(mem.NumGC),
		"go_version":     runtime.Version(),
		"next_gc_target": int64(mem.NextGC),
	})
}
