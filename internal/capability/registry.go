// Package capability manages the named tables of host-backed operations
// exposed to guest scripts.
package capability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/scriptbox/scriptbox/internal/types"
)

// Provider is implemented by every host capability table.
type Provider interface {
	Definition() types.Capability
	Execute(ctx context.Context, opID string, params map[string]interface{}, execCtx *types.Context) (*types.Result, error)
}

// Registry manages capability discovery and execution.
type Registry struct {
	providers sync.Map
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a capability provider. The table ID becomes the reserved
// global name under which the registrar exposes it to guest code.
func (r *Registry) Register(provider Provider) error {
	def := provider.Definition()
	if def.ID == "" {
		return fmt.Errorf("capability ID cannot be empty")
	}
	if strings.Contains(def.ID, ".") {
		return fmt.Errorf("capability ID %q must not contain '.'", def.ID)
	}

	r.providers.Store(def.ID, provider)
	return nil
}

// Unregister removes a capability provider.
func (r *Registry) Unregister(capabilityID string) {
	r.providers.Delete(capabilityID)
}

// Get retrieves a provider by capability ID.
func (r *Registry) Get(capabilityID string) (Provider, bool) {
	val, ok := r.providers.Load(capabilityID)
	if !ok {
		return nil, false
	}
	return val.(Provider), true
}

// Names returns the reserved table names in deterministic order.
func (r *Registry) Names() []string {
	var names []string
	r.providers.Range(func(key, _ interface{}) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// List returns all registered capability definitions.
func (r *Registry) List() []types.Capability {
	var caps []types.Capability
	r.providers.Range(func(_, value interface{}) bool {
		caps = append(caps, value.(Provider).Definition())
		return true
	})
	sort.Slice(caps, func(i, j int) bool { return caps[i].ID < caps[j].ID })
	return caps
}

// Execute runs one capability operation. Operation IDs are "table.op".
func (r *Registry) Execute(ctx context.Context, opID string, params map[string]interface{}, execCtx *types.Context) (*types.Result, error) {
	parts := strings.SplitN(opID, ".", 2)
	if len(parts) < 2 {
		return types.Fail("invalid operation ID format"), fmt.Errorf("invalid operation ID format: %s", opID)
	}

	provider, ok := r.Get(parts[0])
	if !ok {
		return types.Fail(fmt.Sprintf("capability not found: %s", parts[0])), fmt.Errorf("capability not found: %s", parts[0])
	}

	return provider.Execute(ctx, opID, params, execCtx)
}

// Stats returns registry statistics.
func (r *Registry) Stats() map[string]interface{} {
	var total, totalOps int
	kinds := make(map[string]int)

	r.providers.Range(func(_, value interface{}) bool {
		def := value.(Provider).Definition()
		total++
		totalOps += len(def.Operations)
		kinds[string(def.Kind)]++
		return true
	})

	return map[string]interface{}{
		"total_capabilities": total,
		"total_operations":   totalOps,
		"kinds":              kinds,
	}
}
