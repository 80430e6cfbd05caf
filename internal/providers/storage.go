// Package providers implements the reference capability tables exposed to
// guest scripts: a key-value store, an outbound data fetcher and read-only
// host info. Each is a named table of host-backed operations; only plain
// data crosses into and out of them.
package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/scriptbox/scriptbox/internal/types"
)

// Store provides namespaced key-value storage. Namespaces keep unrelated
// hosts (and their scripts) from observing each other's data.
type Store struct {
	spaces sync.Map // namespace -> *namespaceData
}

type namespaceData struct {
	mu   sync.RWMutex
	data map[string]interface{}
}

// NewStore creates the storage capability.
func NewStore() *Store {
	return &Store{}
}

// Definition returns capability metadata.
func (s *Store) Definition() types.Capability {
	return types.Capability{
		ID:          "store",
		Name:        "Key-Value Store",
		Description: "Namespaced key-value storage for scripts",
		Kind:        types.KindStorage,
		Operations: []types.Operation{
			{
				ID:          "store.set",
				Name:        "Set Value",
				Description: "Store a value by key",
				Params: []types.Param{
					{Name: "key", Type: "string", Description: "Storage key", Required: true},
					{Name: "value", Type: "any", Description: "Value to store", Required: true},
				},
				Returns:  "object",
				Mutating: true,
			},
			{
				ID:          "store.get",
				Name:        "Get Value",
				Description: "Retrieve a value by key",
				Params: []types.Param{
					{Name: "key", Type: "string", Description: "Storage key", Required: true},
				},
				Returns: "object",
			},
			{
				ID:          "store.remove",
				Name:        "Remove Value",
				Description: "Delete a value by key",
				Params: []types.Param{
					{Name: "key", Type: "string", Description: "Storage key", Required: true},
				},
				Returns:  "object",
				Mutating: true,
			},
			{
				ID:          "store.list",
				Name:        "List Keys",
				Description: "List all keys in this namespace",
				Returns:     "object",
			},
			{
				ID:          "store.clear",
				Name:        "Clear Namespace",
				Description: "Remove every key in this namespace",
				Returns:     "object",
				Mutating:    true,
			},
		},
	}
}

// Execute runs a storage operation.
func (s *Store) Execute(_ context.Context, opID string, params map[string]interface{}, execCtx *types.Context) (*types.Result, error) {
	if execCtx == nil || execCtx.Namespace == "" {
		return types.Fail("namespace required for storage operations"), nil
	}
	ns := s.namespace(execCtx.Namespace)

	switch opID {
	case "store.set":
		return ns.set(params)
	case "store.get":
		return ns.get(params)
	case "store.remove":
		return ns.remove(params)
	case "store.list":
		return ns.list()
	case "store.clear":
		return ns.clear()
	default:
		return types.Fail(fmt.Sprintf("unknown operation: %s", opID)), nil
	}
}

func (s *Store) namespace(name string) *namespaceData {
	actual, _ := s.spaces.LoadOrStore(name, &namespaceData{data: make(map[string]interface{})})
	return actual.(*namespaceData)
}

func (n *namespaceData) set(params map[string]interface{}) (*types.Result, error) {
	key, ok := params["key"].(string)
	if !ok || key == "" {
		return types.Fail("key parameter required"), nil
	}
	value, ok := params["value"]
	if !ok {
		return types.Fail("value parameter required"), nil
	}

	n.mu.Lock()
	n.data[key] = value
	n.mu.Unlock()

	return types.Ok(map[string]interface{}{"stored": true, "key": key}), nil
}

func (n *namespaceData) get(params map[string]interface{}) (*types.Result, error) {
	key, ok := params["key"].(string)
	if !ok || key == "" {
		return types.Fail("key parameter required"), nil
	}

	n.mu.RLock()
	value, exists := n.data[key]
	n.mu.RUnlock()

	return types.Ok(map[string]interface{}{"value": value, "exists": exists}), nil
}

func (n *namespaceData) remove(params map[string]interface{}) (*types.Result, error) {
	key, ok := params["key"].(string)
	if !ok || key == "" {
		return types.Fail("key parameter required"), nil
	}

	n.mu.Lock()
	_, existed := n.data[key]
	delete(n.data, key)
	n.mu.Unlock()

	return types.Ok(map[string]interface{}{"removed": existed}), nil
}

func (n *namespaceData) list() (*types.Result, error) {
	n.mu.RLock()
	keys := make([]interface{}, 0, len(n.data))
	for key := range n.data {
		keys = append(keys, key)
	}
	n.mu.RUnlock()

	return types.Ok(map[string]interface{}{"keys": keys, "count": int64(len(keys))}), nil
}

func (n *namespaceData) clear() (*types.Result, error) {
	n.mu.Lock()
	cleared := int64(len(n.data))
	n.data = make(map[string]interface{})
	n.mu.Unlock()

	return types.Ok(map[string]interface{}{"cleared": cleared}), nil
}
