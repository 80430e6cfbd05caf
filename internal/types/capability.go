package types

// Kind classifies capability tables by the resource they guard.
type Kind string

const (
	KindStorage Kind = "storage"
	KindNetwork Kind = "network"
	KindSystem  Kind = "system"
)

// Capability describes a named table of host-backed operations that the
// registrar injects into guest global scope before each execution.
type Capability struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Kind        Kind        `json:"kind"`
	Operations  []Operation `json:"operations"`
}

// Operation describes one callable entry in a capability table.
type Operation struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
	Returns     string  `json:"returns"`
	// Mutating marks write-style operations. The engine does not enforce
	// approval for them; hosts are expected to gate them out of band.
	Mutating bool `json:"mutating"`
}

// Param describes an operation parameter.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Context carries per-execution identity into capability operations.
type Context struct {
	ExecutionID string `json:"execution_id"`
	// Namespace scopes stateful capabilities (key-value storage) so that
	// unrelated hosts never observe each other's data.
	Namespace string `json:"namespace"`
}

// Result is the outcome of one capability operation. Data must be plain
// cloneable values only; it is the sole thing that crosses back over the
// isolation boundary.
type Result struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   *string                `json:"error,omitempty"`
}

// Ok builds a successful result.
func Ok(data map[string]interface{}) *Result {
	return &Result{Success: true, Data: data}
}

// Fail builds a failed result with a message.
func Fail(msg string) *Result {
	return &Result{Success: false, Error: &msg}
}
