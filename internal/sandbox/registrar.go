package sandbox

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/scriptbox/scriptbox/internal/capability"
	"github.com/scriptbox/scriptbox/internal/shared/id"
	"github.com/scriptbox/scriptbox/internal/types"
)

// Registrar populates the guest global namespace before every execution.
// Capability tables are built from scratch inside the VM each time, so no
// capability state survives from one script to the next and no function
// value ever crosses the boundary.
type Registrar struct {
	registry      *capability.Registry
	calls         chan<- *HostCall
	enableConsole bool
}

func newRegistrar(registry *capability.Registry, calls chan<- *HostCall, enableConsole bool) *Registrar {
	return &Registrar{
		registry:      registry,
		calls:         calls,
		enableConsole: enableConsole,
	}
}

// Install sets up bindings, console and capability tables for one
// execution. Any error aborts before guest code runs (fail-closed).
// Caller bindings go in first; capability tables are installed last so
// reserved names always shadow caller-supplied values.
func (r *Registrar) Install(vm *goja.Runtime, exec *execState, msg Inbound) error {
	bindings, err := SanitizeBindings(msg.InitialBindings)
	if err != nil {
		return fmt.Errorf("initial bindings: %w", err)
	}
	for name, value := range bindings {
		if err := vm.Set(name, value); err != nil {
			return fmt.Errorf("binding %q: %w", name, err)
		}
	}

	if r.enableConsole {
		if err := r.installConsole(vm, exec); err != nil {
			return fmt.Errorf("console: %w", err)
		}
	}

	if !msg.IncludeCapabilities || r.registry == nil {
		return nil
	}

	for _, def := range r.registry.List() {
		table := vm.NewObject()
		for _, op := range def.Operations {
			name, err := operationName(op.ID, def.ID)
			if err != nil {
				return err
			}
			if err := table.Set(name, r.makeOperation(vm, exec, op.ID)); err != nil {
				return fmt.Errorf("capability %s: %w", op.ID, err)
			}
		}
		if err := vm.Set(def.ID, table); err != nil {
			return fmt.Errorf("capability table %q: %w", def.ID, err)
		}
	}

	return nil
}

// makeOperation builds the native function backing one capability
// operation. Calling it from guest code suspends that script on a oneshot
// reply channel until the host round-trip completes; termination unblocks
// the waiter, after which the VM observes the pending interrupt.
func (r *Registrar) makeOperation(vm *goja.Runtime, exec *execState, opID string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		params, err := exportParams(call)
		if err != nil {
			panic(vm.NewGoError(fmt.Errorf("%s: %w", opID, err)))
		}

		hc := &HostCall{
			ID:          id.NewCallID(),
			ExecutionID: exec.id,
			Operation:   opID,
			Params:      params,
			Namespace:   exec.namespace,
			Reply:       make(chan *types.Result, 1),
		}

		select {
		case r.calls <- hc:
		case <-exec.interrupt:
			return goja.Undefined()
		}

		select {
		case result := <-hc.Reply:
			if !result.Success {
				msg := "capability operation failed"
				if result.Error != nil {
					msg = *result.Error
				}
				panic(vm.NewGoError(errors.New(msg)))
			}
			return vm.ToValue(result.Data)
		case <-exec.interrupt:
			return goja.Undefined()
		}
	}
}

// exportParams converts guest arguments to a plain-data parameter map.
// Operations take a single object argument; bare scalars are wrapped
// under "value" and multiple arguments under "args".
func exportParams(call goja.FunctionCall) (map[string]interface{}, error) {
	switch len(call.Arguments) {
	case 0:
		return map[string]interface{}{}, nil
	case 1:
		exported, err := Sanitize(call.Arguments[0].Export())
		if err != nil {
			return nil, err
		}
		if m, ok := exported.(map[string]interface{}); ok {
			return m, nil
		}
		return map[string]interface{}{"value": exported}, nil
	default:
		args := make([]interface{}, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			exported, err := Sanitize(arg.Export())
			if err != nil {
				return nil, err
			}
			args = append(args, exported)
		}
		return map[string]interface{}{"args": args}, nil
	}
}

func (r *Registrar) installConsole(vm *goja.Runtime, exec *execState) error {
	console := vm.NewObject()
	for _, level := range []string{"log", "warn", "error", "info"} {
		if err := console.Set(level, makeConsoleFunc(exec, level)); err != nil {
			return err
		}
	}
	return vm.Set("console", console)
}

func makeConsoleFunc(exec *execState, level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var sb strings.Builder
		for i, arg := range call.Arguments {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(arg.String())
		}

		exec.consoleMu.Lock()
		exec.console = append(exec.console, LogEntry{
			Level:   level,
			Message: sb.String(),
			Time:    time.Now(),
		})
		exec.consoleMu.Unlock()

		return goja.Undefined()
	}
}

func operationName(opID, tableID string) (string, error) {
	prefix := tableID + "."
	if !strings.HasPrefix(opID, prefix) || len(opID) == len(prefix) {
		return "", fmt.Errorf("operation %q does not belong to table %q", opID, tableID)
	}
	return opID[len(prefix):], nil
}
