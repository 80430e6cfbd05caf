package sandbox

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/scriptbox/scriptbox/internal/logging"
	"github.com/scriptbox/scriptbox/internal/shared/id"
)

// State is the isolation-context lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateExecuting
	StateCrashed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// execState is the per-execution scratch shared between the driver and the
// capability functions of one script run.
type execState struct {
	id        string
	namespace string

	// interrupt is closed exactly once when the execution is being torn
	// down; capability waiters select on it so termination stays
	// deliverable while a script is parked on a host round-trip.
	interrupt     chan struct{}
	interruptOnce sync.Once

	console   []LogEntry
	consoleMu sync.Mutex
}

func (e *execState) abort() {
	e.interruptOnce.Do(func() { close(e.interrupt) })
}

// Context hosts exactly one guest interpreter and executes one script at a
// time. It is not internally concurrent: the manager serializes work
// through the inbox. Crashed is terminal; the owner builds a new Context.
type Context struct {
	id        id.ContextID
	cfg       Config
	registrar *Registrar
	logger    *logging.Logger

	vm    *goja.Runtime
	newVM func() (*goja.Runtime, error)
	state atomic.Int32

	inbox  chan Inbound  // execute requests, processed in dispatch order
	ctl    chan Inbound  // terminate requests, deliverable mid-execution
	outbox chan Outbound

	stop     chan struct{}
	stopOnce sync.Once
}

// NewContext creates and initializes a fresh isolation context. A non-nil
// error here is the crash case: the owner must treat the instance as
// unusable.
func NewContext(cfg Config, registrar *Registrar, logger *logging.Logger) (*Context, error) {
	c := &Context{
		id:        id.NewContextID(),
		cfg:       cfg,
		registrar: registrar,
		logger:    logger,
		newVM:     func() (*goja.Runtime, error) { return buildVM(cfg) },
		inbox:     make(chan Inbound, 64),
		ctl:       make(chan Inbound, 8),
		outbox:    make(chan Outbound, 64),
		stop:      make(chan struct{}),
	}

	if err := c.initialize(); err != nil {
		c.state.Store(int32(StateCrashed))
		return nil, err
	}

	go c.loop()
	return c, nil
}

// ID returns the context identifier.
func (c *Context) ID() id.ContextID { return c.id }

// State returns the current lifecycle state.
func (c *Context) State() State { return State(c.state.Load()) }

// Outbox exposes the context-to-host message stream. It is closed when the
// context stops, deliberately or by crash.
func (c *Context) Outbox() <-chan Outbound { return c.outbox }

// Send delivers an inbound message, routing termination onto the control
// channel so it remains deliverable while a script is running.
func (c *Context) Send(msg Inbound) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if c.State() == StateCrashed {
		return fmt.Errorf("context %s has crashed", c.id)
	}

	target := c.inbox
	if msg.Type == MsgTerminate {
		target = c.ctl
	}

	select {
	case target <- msg:
		return nil
	case <-c.stop:
		return fmt.Errorf("context %s is stopped", c.id)
	}
}

// Close stops the context. Safe to call multiple times.
func (c *Context) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// initialize builds a fresh interpreter. Idempotent: a live VM is kept.
func (c *Context) initialize() error {
	if c.vm != nil {
		return nil
	}

	vm, err := c.newVM()
	if err != nil {
		return err
	}

	c.vm = vm
	c.state.Store(int32(StateReady))
	return nil
}

func buildVM(cfg Config) (*goja.Runtime, error) {
	vm := goja.New()
	if cfg.MaxCallStack > 0 {
		vm.SetMaxCallStackSize(cfg.MaxCallStack)
	}
	if err := hardenGlobals(vm); err != nil {
		return nil, fmt.Errorf("harden globals: %w", err)
	}
	return vm, nil
}

// reset discards the interpreter and builds a pristine one. Called after
// every execution so no guest-visible state survives into the next script.
// A failed rebuild is a crash: the context closes itself so its owner
// observes the closed outbox and runs the restart path.
func (c *Context) reset() {
	c.vm = nil
	if err := c.initialize(); err != nil {
		c.state.Store(int32(StateCrashed))
		c.logger.Error("context reset failed", zap.String("context_id", c.id.String()), zap.Error(err))
		c.Close()
	}
}

func (c *Context) loop() {
	defer func() {
		if r := recover(); r != nil {
			c.state.Store(int32(StateCrashed))
			c.logger.Error("context loop panicked", zap.String("context_id", c.id.String()), zap.Any("panic", r))
		}
		close(c.outbox)
	}()

	for {
		select {
		case <-c.stop:
			return
		case msg := <-c.inbox:
			if msg.Type != MsgExecute {
				continue
			}
			outcome := c.runOne(msg)
			select {
			case c.outbox <- Outbound{Type: MsgResult, Outcome: outcome}:
			case <-c.stop:
				return
			}
		case <-c.ctl:
			// Stale terminate while idle: the execution already settled.
		}
	}
}

// runOne executes a single script to completion, error or termination and
// guarantees the interpreter is pristine afterwards.
func (c *Context) runOne(msg Inbound) Outcome {
	exec := &execState{
		id:        msg.ID,
		namespace: msg.Namespace,
		interrupt: make(chan struct{}),
	}

	// Capability tables and bindings are rebuilt from scratch before any
	// guest code runs. Failure aborts the execution fail-closed.
	if err := c.registrar.Install(c.vm, exec, msg); err != nil {
		c.reset()
		return failure(msg.ID, KindRuntimeError, fmt.Sprintf("capability registration failed: %v", err), 0)
	}

	c.state.Store(int32(StateExecuting))
	outcome := c.race(exec, msg)
	exec.abort()

	// Reset unconditionally: even a successful script may have defined
	// globals or redefined built-ins that must not be observable by the
	// next, unrelated script.
	c.reset()

	outcome.Console = exec.snapshotConsole()
	return outcome
}

func (e *execState) snapshotConsole() []LogEntry {
	e.consoleMu.Lock()
	defer e.consoleMu.Unlock()
	if len(e.console) == 0 {
		return nil
	}
	return append([]LogEntry{}, e.console...)
}

// hardenGlobals removes host escape hatches from a fresh interpreter.
func hardenGlobals(vm *goja.Runtime) error {
	for _, name := range []string{"require", "process", "module", "exports", "eval"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	// Timers are no-ops: guest code cannot schedule work past its own
	// settlement.
	noop := func(call goja.FunctionCall) goja.Value { return goja.Undefined() }
	if err := vm.Set("setTimeout", noop); err != nil {
		return err
	}
	if err := vm.Set("setInterval", noop); err != nil {
		return err
	}

	// Block the Function-constructor route to dynamic evaluation.
	_, err := vm.RunString(`(function() {
		try {
			Object.defineProperty(Function.prototype, 'constructor', {
				value: function() { throw new TypeError('Function constructor is disabled'); },
				writable: false,
				configurable: false
			});
		} catch (e) {}
	})();`)
	return err
}
