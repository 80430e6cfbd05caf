package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scriptbox/scriptbox/internal/capability"
	"github.com/scriptbox/scriptbox/internal/logging"
	"github.com/scriptbox/scriptbox/internal/shared/id"
)

// pendingEntry tracks one in-flight execution on the manager side.
type pendingEntry struct {
	done  chan Outcome // buffered; receives exactly one outcome
	timer *time.Timer  // outer guard, guarded by Manager.mu
}

// Manager is the host-facing entry point. It owns one isolation context,
// assigns execution IDs, tracks in-flight executions and applies an outer
// timeout independent of the context's inner one. Concurrent Execute calls
// are queued at the message-channel level and processed in dispatch order.
type Manager struct {
	cfg      Config
	logger   *logging.Logger
	recorder Recorder
	registry *capability.Registry
	disp     *dispatcher

	mu        sync.Mutex
	ctx       *Context
	pending   map[string]*pendingEntry
	destroyed bool
	failed    bool
}

// NewManager creates a manager with a freshly initialized isolation
// context. registry and recorder may be nil.
func NewManager(cfg Config, registry *capability.Registry, logger *logging.Logger, recorder Recorder) (*Manager, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	def := DefaultConfig()
	if cfg.DeadlineMs <= 0 {
		cfg.DeadlineMs = def.DeadlineMs
	}
	if cfg.OuterBufferMs <= 0 {
		cfg.OuterBufferMs = def.OuterBufferMs
	}
	if cfg.MaxCallStack <= 0 {
		cfg.MaxCallStack = def.MaxCallStack
	}
	if cfg.HostCallTimeout <= 0 {
		cfg.HostCallTimeout = def.HostCallTimeout
	}

	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
		registry: registry,
		pending:  make(map[string]*pendingEntry),
	}
	m.disp = newDispatcher(registry, cfg.HostCallTimeout, recorder)

	ctx, err := m.newContext()
	if err != nil {
		m.disp.close()
		return nil, fmt.Errorf("initialize isolation context: %w", err)
	}
	m.ctx = ctx
	go m.collect(ctx)

	return m, nil
}

func (m *Manager) newContext() (*Context, error) {
	registrar := newRegistrar(m.registry, m.disp.calls, m.cfg.EnableConsole)
	return NewContext(m.cfg, registrar, m.logger)
}

// Submit dispatches one script and returns its execution ID plus a channel
// that receives exactly one Outcome. Function values (or any other
// non-cloneable data) in the initial bindings are rejected here, before
// anything reaches the isolation context.
func (m *Manager) Submit(source string, opts Options) (id.ExecutionID, <-chan Outcome, error) {
	if source == "" {
		return "", nil, ErrEmptySource
	}

	bindings, err := SanitizeBindings(opts.InitialBindings)
	if err != nil {
		return "", nil, fmt.Errorf("initial bindings: %w", err)
	}

	deadline := opts.DeadlineMs
	if deadline <= 0 {
		deadline = m.cfg.DeadlineMs
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "default"
	}

	execID := id.NewExecutionID()
	msg := Inbound{
		Type:                MsgExecute,
		ID:                  execID.String(),
		Source:              source,
		DeadlineMs:          deadline,
		InitialBindings:     bindings,
		IncludeCapabilities: opts.includeCapabilities(),
		Namespace:           namespace,
	}

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return "", nil, ErrDestroyed
	}
	if m.failed {
		m.mu.Unlock()
		return "", nil, ErrEngineFailed
	}
	ctx := m.ctx
	entry := &pendingEntry{done: make(chan Outcome, 1)}
	m.pending[msg.ID] = entry
	m.mu.Unlock()

	// Outer guard: deadline plus a buffer for cross-boundary messaging, so
	// it never beats the inner deadline under normal conditions. If it
	// fires first the manager synthesizes the timeout itself and tells the
	// context to stop; it does not wait for the context's own reply.
	outer := time.Duration(deadline+m.cfg.OuterBufferMs) * time.Millisecond
	timer := time.AfterFunc(outer, func() {
		if m.settle(msg.ID, failure(msg.ID, KindTimeout, "outer deadline exceeded", outer)) {
			m.recorder.RecordExecution(KindTimeout, false, outer)
			_ = ctx.Send(Inbound{Type: MsgTerminate, ID: msg.ID, Reason: ReasonTimeout})
		}
	})

	m.mu.Lock()
	if e, ok := m.pending[msg.ID]; ok {
		e.timer = timer
	} else {
		timer.Stop()
	}
	m.mu.Unlock()

	if err := ctx.Send(msg); err != nil {
		m.settle(msg.ID, failure(msg.ID, KindTransportError, err.Error(), 0))
	}

	return execID, entry.done, nil
}

// Execute dispatches a script and blocks for its outcome. Cancelling ctx
// terminates the execution.
func (m *Manager) Execute(ctx context.Context, source string, opts Options) (Outcome, error) {
	execID, done, err := m.Submit(source, opts)
	if err != nil {
		return Outcome{}, err
	}

	select {
	case outcome := <-done:
		return outcome, nil
	case <-ctx.Done():
		_ = m.Terminate(execID.String(), ReasonManual)
		return <-done, nil
	}
}

// Terminate cancels an in-flight execution. Idempotent: terminating an
// unknown or already-settled execution is a no-op.
func (m *Manager) Terminate(execID string, reason TerminateReason) error {
	if !reason.Valid() {
		reason = ReasonManual
	}

	m.mu.Lock()
	ctx := m.ctx
	destroyed := m.destroyed
	m.mu.Unlock()
	if destroyed {
		return nil
	}

	if m.settle(execID, failure(execID, KindTerminated, fmt.Sprintf("terminated: %s", reason), 0)) {
		if ctx != nil {
			_ = ctx.Send(Inbound{Type: MsgTerminate, ID: execID, Reason: reason})
		}
	}
	return nil
}

// Destroy tears down the context and fails every still-pending execution
// with a Terminated outcome. Safe to call multiple times.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	ctx := m.ctx
	entries := m.pending
	m.pending = make(map[string]*pendingEntry)
	for _, entry := range entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	m.mu.Unlock()

	for execID, entry := range entries {
		entry.done <- failure(execID, KindTerminated, "sandbox destroyed", 0)
	}

	if ctx != nil {
		ctx.Close()
	}
	m.disp.close()
	m.logger.Info("sandbox manager destroyed")
}

// Pending returns the number of in-flight executions.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Stats returns manager statistics.
func (m *Manager) Stats() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := "destroyed"
	if !m.destroyed && m.ctx != nil {
		state = m.ctx.State().String()
	}
	if m.failed {
		state = "failed"
	}

	return map[string]interface{}{
		"pending":       len(m.pending),
		"context_state": state,
		"deadline_ms":   m.cfg.DeadlineMs,
	}
}

// settle resolves the pending entry for execID, if still present. Returns
// false when the entry already settled: the two timeout layers and manual
// termination all funnel through here, so whichever fires first wins and
// the loser's effect is a no-op.
func (m *Manager) settle(execID string, outcome Outcome) bool {
	m.mu.Lock()
	entry, ok := m.pending[execID]
	if ok {
		delete(m.pending, execID)
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	entry.done <- outcome
	return true
}

// collect drains one context's outbox, resolving pending entries by ID.
// Outcomes are correlated by ID, never by order. A closed outbox without a
// deliberate shutdown is a crash: every pending entry fails with
// TransportError and the manager attempts one automatic restart.
func (m *Manager) collect(ctx *Context) {
	for out := range ctx.Outbox() {
		if out.Type != MsgResult {
			continue
		}
		outcome := out.Outcome
		m.recorder.RecordExecution(outcome.ErrorKind, outcome.Success, time.Duration(outcome.ElapsedMs)*time.Millisecond)
		m.settle(outcome.ID, outcome)
	}

	m.mu.Lock()
	deliberate := m.destroyed || ctx != m.ctx
	m.mu.Unlock()
	if deliberate {
		return
	}

	m.handleCrash(ctx)
}

func (m *Manager) handleCrash(crashed *Context) {
	m.logger.Error("isolation context crashed",
		zap.String("context_id", crashed.ID().String()))

	m.mu.Lock()
	entries := m.pending
	m.pending = make(map[string]*pendingEntry)
	for _, entry := range entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	m.mu.Unlock()

	for execID, entry := range entries {
		entry.done <- failure(execID, KindTransportError, "isolation context crashed", 0)
	}

	crashed.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}

	// One automatic restart. Individual scripts are never retried: their
	// side effects may not be idempotent.
	next, err := m.newContext()
	if err != nil {
		m.failed = true
		m.logger.Error("context restart failed, engine unusable", zap.Error(err))
		return
	}
	m.ctx = next
	m.recorder.RecordContextRestart()
	go m.collect(next)
	m.logger.Info("isolation context restarted",
		zap.String("context_id", next.ID().String()))
}
