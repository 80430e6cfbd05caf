package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/scriptbox/scriptbox/internal/capability"
	"github.com/scriptbox/scriptbox/internal/logging"
)

var (
	ErrPoolClosed  = errors.New("sandbox pool is closed")
	ErrPoolTimeout = errors.New("sandbox acquisition timeout")
)

const acquireTimeout = 5 * time.Second

// Pool round-robins executions across several managers, each owning its
// own isolation context. It is the concurrency upgrade over a single
// manager, which serializes scripts and suffers head-of-line blocking when
// one script runs long.
type Pool struct {
	managers chan *Manager
	all      []*Manager
	size     int
	mu       sync.RWMutex
	closed   bool
}

// NewPool creates a pool of size managers.
func NewPool(cfg Config, registry *capability.Registry, logger *logging.Logger, recorder Recorder, size int) (*Pool, error) {
	if size <= 0 {
		size = 4
	}

	pool := &Pool{
		managers: make(chan *Manager, size),
		size:     size,
	}

	for i := 0; i < size; i++ {
		mgr, err := NewManager(cfg, registry, logger, recorder)
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.all = append(pool.all, mgr)
		pool.managers <- mgr
	}

	return pool, nil
}

// Acquire takes a manager from the pool, waiting up to a bounded time.
func (p *Pool) Acquire(ctx context.Context) (*Manager, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	select {
	case mgr := <-p.managers:
		return mgr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(acquireTimeout):
		return nil, ErrPoolTimeout
	}
}

// Release returns a manager to the pool.
func (p *Pool) Release(mgr *Manager) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		mgr.Destroy()
		return
	}

	select {
	case p.managers <- mgr:
	default:
		mgr.Destroy()
	}
}

// Execute runs one script through the pool.
func (p *Pool) Execute(ctx context.Context, source string, opts Options) (Outcome, error) {
	mgr, err := p.Acquire(ctx)
	if err != nil {
		return Outcome{}, err
	}
	defer p.Release(mgr)

	return mgr.Execute(ctx, source, opts)
}

// Terminate cancels an in-flight execution wherever it lives. Manager
// termination is idempotent, so broadcasting to every member is safe.
func (p *Pool) Terminate(execID string, reason TerminateReason) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, mgr := range p.all {
		_ = mgr.Terminate(execID, reason)
	}
}

// Pending returns the number of in-flight executions across the pool.
func (p *Pool) Pending() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := 0
	for _, mgr := range p.all {
		total += mgr.Pending()
	}
	return total
}

// Close destroys all managers. Safe to call multiple times.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.managers)
	for range p.managers {
	}

	for _, mgr := range p.all {
		mgr.Destroy()
	}
}

// Stats returns pool statistics.
func (p *Pool) Stats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pending := 0
	for _, mgr := range p.all {
		pending += mgr.Pending()
	}

	return map[string]interface{}{
		"size":      p.size,
		"available": len(p.managers),
		"in_use":    p.size - len(p.managers),
		"pending":   pending,
		"closed":    p.closed,
	}
}
