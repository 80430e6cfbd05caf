package sandbox

import (
	"context"
	"time"

	"github.com/scriptbox/scriptbox/internal/capability"
	"github.com/scriptbox/scriptbox/internal/shared/id"
	"github.com/scriptbox/scriptbox/internal/types"
)

// HostCall is an operation request emitted by a capability function
// running inside a context. Params and the reply carry plain data only;
// the reply channel itself never leaves the host process.
type HostCall struct {
	ID          id.CallID
	ExecutionID string
	Operation   string
	Params      map[string]interface{}
	Namespace   string
	Reply       chan *types.Result
}

// dispatcher executes host calls against the capability registry. It runs
// manager-side so capability behavior stays on the host side of the
// boundary.
type dispatcher struct {
	registry *capability.Registry
	timeout  time.Duration
	recorder Recorder
	calls    chan *HostCall
	stop     chan struct{}
}

func newDispatcher(registry *capability.Registry, timeout time.Duration, recorder Recorder) *dispatcher {
	d := &dispatcher{
		registry: registry,
		timeout:  timeout,
		recorder: recorder,
		calls:    make(chan *HostCall, 64),
		stop:     make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *dispatcher) loop() {
	for {
		select {
		case <-d.stop:
			return
		case call := <-d.calls:
			// Each call gets its own goroutine so one slow provider cannot
			// delay termination delivery or calls from other contexts.
			go d.serve(call)
		}
	}
}

func (d *dispatcher) serve(call *HostCall) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	execCtx := &types.Context{
		ExecutionID: call.ExecutionID,
		Namespace:   call.Namespace,
	}

	result, err := d.registry.Execute(ctx, call.Operation, call.Params, execCtx)
	if result == nil {
		// A provider returning (nil, nil) must not strand the guest waiter.
		if err != nil {
			result = types.Fail(err.Error())
		} else {
			result = types.Fail("capability returned no result")
		}
	}

	// Replies cross the boundary, so they get the same plain-data
	// treatment as everything else.
	if result.Data != nil {
		clean, serr := sanitizeMapValue(result.Data)
		if serr != nil {
			result = types.Fail("capability returned non-cloneable data: " + serr.Error())
		} else {
			result.Data = clean
		}
	}

	d.recorder.RecordHostCall(call.Operation, result.Success, time.Since(start))

	select {
	case call.Reply <- result:
	case <-ctx.Done():
	}
}

func (d *dispatcher) close() {
	close(d.stop)
}

func sanitizeMapValue(data map[string]interface{}) (map[string]interface{}, error) {
	clean, err := Sanitize(data)
	if err != nil {
		return nil, err
	}
	return clean.(map[string]interface{}), nil
}
