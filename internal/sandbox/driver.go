package sandbox

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// interrupt payloads let classification distinguish why the VM stopped.
type interruptCause struct {
	kind   ErrorKind
	reason TerminateReason
}

type evalResult struct {
	value goja.Value
	err   error
}

// race implements "first of {script completion, deadline, termination}
// wins". Interrupting the VM is best-effort preemption; the mandatory
// reset after settlement is what actually guarantees a runaway script
// cannot affect the next one. ElapsedMs is measured monotonically on every
// branch and is >= the deadline on timeout.
func (c *Context) race(exec *execState, msg Inbound) Outcome {
	deadline := time.Duration(msg.DeadlineMs) * time.Millisecond
	start := time.Now()

	// Compilation happens before evaluation so parse failures classify as
	// SyntaxError. Once evaluation starts, goja wraps its own SyntaxError
	// values in a generic *Exception, which would misreport them.
	program, err := goja.Compile("script", msg.Source, false)
	if err != nil {
		return failure(msg.ID, KindSyntaxError, err.Error(), time.Since(start))
	}

	done := make(chan evalResult, 1)
	vm := c.vm
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- evalResult{err: fmt.Errorf("interpreter panic: %v", r)}
			}
		}()
		value, err := vm.RunProgram(program)
		done <- evalResult{value: value, err: err}
	}()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	stop := c.stop
	var cause *interruptCause
	for {
		select {
		case res := <-done:
			return c.classify(msg.ID, res, cause, time.Since(start))

		case <-timer.C:
			if cause == nil {
				cause = &interruptCause{kind: KindTimeout}
				vm.Interrupt(*cause)
				exec.abort()
			}

		case t := <-c.ctl:
			if t.Type != MsgTerminate || t.ID != exec.id {
				// Terminate for an execution that already settled: no-op.
				continue
			}
			if cause == nil {
				cause = &interruptCause{kind: KindTerminated, reason: t.Reason}
				vm.Interrupt(*cause)
				exec.abort()
			}

		case <-stop:
			// Context teardown: stop the interpreter rather than letting a
			// runaway script burn CPU inside a discarded context. The
			// outcome still settles on done so runOne can unwind.
			if cause == nil {
				cause = &interruptCause{kind: KindTerminated, reason: ReasonManual}
				vm.Interrupt(*cause)
				exec.abort()
			}
			stop = nil
		}
	}
}

// classify converts an interpreter settlement into an Outcome. A deadline
// or termination that fired before the script settled wins even when the
// evaluation itself managed to finish in the meantime.
func (c *Context) classify(execID string, res evalResult, cause *interruptCause, elapsed time.Duration) Outcome {
	if cause != nil {
		switch cause.kind {
		case KindTimeout:
			return failure(execID, KindTimeout, "execution deadline exceeded", elapsed)
		case KindTerminated:
			return failure(execID, KindTerminated, fmt.Sprintf("terminated: %s", cause.reason), elapsed)
		}
	}

	if res.err == nil {
		return c.classifyValue(execID, res.value, elapsed)
	}

	var interrupted *goja.InterruptedError
	if errors.As(res.err, &interrupted) {
		return failure(execID, KindTerminated, "terminated: interrupted", elapsed)
	}

	var stackErr *goja.StackOverflowError
	if errors.As(res.err, &stackErr) {
		return failure(execID, KindRuntimeError, "stack overflow", elapsed)
	}

	var exception *goja.Exception
	if errors.As(res.err, &exception) {
		out := failure(execID, KindRuntimeError, exception.Value().String(), elapsed)
		out.Stack = exception.String()
		return out
	}

	return failure(execID, KindRuntimeError, res.err.Error(), elapsed)
}

// classifyValue converts the script's final expression value to plain
// data. A value that cannot cross the boundary (a function, a live
// handle) fails the execution instead of leaking.
func (c *Context) classifyValue(execID string, value goja.Value, elapsed time.Duration) Outcome {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return success(execID, nil, elapsed, nil)
	}

	plain, err := Sanitize(value.Export())
	if err != nil {
		return failure(execID, KindRuntimeError, fmt.Sprintf("script result is not cloneable: %v", err), elapsed)
	}
	return success(execID, plain, elapsed, nil)
}
