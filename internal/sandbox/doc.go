/*
Package sandbox provides isolated execution of untrusted JavaScript on
behalf of a host application.

# Overview

Scripts run inside goja interpreter instances that never touch host state
directly. Each isolation context owns exactly one interpreter and executes
one script at a time; the manager multiplexes concurrent submissions over
it and correlates outcomes by execution ID. Host functionality reaches
guest code only through capability tables: named objects (re)built inside
the interpreter before every execution, whose member functions forward to
host providers through a call channel carrying plain data.

# Architecture

 1. Context: one goja VM plus an event loop that keeps termination
    deliverable while a script runs
 2. Registrar: installs caller bindings and capability tables before each
    execution, fail-closed
 3. Driver: races evaluation against the deadline, first settlement wins
 4. Manager: host-facing entry point with a pending set, an outer timeout
    guard, and automatic context restart after a crash

# Isolation Model

Nothing survives from one script to the next. The interpreter is discarded
and rebuilt after every execution, so leaked globals, redefined built-ins
and host-bound closures cannot affect an unrelated script. Only plain
cloneable data (scalars, sequences, string-keyed maps) crosses between the
host and a context; function values are rejected at the manager boundary.

# Timeouts

Two independent layers guard every execution: the context races evaluation
against the inner deadline and interrupts the VM when it fires, and the
manager arms an outer timer (deadline plus a messaging buffer) that
synthesizes a timeout outcome if the context never answers. Whichever
fires first wins; the loser settles into a no-op.

# Usage Example

	mgr, err := NewManager(DefaultConfig(), registry, logger, nil)
	if err != nil {
		return err
	}
	defer mgr.Destroy()

	outcome, err := mgr.Execute(ctx, `store.set({key: "a", value: 1}); 42`, Options{})
*/
package sandbox
