// Package engine implements the call scheduler of taskmesh.
//
// Every node call in a run goes through Call (or its typed and asynchronous
// variants). The scheduler instantiates the node from its factory, attaches
// it to the call tree under the currently running node, publishes lifecycle
// events on the run's bus, records telemetry, and returns the node's result or
// its error. It never swallows errors: isolating sibling failures is the
// caller's responsibility.
//
// Fan-out is expressed with Go and Await:
//
//	a := engine.Go(rc, fetchFactory, "a")
//	b := engine.Go(rc, fetchFactory, "b")
//	ra, errA := a.Await()
//	rb, errB := b.Await()
//
// Top level code that holds a session context rather than a RunContext uses
// CallSync, which refuses to run outside a session and from inside a running
// node.
package engine
