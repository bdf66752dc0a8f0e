// Package core provides the foundational domain types, interfaces and execution
// contexts used by taskmesh. It defines the core abstractions for:
//
//   - Nodes (units of work invoked through the scheduler) and their Execution records
//   - The run scoped ContextStore shared by every node of a run
//   - Events (lifecycle records published on the run's event bus)
//   - RunContext (explicitly passed execution scope: run, store, current node)
//   - Messages, tool calls and tool descriptors used by the tool-calling loop
//   - RunReport, the structured document produced when a run is torn down
//
// The package intentionally keeps orchestration (scheduling, bus, runner) out
// of scope, exposing small interfaces so the other packages can be composed
// and tested in isolation.
package core
