// Package runner ties node trees to runs.
//
// A Runner holds defaults (logger, timeout, report store, payload callback,
// model call ceiling) and creates Sessions. Each Session owns a fresh
// ContextStore and a started event bus, executes one entry node as the root
// of its call tree and tears down exactly once:
//
//   - the bus is drained and stopped
//   - a core.RunReport is assembled from completion events and a deep copy
//     of the final context
//   - the OnReport callback is invoked synchronously
//   - the report is persisted when Persist is set
//
// A Session must not be started from code that already runs inside a run;
// nested runs are rejected with core.ErrNestedRun. Nodes that need another
// tree call it through their RunContext instead.
package runner
