// Package agent contains the node kinds of taskmesh and helpers for
// composing them into call trees. The package focuses on three concerns:
//
//  1. Plain function nodes (NewFunc) for deterministic steps
//  2. Model-centric nodes: the tool-calling ToolAgent and the schema
//     coercing StructuredAgent
//  3. Coordination patterns built on the scheduler (NewParallel, NewSequential)
//
// Design principles:
//   - Every node kind satisfies the closed core.Node contract and is created
//     per call by a core.Factory; kinds are chosen at construction time
//   - Explicit wiring: nodes receive their *core.RunContext and issue child
//     calls through the engine package, which keeps the call tree intact
//   - Observability: every child call is a scheduler call with its own
//     events, span and report record
//
// Execution Model:
//   - A factory's input is the node input; ToolAgent accepts a string, a
//     core.Message, a []core.Message or a tool argument map
//   - Composite nodes fan out with engine.Go and join with engine.AwaitAll
//   - Agents can be exposed to other agents as tools via AsTool
package agent
