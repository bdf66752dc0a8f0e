// Package bus implements the run scoped event bus.
//
// A Bus decouples node execution from observation: publishers enqueue events
// without ever blocking on observers, and a single consumer goroutine delivers
// every event to every subscriber in publish order. Shutdown drains the queue
// before returning, so observers (report recorders, streaming clients, log
// sinks) see every event published before shutdown was requested.
package bus
