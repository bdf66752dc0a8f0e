// Package flow implements the bounded tool-calling loop that drives a
// model.Model: it alternates model turns with concurrent tool dispatch
// through the scheduler until the model answers or the tool-call budget is
// exhausted.
package flow
