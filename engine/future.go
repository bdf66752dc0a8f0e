package engine

// Future is the pending outcome of a call started with Go.
type Future struct {
	done   chan struct{}
	result any
	err    error
}

// Await blocks until the call finished and returns its outcome. It may be
// called any number of times.
func (f *Future) Await() (any, error) {
	<-f.done
	return f.result, f.err
}

// Done returns a channel closed when the call finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Outcome is the result or error of one call.
type Outcome struct {
	Result any
	Err    error
}

// AwaitAll waits for every future and returns the outcomes in the order of
// futures. One failure never cancels or hides the others.
func AwaitAll(futures ...*Future) []Outcome {
	out := make([]Outcome, len(futures))
	for i, f := range futures {
		out[i].Result, out[i].Err = f.Await()
	}
	return out
}
