package bus

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// Subscriber observes events. It is called on the bus consumer goroutine; a
// returned error or a panic is logged and delivery continues.
type Subscriber func(ev core.Event) error

// Predicate selects events for Listen.
type Predicate func(ev core.Event) bool

// Options configures a Bus.
type Options struct {
	Logger logging.Logger
}

type state int

const (
	stateIdle state = iota
	stateRunning
	stateDraining
	stateStopped
)

type listener struct {
	pred Predicate
	ch   chan core.Event
	// sequence number of the last event published before registration
	after uint64
}

type queued struct {
	seq uint64
	ev  core.Event
}

// Bus is an ordered, unbounded, single consumer event queue.
type Bus struct {
	mu          sync.Mutex
	cond        *sync.Cond
	state       state
	queue       []queued
	published   uint64
	subscribers []Subscriber
	listeners   map[*listener]struct{}
	done        chan struct{}
	logger      logging.Logger
}

// New creates a Bus. Start must be called before events are accepted.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	b := &Bus{
		listeners: map[*listener]struct{}{},
		done:      make(chan struct{}),
		logger:    opts.Logger,
	}
	b.cond = sync.NewCond(&b.mu)

	return b
}

// Start begins accepting events and launches the consumer goroutine. A bus
// can be started once.
func (b *Bus) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != stateIdle {
		return errors.New("event bus already started")
	}

	b.state = stateRunning

	go b.consume()

	return nil
}

// Running reports whether the bus accepts publishes.
func (b *Bus) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state == stateRunning
}

// Publish enqueues ev. It never blocks on subscribers and fails with
// core.ErrNotRunning before Start or once Shutdown has been requested.
func (b *Bus) Publish(ev core.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != stateRunning {
		return fmt.Errorf("publish %s: %w", ev.Kind, core.ErrNotRunning)
	}

	b.published++
	b.queue = append(b.queue, queued{seq: b.published, ev: ev})
	b.cond.Signal()

	return nil
}

// Subscribe registers fn for every event delivered after the call.
func (b *Bus) Subscribe(fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers = append(b.subscribers, fn)
}

// Listen blocks until an event published after the call satisfies pred and
// returns it. Events still queued when Listen is called are not matched. It fails with core.ErrListenerKilled when the bus stops first,
// or with the context error when ctx is done.
func (b *Bus) Listen(ctx context.Context, pred Predicate) (core.Event, error) {
	l := &listener{pred: pred, ch: make(chan core.Event, 1)}

	b.mu.Lock()
	if b.state == stateStopped {
		b.mu.Unlock()
		return core.Event{}, core.ErrListenerKilled
	}
	l.after = b.published
	b.listeners[l] = struct{}{}
	done := b.done
	b.mu.Unlock()

	select {
	case ev := <-l.ch:
		return ev, nil
	case <-done:
		// The consumer may have matched the listener right before stopping.
		select {
		case ev := <-l.ch:
			return ev, nil
		default:
			return core.Event{}, core.ErrListenerKilled
		}
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.listeners, l)
		b.mu.Unlock()
		return core.Event{}, ctx.Err()
	}
}

// Shutdown stops accepting publishes, delivers every queued event to all
// subscribers and stops the consumer. It returns once the queue is drained.
// A second call returns core.ErrAlreadyShutdown.
func (b *Bus) Shutdown() error {
	b.mu.Lock()
	switch b.state {
	case stateIdle:
		b.state = stateStopped
		close(b.done)
		b.mu.Unlock()
		return nil
	case stateDraining, stateStopped:
		b.mu.Unlock()
		return core.ErrAlreadyShutdown
	}

	b.state = stateDraining
	b.cond.Signal()
	b.mu.Unlock()

	<-b.done

	return nil
}

// Done returns a channel closed once the bus has stopped.
func (b *Bus) Done() <-chan struct{} { return b.done }

func (b *Bus) consume() {
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && b.state == stateRunning {
			b.cond.Wait()
		}

		if len(b.queue) == 0 {
			b.state = stateStopped
			b.listeners = map[*listener]struct{}{}
			close(b.done)
			b.mu.Unlock()
			return
		}

		next := b.queue[0]
		b.queue[0] = queued{}
		b.queue = b.queue[1:]
		ev := next.ev

		subs := b.subscribers
		pending := make([]*listener, 0, len(b.listeners))
		for l := range b.listeners {
			if l.after < next.seq {
				pending = append(pending, l)
			}
		}
		b.mu.Unlock()

		for _, fn := range subs {
			b.deliver(fn, ev)
		}

		b.notify(pending, ev)
	}
}

func (b *Bus) notify(pending []*listener, ev core.Event) {
	for _, l := range pending {
		if !b.matches(l, ev) {
			continue
		}

		b.mu.Lock()
		_, ok := b.listeners[l]
		delete(b.listeners, l)
		b.mu.Unlock()

		if ok {
			l.ch <- ev
		}
	}
}

func (b *Bus) matches(l *listener, ev core.Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus.listener.panic", "event", ev.Kind, "recover", r)
			ok = false
		}
	}()

	return l.pred == nil || l.pred(ev)
}

func (b *Bus) deliver(fn Subscriber, ev core.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus.subscriber.panic", "event", ev.Kind, "event_id", ev.ID, "recover", r, "stack", string(debug.Stack()))
		}
	}()

	if err := fn(ev); err != nil {
		b.logger.Warn("bus.subscriber.error", "event", ev.Kind, "event_id", ev.ID, "error", err.Error())
	}
}
