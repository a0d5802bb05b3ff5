package messenger

import (
	"context"
	"sync"
)

type State string

const (
	Disconnected  State = "disconnected"
	AwaitingScan  State = "awaiting_scan"
	Authenticated State = "authenticated"
	Ready         State = "ready"
)

type EventType string

const (
	EventQR            EventType = "qr"
	EventAuthenticated EventType = "authenticated"
	EventReady         EventType = "ready"
	EventAuthFailure   EventType = "auth_failure"
	EventDisconnected  EventType = "disconnected"
)

// Event is a readiness notification from the chat client.
type Event struct {
	Type    EventType
	Payload string // QR code for EventQR, reason for EventDisconnected
}

// Connection tracks the chat client's readiness as an explicit state machine.
// Runs watch it instead of reacting to client callbacks.
type Connection struct {
	mu       sync.Mutex
	state    State
	reason   string
	qr       string
	changed  chan struct{}
	watchers map[*watcher]struct{}
	subs     []func(State, Event)
}

type watcher struct {
	cancel context.CancelCauseFunc
}

func NewConnection() *Connection {
	return &Connection{
		state:    Disconnected,
		changed:  make(chan struct{}),
		watchers: map[*watcher]struct{}{},
	}
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastQR returns the most recent QR payload while awaiting a scan.
func (c *Connection) LastQR() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.qr
}

// Reason returns the last disconnect or auth-failure reason.
func (c *Connection) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// OnChange registers fn to be called after every transition.
func (c *Connection) OnChange(fn func(State, Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

// Handle applies a client event.
func (c *Connection) Handle(ev Event) {
	c.mu.Lock()

	prev := c.state
	next := prev
	switch ev.Type {
	case EventQR:
		next = AwaitingScan
		c.qr = ev.Payload
	case EventAuthenticated:
		next = Authenticated
		c.qr = ""
	case EventReady:
		next = Ready
		c.qr = ""
		c.reason = ""
	case EventAuthFailure, EventDisconnected:
		next = Disconnected
		c.qr = ""
		c.reason = ev.Payload
	}
	c.state = next

	if prev == Ready && next != Ready {
		for w := range c.watchers {
			w.cancel(ErrDisconnected)
			delete(c.watchers, w)
		}
	}

	close(c.changed)
	c.changed = make(chan struct{})
	subs := append([]func(State, Event){}, c.subs...)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(next, ev)
	}
}

// WaitReady blocks until the connection is ready or ctx is done.
func (c *Connection) WaitReady(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.state == Ready {
			c.mu.Unlock()
			return nil
		}
		ch := c.changed
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Watch derives a context that is cancelled with cause ErrDisconnected as soon
// as the connection leaves Ready. If it is not ready now, the returned context
// is already cancelled.
func (c *Connection) Watch(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	c.mu.Lock()
	if c.state != Ready {
		c.mu.Unlock()
		cancel(ErrNotReady)
		return ctx, func() { cancel(context.Canceled) }
	}
	w := &watcher{cancel: cancel}
	c.watchers[w] = struct{}{}
	c.mu.Unlock()

	return ctx, func() {
		c.mu.Lock()
		delete(c.watchers, w)
		c.mu.Unlock()
		cancel(context.Canceled)
	}
}
