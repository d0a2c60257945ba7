// Package dispatcher is the concurrency hub between Sessions and the
// Engine: it is the single place that knows about every connected session,
// so registration, deregistration, and broadcast can all be serialised
// under one lock without the Engine ever needing to know sessions exist.
package dispatcher

import (
	"sync"
	"sync/atomic"

	"matchengine/internal/engine"
	"matchengine/internal/session"
)

// sink is anything the dispatcher can hand an Event to. *session.Session
// satisfies it; tests use a lighter fake.
type sink interface {
	Enqueue(ev engine.Event)
}

// Dispatcher multiplexes inbound Requests into a single channel for the
// Engine and broadcasts every Event the Engine produces back out to every
// registered session (§4.4).
type Dispatcher struct {
	inbox chan<- engine.Request

	mu       sync.RWMutex
	sessions map[session.ID]sink

	// tap is an optional, best-effort monitoring feed for the admin
	// surface (§10). Unlike a session's outbound queue it is allowed to
	// drop: a slow observer must never apply backpressure to trading.
	tapMu sync.RWMutex
	tap   chan engine.Event

	requestsDispatched atomic.Uint64
	eventsBroadcast    atomic.Uint64
	tradesExecuted     atomic.Uint64
}

// New creates a Dispatcher that forwards Requests onto inbox.
func New(inbox chan<- engine.Request) *Dispatcher {
	return &Dispatcher{
		inbox:    inbox,
		sessions: make(map[session.ID]sink),
	}
}

// Register adds a session to the broadcast set. It is serialised with
// Broadcast so no in-flight Event can miss a session that is mid-registration.
func (d *Dispatcher) Register(id session.ID, s sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[id] = s
}

// Deregister removes a session from the broadcast set.
func (d *Dispatcher) Deregister(id session.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, id)
}

// Submit counts req and forwards it unchanged to the Engine's inbox.
// req.ClientID is the protocol-level identity decoded from the message; no
// per-connection session id is attached.
func (d *Dispatcher) Submit(req engine.Request) {
	d.requestsDispatched.Add(1)
	d.inbox <- req
}

// Run reads every Event the Engine produces and broadcasts it to all
// currently-registered sessions, handing the same Event value to each
// session's Enqueue, which encodes it for that session's codec. It
// returns once events is closed, which happens when the Engine's Run
// returns.
func (d *Dispatcher) Run(events <-chan engine.Event) {
	for ev := range events {
		d.broadcast(ev)
	}
}

func (d *Dispatcher) broadcast(ev engine.Event) {
	d.eventsBroadcast.Add(1)
	if ev.Kind == engine.TradeEvent {
		d.tradesExecuted.Add(1)
	}

	d.mu.RLock()
	for _, s := range d.sessions {
		s.Enqueue(ev)
	}
	d.mu.RUnlock()

	d.tapMu.RLock()
	tap := d.tap
	d.tapMu.RUnlock()
	if tap != nil {
		select {
		case tap <- ev:
		default: // observer too slow: drop, never block trading (§10)
		}
	}
}

// Tap installs a best-effort monitoring channel and returns it. Only one
// tap may be active at a time; installing a new one replaces the old.
func (d *Dispatcher) Tap(capacity int) <-chan engine.Event {
	ch := make(chan engine.Event, capacity)
	d.tapMu.Lock()
	d.tap = ch
	d.tapMu.Unlock()
	return ch
}

// RemoveTap detaches the monitoring channel, if any.
func (d *Dispatcher) RemoveTap() {
	d.tapMu.Lock()
	d.tap = nil
	d.tapMu.Unlock()
}

// SessionCount reports how many sessions are currently registered.
func (d *Dispatcher) SessionCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// RequestsDispatched, EventsBroadcast and TradesExecuted are the
// dispatcher's own counters. The admin /stats endpoint reports
// TradesExecuted; its request and event counts come from the Engine.
func (d *Dispatcher) RequestsDispatched() uint64 { return d.requestsDispatched.Load() }
func (d *Dispatcher) EventsBroadcast() uint64    { return d.eventsBroadcast.Load() }
func (d *Dispatcher) TradesExecuted() uint64     { return d.tradesExecuted.Load() }
