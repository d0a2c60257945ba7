// Package session turns one TCP connection into a pair of message streams:
// decoded Requests flowing to the dispatcher, and encoded Events flowing
// back to the socket. A Session shields the rest of the system from a slow
// or dead peer — its outbound queue is unbounded so a stalled client can
// never stall a broadcast meant for every other client.
package session

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"matchengine/internal/engine"
	"matchengine/internal/protocol"
)

// ID is the 64-bit identifier the Supervisor assigns to a connection at
// accept time (§4.5). It is distinct from the client id carried inside
// wire messages and plays no role in matching — it exists purely for
// operational bookkeeping (logging, stats, the admin surface).
type ID uint64

// Session owns one net.Conn for its lifetime.
type Session struct {
	ID   ID
	conn net.Conn

	kind    protocol.Kind
	decoder protocol.Decoder
	encoder protocol.Encoder
	queue   *outboundQueue

	closeOnce sync.Once
	closeErr  error

	requestsDecoded atomic.Uint64
	eventsWritten   atomic.Uint64
}

// New wraps conn, sniffing the wire protocol from its first byte. It blocks
// briefly on that first read; callers should run it from the session's own
// goroutine, not the accept loop.
func New(id ID, conn net.Conn) (*Session, error) {
	reader := bufio.NewReader(conn)
	first, err := reader.Peek(1)
	if err != nil {
		return nil, fmt.Errorf("session: sniffing protocol: %w", err)
	}
	kind := protocol.Sniff(first[0])

	return &Session{
		ID:      id,
		conn:    conn,
		kind:    kind,
		decoder: protocol.NewDecoder(kind, reader),
		encoder: protocol.NewEncoder(kind),
		queue:   newOutboundQueue(),
	}, nil
}

// Kind reports which wire codec this session sniffed at connect time.
func (s *Session) Kind() protocol.Kind { return s.kind }

// Enqueue encodes ev and appends the resulting frame(s) to the outbound
// queue without blocking. A session whose encoder fails (which should be
// impossible for a well-formed Event, per §7) closes itself.
func (s *Session) Enqueue(ev engine.Event) {
	frames, err := s.encoder.Encode(ev)
	if err != nil {
		s.Close()
		return
	}
	for _, f := range frames {
		s.queue.push(f)
	}
}

// ReadLoop decodes Requests from the socket and hands each to submit, until
// the peer disconnects, a protocol error occurs, or ctx is cancelled. It
// always closes the session before returning.
func (s *Session) ReadLoop(ctx context.Context, submit func(engine.Request)) error {
	defer s.Close()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		req, err := s.decoder.Decode()
		if err != nil {
			return err
		}
		s.requestsDecoded.Add(1)
		submit(req)
	}
}

// WriteLoop drains the outbound queue to the socket until the queue is
// closed (meaning the session is shutting down) or a write fails.
func (s *Session) WriteLoop() error {
	defer s.Close()

	for {
		msg, ok := s.queue.pop()
		if !ok {
			return nil
		}
		if _, err := s.conn.Write(msg); err != nil {
			return fmt.Errorf("session: write: %w", err)
		}
		s.eventsWritten.Add(1)
	}
}

// Close shuts down the connection and outbound queue exactly once. It is
// safe to call from either loop, from Enqueue on an encode failure, or from
// the Supervisor's CloseAll.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.queue.close()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// RequestsDecoded reports how many Requests this session has forwarded.
func (s *Session) RequestsDecoded() uint64 { return s.requestsDecoded.Load() }

// EventsWritten reports how many encoded frames this session has flushed.
func (s *Session) EventsWritten() uint64 { return s.eventsWritten.Load() }
