// Package supervisor owns the connection lifecycle: accepting sockets,
// assigning client ids, wiring each one into a Session registered with the
// Dispatcher, and tearing everything down in response to context
// cancellation.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"matchengine/internal/dispatcher"
	"matchengine/internal/protocol"
	"matchengine/internal/session"
)

// Supervisor runs the accept loop for one listener and manages every
// Session it spawns.
type Supervisor struct {
	listener   net.Listener
	dispatcher *dispatcher.Dispatcher

	nextID  atomic.Uint64
	running atomic.Bool

	wg sync.WaitGroup

	mu       sync.Mutex
	sessions map[session.ID]*session.Session

	onConnect    func(id session.ID, remoteAddr string, kind protocol.Kind)
	onDisconnect func(id session.ID)
}

// OnConnect registers a callback fired whenever a new session is accepted,
// before its read/write loops start. Typically used to record connection
// lifecycle into the telemetry store (§11).
func (s *Supervisor) OnConnect(fn func(id session.ID, remoteAddr string, kind protocol.Kind)) {
	s.onConnect = fn
}

// OnDisconnect registers a callback fired once a session's read loop exits.
func (s *Supervisor) OnDisconnect(fn func(id session.ID)) {
	s.onDisconnect = fn
}

// Listen binds addr, trying port, then port+1, then port+2 as §6.3
// requires, and returns a Supervisor ready to Run. attempts reports how
// many ports were tried, counting the one that bound.
func Listen(bindAddr string, port int, d *dispatcher.Dispatcher) (sup *Supervisor, attempts int, err error) {
	var lastErr error
	for i := 0; i < 3; i++ {
		addr := fmt.Sprintf("%s:%d", bindAddr, port+i)
		ln, listenErr := net.Listen("tcp", addr)
		if listenErr == nil {
			sup := &Supervisor{
				listener:   ln,
				dispatcher: d,
				sessions:   make(map[session.ID]*session.Session),
			}
			sup.running.Store(true)
			return sup, i + 1, nil
		}
		lastErr = listenErr
	}
	return nil, 3, fmt.Errorf("supervisor: all port attempts exhausted: %w", lastErr)
}

// Addr reports the bound listener address.
func (s *Supervisor) Addr() net.Addr {
	return s.listener.Addr()
}

// Run accepts connections until ctx is cancelled, then closes the listener,
// closes every active session and waits for every spawned session goroutine
// to finish.
func (s *Supervisor) Run(ctx context.Context) {
	defer s.running.Store(false)

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			log.Printf("supervisor: accept error: %v", err)
			continue
		}
		// spawn blocks in session.New until the peer's first byte, so it runs
		// off the accept loop; the extra wg slot keeps Wait from racing its Add.
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.spawn(ctx, conn)
		}()
	}

	s.CloseAll()
	s.wg.Wait()
}

// Listening reports whether the accept loop is still running. The admin
// surface's /health check (§10) uses this as its liveness signal.
func (s *Supervisor) Listening() bool {
	return s.running.Load()
}

func (s *Supervisor) spawn(ctx context.Context, conn net.Conn) {
	id := session.ID(s.nextID.Add(1))

	sess, err := session.New(id, conn)
	if err != nil {
		log.Printf("supervisor: session %d: %v", id, err)
		conn.Close()
		return
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	s.dispatcher.Register(id, sess)

	if s.onConnect != nil {
		s.onConnect(id, conn.RemoteAddr().String(), sess.Kind())
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		defer s.deregister(id)
		_ = sess.ReadLoop(ctx, s.dispatcher.Submit)
	}()
	go func() {
		defer s.wg.Done()
		_ = sess.WriteLoop()
	}()
}

func (s *Supervisor) deregister(id session.ID) {
	s.dispatcher.Deregister(id)
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	if s.onDisconnect != nil {
		s.onDisconnect(id)
	}
}

// SessionCount reports how many sessions are currently connected.
func (s *Supervisor) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SessionsAccepted reports how many connections have ever been accepted,
// including ones since closed.
func (s *Supervisor) SessionsAccepted() uint64 {
	return s.nextID.Load()
}

// CloseAll forcibly closes every active session. Run calls it once the
// accept loop stops, so each session's read and write loops return rather
// than waiting on slow peers to notice their sockets closed.
func (s *Supervisor) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.Close()
	}
}
