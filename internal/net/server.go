// Package net is the TCP front end of the exchange: length-prefixed binary
// frames in, result and event reports out.
package net

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"skoll/internal/events"
	"skoll/internal/exchange"
	"skoll/internal/utils"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"
)

const (
	defaultNWorkers    = 10
	defaultPollTimeout = 50 * time.Millisecond
	defaultConnTimeout = 5 * time.Second
	broadcastBuffer    = 1024
)

var ErrImproperConversion = errors.New("improper type conversion")

// ClientSession contains relevant information pertaining to an individual
// connected TCP session.
type ClientSession struct {
	id     uuid.UUID
	conn   net.Conn
	reader *bufio.Reader

	writeLock  sync.Mutex
	subscribed bool // Guarded by the server's session lock
	closeOnce  sync.Once
}

// ClientMessage links a message to the client sending it.
type ClientMessage struct {
	session *ClientSession
	message Message
}

type Server struct {
	address            string
	seq                *exchange.Sequencer
	pool               utils.WorkerPool
	clientSessions     map[uuid.UUID]*ClientSession
	clientSessionsLock sync.Mutex
	clientMessages     chan ClientMessage
	broadcast          chan []byte

	listener net.Listener
	ready    chan struct{}
	log      zerolog.Logger
}

// New serves seq on address with workers connection workers. The server
// doubles as an events.Sink: subscribe it to the exchange's bus to stream
// events to subscribed clients.
func New(address string, workers uint, seq *exchange.Sequencer, log zerolog.Logger) *Server {
	if workers == 0 {
		workers = defaultNWorkers
	}
	return &Server{
		address:        address,
		seq:            seq,
		pool:           utils.NewWorkerPool(workers),
		clientSessions: make(map[uuid.UUID]*ClientSession),
		clientMessages: make(chan ClientMessage, utils.TASK_CHAN_SIZE),
		broadcast:      make(chan []byte, broadcastBuffer),
		ready:          make(chan struct{}),
		log:            log.With().Str("component", "tcp").Logger(),
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the bound listener address. Only valid after Ready.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// maxSessions keeps every session's requeue from blocking on a full task
// queue.
func (s *Server) maxSessions() int {
	return utils.TASK_CHAN_SIZE - s.pool.Size()
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	t, ctx := tomb.WithContext(ctx)

	// Start a tcp listener.
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		s.log.Error().Err(err).Msg("unable to start listener")
		return err
	}
	s.listener = listener
	close(s.ready)

	// Closing the listener unblocks Accept.
	t.Go(func() error {
		<-t.Dying()
		if err := listener.Close(); err != nil {
			s.log.Error().Err(err).Msg("unable to close listener")
		}
		s.closeAll()
		return nil
	})

	// Start the worker pool.
	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})

	// Start the session handler and the event broadcaster.
	t.Go(func() error {
		return s.sessionHandler(t)
	})
	t.Go(func() error {
		return s.broadcaster(t)
	})

	s.log.Info().Str("address", listener.Addr().String()).Msg("server running")

	// Start accepting connections.
	t.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-t.Dying():
					return nil
				default:
				}
				s.log.Error().Err(err).Msg("error accepting client")
				continue
			}

			session, ok := s.addClientSession(conn)
			if !ok {
				s.log.Warn().Str("address", conn.RemoteAddr().String()).Msg("session limit reached")
				conn.Close()
				continue
			}
			s.log.Info().
				Str("address", conn.RemoteAddr().String()).
				Str("session", session.id.String()).
				Msg("new client added")

			// Pass over the connection to be read from.
			s.pool.AddTask(session)
		}
	})

	<-t.Dying()
	s.log.Info().Msg("server shutting down")
	return t.Wait()
}

// Publish queues events for subscribed sessions. It never blocks the
// caller; when the queue is full the events are dropped for every
// subscriber.
func (s *Server) Publish(evs []events.Event) {
	for _, ev := range evs {
		report := Report{MessageType: EventReport, Event: ev}
		select {
		case s.broadcast <- report.Serialize():
		default:
			s.log.Warn().Uint64("seq", ev.Seq).Msg("broadcast queue full, dropping event")
		}
	}
}

// sessionHandler reads off incoming messages from clients and handles
// high-level session logic. Messages are received from the pool of
// workers and executed one at a time, in the order they were read.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	ctx := t.Context(nil)
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			report := s.handle(ctx, message)
			s.send(message.session, report.Serialize())
		}
	}
}

func (s *Server) handle(ctx context.Context, cm ClientMessage) Report {
	msg := cm.message
	switch msg.GetType() {
	case Heartbeat:
		return newResult(Heartbeat, nil, nil)
	case Subscribe:
		s.clientSessionsLock.Lock()
		cm.session.subscribed = true
		s.clientSessionsLock.Unlock()
		return newResult(Subscribe, nil, nil)
	}

	var out []*uint256.Int
	err := s.seq.Do(ctx, func(x *exchange.Exchange) error {
		var err error
		out, err = execute(ctx, x, msg)
		return err
	})
	if err != nil {
		s.log.Debug().
			Err(err).
			Str("session", cm.session.id.String()).
			Str("type", msg.GetType().String()).
			Msg("request failed")
	}
	return newResult(msg.GetType(), out, err)
}

// broadcaster writes queued event reports to every subscribed session.
func (s *Server) broadcaster(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case frame := <-s.broadcast:
			for _, session := range s.subscribers() {
				s.send(session, frame)
			}
		}
	}
}

// handleConnection is a short-lived worker method which reads the next
// message off the session, parses and passes it forward to sessionHandler.
// An idle session is handed straight back to the pool; a broken one is
// cleaned up. Any error returned from here is fatal.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	session, ok := task.(*ClientSession)
	if !ok {
		return ErrImproperConversion
	}

	select {
	case <-t.Dying():
		s.deleteClientSession(session)
		return nil
	default:
	}

	// Wait briefly for the next frame to start.
	if err := session.conn.SetReadDeadline(time.Now().Add(defaultPollTimeout)); err != nil {
		s.deleteClientSession(session)
		return nil
	}
	header, err := session.reader.Peek(FrameHeaderLen)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			s.requeue(t, session)
			return nil
		}
		s.log.Info().
			Err(err).
			Str("session", session.id.String()).
			Msg("client disconnected")
		s.deleteClientSession(session)
		return nil
	}

	// Once a frame has started it must arrive in full.
	if err := session.conn.SetReadDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		s.deleteClientSession(session)
		return nil
	}
	header = append([]byte(nil), header...)
	if _, err := session.reader.Discard(FrameHeaderLen); err != nil {
		s.deleteClientSession(session)
		return nil
	}
	body, err := readBody(session.reader, header)
	if err != nil {
		s.log.Error().
			Err(err).
			Str("session", session.id.String()).
			Msg("error reading from connection")
		s.deleteClientSession(session)
		return nil
	}

	message, err := parseMessage(body)
	if err != nil {
		s.log.Error().
			Err(err).
			Str("session", session.id.String()).
			Msg("error parsing message")
		report := newResult(message.GetType(), nil, err)
		s.send(session, report.Serialize())
		s.requeue(t, session)
		return nil
	}

	// Pass over to the message handling buffer, then push the session back
	// to handle the next message.
	select {
	case s.clientMessages <- ClientMessage{session: session, message: message}:
	case <-t.Dying():
		s.deleteClientSession(session)
		return nil
	}
	s.requeue(t, session)
	return nil
}

func (s *Server) requeue(t *tomb.Tomb, session *ClientSession) {
	if !s.hasClientSession(session) {
		return
	}
	select {
	case <-t.Dying():
		s.deleteClientSession(session)
	default:
		s.pool.AddTask(session)
	}
}

// send writes one frame to a session, dropping the session if the write
// fails.
func (s *Server) send(session *ClientSession, frame []byte) {
	session.writeLock.Lock()
	defer session.writeLock.Unlock()

	if err := session.conn.SetWriteDeadline(time.Now().Add(defaultConnTimeout)); err == nil {
		err = WriteFrame(session.conn, frame)
		if err == nil {
			return
		}
		s.log.Error().Err(err).Str("session", session.id.String()).Msg("unable to send report")
	}
	s.deleteClientSession(session)
}

// addClientSession is an atomic map add
func (s *Server) addClientSession(conn net.Conn) (*ClientSession, bool) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	if len(s.clientSessions) >= s.maxSessions() {
		return nil, false
	}
	session := &ClientSession{
		id:     uuid.New(),
		conn:   conn,
		reader: bufio.NewReaderSize(conn, MaxFrameSize+FrameHeaderLen),
	}
	s.clientSessions[session.id] = session
	return session, true
}

func (s *Server) hasClientSession(session *ClientSession) bool {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	_, ok := s.clientSessions[session.id]
	return ok
}

// deleteClientSession is an atomic map remove. The connection is closed
// once even when several goroutines notice the session is gone.
func (s *Server) deleteClientSession(session *ClientSession) {
	s.clientSessionsLock.Lock()
	delete(s.clientSessions, session.id)
	s.clientSessionsLock.Unlock()

	session.closeOnce.Do(func() {
		if err := session.conn.Close(); err != nil {
			s.log.Debug().Err(err).Str("session", session.id.String()).Msg("close")
		}
	})
}

func (s *Server) subscribers() []*ClientSession {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	var out []*ClientSession
	for _, session := range s.clientSessions {
		if session.subscribed {
			out = append(out, session)
		}
	}
	return out
}

// Sessions is the number of connected clients.
func (s *Server) Sessions() int {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	return len(s.clientSessions)
}

func (s *Server) closeAll() {
	s.clientSessionsLock.Lock()
	sessions := make([]*ClientSession, 0, len(s.clientSessions))
	for _, session := range s.clientSessions {
		sessions = append(sessions, session)
	}
	s.clientSessionsLock.Unlock()

	for _, session := range sessions {
		s.deleteClientSession(session)
	}
}

var _ events.Sink = (*Server)(nil)
