package bufferserver

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/bufferd/buffer"
	"github.com/cyberinferno/bufferd/logger"
	"github.com/cyberinferno/bufferd/protocol"
)

// closeWriteGrace bounds how long Close waits for an in-flight response
// write before the connection is torn down regardless.
const closeWriteGrace = 2 * time.Second

// Session handles one client connection from handshake to close. It owns the
// connection's read side exclusively. A request's buffer mutation, its
// response write, and Close all serialize on writeMu: a dispatched request
// either completes through its response line or never touches the buffer. A
// session reaches the shared buffer only through Put and Get, so the buffer
// mutex is never held across network I/O.
type Session struct {
	server *Server
	id     uint64
	conn   net.Conn
	log    logger.Logger

	scanner *bufio.Scanner

	// writeMu guards conn writes and closed.
	writeMu sync.Mutex
	closed  bool

	// Set by the handshake; zero until then.
	role     protocol.Role
	clientID uint64
}

func newSession(id uint64, conn net.Conn, server *Server) *Session {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)

	return &Session{
		server:  server,
		id:      id,
		conn:    conn,
		log:     server.Logger.With(logger.Field{Key: "session", Value: id}),
		scanner: scanner,
	}
}

// ID returns the session's server-assigned identifier.
func (s *Session) ID() uint64 {
	return s.id
}

// Handle runs the session's main loop: handshake first, then the request
// loop until QUIT, peer close, or a fatal I/O error. It is started in a
// goroutine by the server's accept loop and always closes the session on the
// way out.
func (s *Session) Handle() {
	defer func() {
		_ = s.Close()
	}()

	if err := s.handshake(); err != nil {
		return
	}

	s.serve()
}

// Close closes the session's connection and removes it from the server
// registry. It takes the write lock, so a response in flight reaches the
// wire before the connection closes; the pending write is deadline-bounded
// so a stalled peer cannot hold Close up. Safe to call multiple times; only
// the first call does work.
//
// Returns:
//   - An error if closing the connection failed
func (s *Session) Close() error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(closeWriteGrace))

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.conn.Close()
	s.server.RemoveSession(s.id)
	s.server.stats.IncSessionClosed()
	s.log.Info("session closed")

	return err
}

// handshake reads the connection's first line within the configured deadline
// and either welcomes the client or rejects the connection. A malformed
// HELLO gets an ERROR response before the session is torn down.
func (s *Session) handshake() error {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.server.cfg.HandshakeTimeout)); err != nil {
		return err
	}

	if !s.scanner.Scan() {
		err := s.scanner.Err()
		if err == nil {
			err = io.EOF
		}
		s.log.Warn("connection closed before handshake", logger.Field{Key: "error", Value: err})
		return err
	}

	hs, err := protocol.ParseHandshake(s.scanner.Text())
	if err != nil {
		s.log.Warn("bad handshake", logger.Field{Key: "line", Value: s.scanner.Text()})
		_ = s.writeResponse(protocol.ErrorResponse(protocol.ReasonBadHandshake))
		return err
	}

	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		return err
	}

	s.role = hs.Role
	s.clientID = hs.ID
	s.log = s.log.With(
		logger.Field{Key: "role", Value: hs.Role.String()},
		logger.Field{Key: "client_id", Value: hs.ID})

	if err := s.writeResponse(protocol.Welcome()); err != nil {
		return err
	}

	s.log.Info("session established")
	return nil
}

// serve reads request lines until the peer goes away, QUIT, or server stop.
// Malformed lines are answered with an ERROR and the loop continues; write
// failures and a stopped server end the session.
func (s *Session) serve() {
	for s.scanner.Scan() {
		req, err := protocol.ParseRequest(s.scanner.Text())
		if err != nil {
			s.server.stats.IncMalformed()
			s.log.Warn("malformed request", logger.Field{Key: "line", Value: s.scanner.Text()})
			if err := s.writeResponse(protocol.ErrorResponse(protocol.ReasonMalformedRequest)); err != nil {
				return
			}
			continue
		}

		done, err := s.serveRequest(req)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.log.Error("failed to write response", logger.Field{Key: "error", Value: err})
			}
			return
		}
		if done {
			return
		}

		if !s.server.Running.Load() {
			return
		}
	}

	if err := s.scanner.Err(); err != nil && !s.isClosed() {
		s.log.Warn("session read error", logger.Field{Key: "error", Value: err})
	}
}

// serveRequest applies one request to the buffer and writes its response as
// a unit under the write lock. A session closed underneath refuses the
// request with net.ErrClosed before it touches the buffer. done reports that
// the session should end (QUIT).
func (s *Session) serveRequest(req protocol.Request) (done bool, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return false, net.ErrClosed
	}

	if err := s.writeLine(s.dispatch(req)); err != nil {
		return false, err
	}

	return req.Kind == protocol.KindQuit, nil
}

// dispatch executes one parsed request against the shared buffer and returns
// the response to write. The caller holds the write lock.
func (s *Session) dispatch(req protocol.Request) protocol.Response {
	switch req.Kind {
	case protocol.KindProduce:
		if s.role != protocol.RoleProducer {
			s.log.Warn("produce from non-producer session")
			return protocol.ErrorResponse(protocol.ReasonRoleMismatch)
		}

		item := buffer.Item{
			Seq:        s.server.itemSeq.Id(),
			ProducerID: s.clientID,
			Payload:    req.Payload,
		}
		if err := s.server.buf.Put(item); err != nil {
			s.server.stats.IncRejected()
			s.log.Debug("buffer full", logger.Field{Key: "payload", Value: req.Payload})
			return protocol.Full()
		}

		s.server.stats.IncProduced()
		s.log.Debug("item produced", logger.Field{Key: "seq", Value: item.Seq})
		return protocol.OK()

	case protocol.KindConsume:
		if s.role != protocol.RoleConsumer {
			s.log.Warn("consume from non-consumer session")
			return protocol.ErrorResponse(protocol.ReasonRoleMismatch)
		}

		item, err := s.server.buf.Get()
		if err != nil {
			s.server.stats.IncRejected()
			s.log.Debug("buffer empty")
			return protocol.Empty()
		}

		s.server.stats.IncConsumed()
		s.log.Debug("item consumed",
			logger.Field{Key: "seq", Value: item.Seq},
			logger.Field{Key: "producer", Value: item.ProducerID})
		return protocol.OKPayload(item.Payload)

	case protocol.KindStatus:
		return protocol.Status(s.server.buf.Len(), s.server.buf.Cap())

	case protocol.KindQuit:
		return protocol.OK()

	default:
		s.server.stats.IncMalformed()
		return protocol.ErrorResponse(protocol.ReasonMalformedRequest)
	}
}

// writeResponse writes one response line under the session's write lock.
// Returns net.ErrClosed if the session was closed underneath.
func (s *Session) writeResponse(resp protocol.Response) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return net.ErrClosed
	}

	return s.writeLine(resp)
}

// writeLine writes one response line. The caller holds the write lock.
func (s *Session) writeLine(resp protocol.Response) error {
	_, err := s.conn.Write([]byte(resp.Line() + "\n"))
	return err
}

func (s *Session) isClosed() bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.closed
}
