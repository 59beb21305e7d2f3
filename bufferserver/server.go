// Package bufferserver implements the TCP server that exposes a single
// bounded buffer to producer and consumer clients over the line protocol.
// Each accepted connection is handled by its own Session; all sessions share
// the server's one Buffer.
package bufferserver

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/bufferd/buffer"
	"github.com/cyberinferno/bufferd/idgenerator"
	"github.com/cyberinferno/bufferd/logger"
	"github.com/cyberinferno/bufferd/safemap"
)

// Config holds the server settings.
type Config struct {
	// Name is used in log lines to tell servers apart.
	Name string
	// Addr is the "host:port" to listen on.
	Addr string
	// Capacity is the fixed size of the shared buffer.
	Capacity int
	// HandshakeTimeout bounds how long a new connection may take to send
	// its HELLO line.
	HandshakeTimeout time.Duration
}

// DefaultConfig returns the settings the daemon ships with: a buffer of 15
// items served on localhost:5555 with a 10 second handshake deadline.
//
// Returns:
//   - A Config with default values; override fields as needed before New.
func DefaultConfig() Config {
	return Config{
		Name:             "buffer",
		Addr:             "localhost:5555",
		Capacity:         15,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Server is a TCP server that accepts connections and delegates each one to
// a Session. Sessions are stored by ID and share the server's buffer. The
// server runs its accept loop in a goroutine and supports graceful stop.
type Server struct {
	Logger   logger.Logger
	Name     string
	Addr     string
	Listener net.Listener
	Sessions *safemap.SafeMap[uint64, *Session]
	Running  atomic.Bool

	cfg        Config
	buf        *buffer.Buffer
	stats      *Stats
	sessionIds *idgenerator.IdGenerator
	itemSeq    *idgenerator.IdGenerator
}

// New creates a Server for the given config. Zero-valued config fields fall
// back to their DefaultConfig values.
//
// Parameters:
//   - cfg: Server settings
//   - log: Logger for server and session events
//
// Returns:
//   - A new Server ready to Start
func New(cfg Config, log logger.Logger) *Server {
	defaults := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = defaults.Capacity
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}

	return &Server{
		Logger:     log,
		Name:       cfg.Name,
		Addr:       cfg.Addr,
		Sessions:   safemap.NewSafeMap[uint64, *Session](),
		cfg:        cfg,
		buf:        buffer.New(cfg.Capacity),
		stats:      &Stats{},
		sessionIds: idgenerator.NewIdGenerator(0),
		itemSeq:    idgenerator.NewIdGenerator(0),
	}
}

// Start starts the server by binding to Addr and beginning the accept loop
// in a goroutine. It is safe to call only when the server is not already
// running.
//
// Returns:
//   - An error if the server is already running or if listening on Addr fails
func (s *Server) Start() error {
	if s.Running.Load() {
		s.Logger.Error("server already running")
		return fmt.Errorf("server %s already running", s.Name)
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		s.Logger.Error("server failed to start", logger.Field{Key: "error", Value: err})
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	s.Listener = ln
	s.Running.Store(true)

	s.Logger.Info(fmt.Sprintf("%s server started", s.Name),
		logger.Field{Key: "addr", Value: ln.Addr().String()},
		logger.Field{Key: "capacity", Value: s.buf.Cap()})
	go s.AcceptLoop()

	return nil
}

// Stop stops the server: it stops accepting new connections, then closes
// every live session. Each close serializes on that session's write lock, so
// a request being served finishes its response before its connection closes.
// Safe to call when the server is not running.
func (s *Server) Stop() {
	if !s.Running.Load() {
		s.Logger.Info(fmt.Sprintf("%s server not running", s.Name))
		return
	}

	s.Running.Store(false)
	if s.Listener != nil {
		_ = s.Listener.Close()
	}

	s.Sessions.Range(func(key uint64, session *Session) bool {
		_ = session.Close()
		return true
	})

	s.Logger.Info(fmt.Sprintf("%s server stopped", s.Name))
}

// AddSession stores a session under the given id. It is safe for concurrent
// use.
//
// Parameters:
//   - id: The session ID to associate with the session
//   - session: The session to store
func (s *Server) AddSession(id uint64, session *Session) {
	s.Sessions.Store(id, session)
}

// RemoveSession removes the session with the given id from the server. It is
// safe for concurrent use.
//
// Parameters:
//   - id: The session ID to remove
func (s *Server) RemoveSession(id uint64) {
	s.Sessions.Delete(id)
}

// GetSession returns the session for the given id, if present.
//
// Parameters:
//   - id: The session ID to look up
//
// Returns:
//   - The session and true if found, or nil and false otherwise
func (s *Server) GetSession(id uint64) (*Session, bool) {
	return s.Sessions.Load(id)
}

// Buffer returns the shared buffer. Exposed for inspection; clients mutate
// it only through their sessions.
func (s *Server) Buffer() *buffer.Buffer {
	return s.buf
}

// Stats returns the server's live counters.
func (s *Server) Stats() *Stats {
	return s.stats
}

// AcceptLoop runs in a goroutine and accepts incoming connections. For each
// connection it assigns an ID, creates a Session, stores it, and runs
// session.Handle in a new goroutine. It exits when the server is stopped.
func (s *Server) AcceptLoop() {
	for s.Running.Load() {
		conn, err := s.Listener.Accept()
		if err != nil {
			if !s.Running.Load() {
				return
			}

			s.Logger.Error(fmt.Sprintf("%s server accept error", s.Name), logger.Field{Key: "error", Value: err})
			continue
		}

		id := s.sessionIds.Id()
		session := newSession(id, conn, s)
		s.AddSession(id, session)
		s.stats.IncSessionOpened()

		// Stop sweeps the registry after flipping Running; a connection
		// accepted around that sweep lands here and is closed instead.
		if !s.Running.Load() {
			_ = session.Close()
			return
		}

		go session.Handle()
	}
}
