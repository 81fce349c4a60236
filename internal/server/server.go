// Package server runs the TCP accept loop: one goroutine blocks on
// Accept, and each connection gets a reader goroutine (feeding frames
// into the coordinator) and a writer goroutine (draining the session's
// outbound queue). Grounded on dcrodman-archon's
// internal/server/frontend.frontend (accept loop spun off into its own
// goroutine, per-connection read loop, panic-safe close-and-deregister
// on exit), adapted from archon's encrypted fixed-header game protocol
// to this protocol's plain 6-byte length-prefixed frame.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-server/internal/session"
	"github.com/park285/chess-server/internal/wire"
)

// Coordinator is the subset of coordinator.Coordinator the accept loop
// needs; declared here to avoid importing the coordinator package back
// into server (the dependency runs coordinator -> server is avoided by
// having cmd/server wire both together instead).
type Coordinator interface {
	OnAccept(s *session.Session)
	OnFrame(sessionID string, frame wire.Frame)
	OnDisconnect(sessionID string)
}

type Server struct {
	addr        string
	coordinator Coordinator
	logger      *zap.Logger
}

func New(addr string, coordinator Coordinator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{addr: addr, coordinator: coordinator, logger: logger}
}

// ListenAndServe opens the listening socket and blocks accepting
// connections until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.addr, err)
	}
	defer listener.Close()

	s.logger.Info("listening", zap.String("addr", s.addr))

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	sess := session.New(uuid.NewString(), conn)
	s.coordinator.OnAccept(sess)
	s.logger.Info("client connected", zap.String("session_id", sess.ID), zap.String("remote_addr", conn.RemoteAddr().String()))

	writerDone := make(chan struct{})
	go s.writeLoop(sess, writerDone)

	s.readLoop(ctx, sess)

	// OnDisconnect blocks until the coordinator has run this session's
	// cleanup and closed sess.Out itself, so it is safe to tear down the
	// connection the moment it returns. sess.Close() is also called here
	// as a safety net for the coordinator-shutdown race (OnDisconnect can
	// return early via stopC without the cleanup closure ever running);
	// it is a sync.Once under the hood, so this is never a double close.
	s.coordinator.OnDisconnect(sess.ID)
	sess.Close()
	_ = conn.Close()
	<-writerDone
	s.logger.Info("client disconnected", zap.String("session_id", sess.ID))
}

// readLoop feeds raw bytes into a wire.Decoder and posts every decoded
// frame to the coordinator; it returns once the connection errors or
// produces an oversized frame.
func (s *Server) readLoop(ctx context.Context, sess *session.Session) {
	dec := wire.NewDecoder()
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := sess.Conn.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			for {
				frame, ok, decErr := dec.Next()
				if decErr != nil {
					s.logger.Warn("frame decode error", zap.String("session_id", sess.ID), zap.Error(decErr))
					return
				}
				if !ok {
					break
				}
				s.coordinator.OnFrame(sess.ID, frame)
			}
		}
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("read ended", zap.String("session_id", sess.ID), zap.Error(err))
			}
			return
		}
	}
}

// writeLoop drains sess.Out until the session is closed (normally by the
// coordinator's disconnect cleanup, with handleConnection's Close as a
// safety net), writing each already-encoded frame directly to the
// connection.
func (s *Server) writeLoop(sess *session.Session, done chan<- struct{}) {
	defer close(done)
	for frame := range sess.Out {
		if _, err := sess.Conn.Write(frame); err != nil {
			s.logger.Debug("write failed", zap.String("session_id", sess.ID), zap.Error(err))
			return
		}
	}
}
