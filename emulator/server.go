package emulator

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	// Local Packages
	metrics "termbridge/metrics"
	models "termbridge/models"
	protocol "termbridge/protocol"
	dispatch "termbridge/services/dispatch"

	// External Packages
	"go.uber.org/zap"
)

// Server accepts terminal link connections and drives one command
// conversation at a time per connection: welcome, then for every
// command an immediate ACK, optional progress frames and one delayed
// final frame.
type Server struct {
	logger    *zap.Logger
	metrics   *metrics.Metrics
	processor *dispatch.Processor

	listener net.Listener
	conns    sync.Map
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewServer(logger *zap.Logger, processor *dispatch.Processor, m *metrics.Metrics) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		logger:    logger,
		metrics:   m,
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start binds the listener and begins accepting connections. Port zero
// asks the kernel for a free port; Addr reports the bound address.
func (s *Server) Start(port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("cannot listen on :%d: %w", port, err)
	}
	s.listener = lis
	s.logger.Info("terminal emulator listening", zap.String("addr", lis.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop closes the listener and every live connection, then waits for
// the connection handlers to drain.
func (s *Server) Stop() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.conns.Range(func(key, _ any) bool {
		if conn, ok := key.(net.Conn); ok {
			_ = conn.Close()
		}
		return true
	})
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.ctx.Err() != nil {
				return
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	s.conns.Store(conn, struct{}{})
	s.metrics.ConnectionsOpen.Inc()
	defer func() {
		_ = conn.Close()
		s.conns.Delete(conn)
		s.metrics.ConnectionsOpen.Dec()
		s.wg.Done()
	}()

	remote := conn.RemoteAddr().String()
	s.logger.Info("terminal link opened", zap.String("remote", remote))
	defer s.logger.Info("terminal link closed", zap.String("remote", remote))

	// Short lived probes close before the welcome lands; that is fine.
	s.send(conn, models.ReadyEnvelope())

	dec := &protocol.Decoder{}
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, frame := range dec.Feed(buf[:n]) {
				if !s.handleFrame(conn, frame, remote) {
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("read failed", zap.String("remote", remote), zap.Error(err))
			}
			return
		}
	}
}

// handleFrame runs one inbound frame through the dispatcher and plays
// out the reply sequence. It reports false when the connection should
// be dropped.
func (s *Server) handleFrame(conn net.Conn, frame protocol.Frame, remote string) bool {
	if frame.Err != nil {
		s.metrics.FramesInvalid.Inc()
		s.logger.Warn("invalid frame", zap.String("remote", remote), zap.Error(frame.Err))
		return true
	}
	s.metrics.FramesDecoded.Inc()

	var env models.RequestEnvelope
	if err := json.Unmarshal(frame.JSON, &env); err != nil {
		s.logger.Warn("frame is not a request envelope", zap.String("remote", remote), zap.Error(err))
		return true
	}

	if env.Message == models.MessageACK {
		s.logger.Debug("ack received", zap.String("remote", remote))
		return true
	}
	if env.Data.Command == "" {
		s.logger.Debug("frame without command ignored", zap.String("remote", remote))
		return true
	}

	if !s.send(conn, models.AckEnvelope()) {
		return false
	}

	reply := s.processor.Handle(env.Data)
	for _, progress := range reply.Progress {
		if !s.send(conn, progress) {
			return false
		}
	}

	select {
	case <-time.After(reply.Delay):
	case <-s.ctx.Done():
		return false
	}
	return s.send(conn, reply.Final)
}

// send frames v and writes it in one call.
func (s *Server) send(conn net.Conn, v any) bool {
	frame, err := protocol.EncodeFrame(v)
	if err != nil {
		s.logger.Error("cannot encode frame", zap.Error(err))
		return true
	}
	if _, err := conn.Write(frame); err != nil {
		s.logger.Debug("write failed", zap.Error(err))
		return false
	}
	return true
}
