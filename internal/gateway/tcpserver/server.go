// Package tcpserver hosts the device-facing TCP listener. Each reader
// keeps one long-lived connection open and streams JSON messages; the
// gateway answers every message with a single plain-text token.
package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/campusgate/gatekeeper/internal/gateway/service"
)

type Config struct {
	Addr string
}

type Server struct {
	cfg        Config
	registry   *service.DeviceRegistry
	access     *service.AccessService
	enrollment *service.EnrollmentService
	logger     *zap.Logger

	mu       sync.Mutex
	ln       net.Listener
	sessions map[*session]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func New(
	cfg Config,
	registry *service.DeviceRegistry,
	access *service.AccessService,
	enrollment *service.EnrollmentService,
	logger *zap.Logger,
) *Server {
	return &Server{
		cfg:        cfg,
		registry:   registry,
		access:     access,
		enrollment: enrollment,
		logger:     logger,
		sessions:   make(map[*session]struct{}),
	}
}

// Start listens and serves until ctx is cancelled or the listener fails.
// Cancellation closes the listener and every open device connection, so
// idle sessions blocked in a read unwind instead of pinning the wait group.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("tcp listen on %s: %w", s.cfg.Addr, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("device listener started", zap.String("addr", ln.Addr().String()))

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("tcp accept: %w", err)
		}

		sess := newSession(s, conn)
		s.track(sess)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(sess)
			sess.serve(ctx)
		}()
	}
}

// Addr reports the bound listener address; nil until Start has listened.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown closes the listener and all open device connections; Start's
// wg.Wait then drains the session goroutines. Safe to call repeatedly.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.ln != nil {
		s.ln.Close()
	}
	for sess := range s.sessions {
		sess.conn.Close()
	}
}

// track registers a live session with the server. A connection accepted in
// the window between Shutdown and the accept loop noticing the closed
// listener is closed immediately; its session then exits on first read.
func (s *Server) track(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sess.conn.Close()
		return
	}
	s.sessions[sess] = struct{}{}
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess)
}
