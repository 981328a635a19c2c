package beanstalk

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sunng87/clojalk/internal/core"
	"github.com/sunng87/clojalk/internal/metrics"
	logpkg "github.com/sunng87/clojalk/pkg/log"
)

// Server accepts beanstalkd protocol connections and drives the engine.
type Server struct {
	eng    *core.Engine
	logger logpkg.Logger
	coll   *metrics.Collector

	mu    sync.Mutex
	lis   net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// New creates a protocol server. coll may be nil.
func New(eng *core.Engine, logger logpkg.Logger, coll *metrics.Collector) *Server {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Server{
		eng:    eng,
		logger: logger.With(logpkg.Component("beanstalk")),
		coll:   coll,
		conns:  make(map[net.Conn]struct{}),
	}
}

// ListenAndServe binds addr and serves until ctx is cancelled. The bind
// error is returned as-is so callers can exit non-zero on a busy port.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lis = l
	s.mu.Unlock()
	s.logger.Info("listening", logpkg.Str("addr", l.Addr().String()))

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			return err
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.handle(ctx, conn)
		}()
	}
}

// Addr returns the bound listener address, or nil before ListenAndServe.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

// Close stops the listener and tears down every open connection.
func (s *Server) Close() {
	s.mu.Lock()
	if s.lis != nil {
		_ = s.lis.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
}

func (s *Server) track(c net.Conn, open bool) {
	s.mu.Lock()
	if open {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
	s.mu.Unlock()
	if s.coll != nil {
		if open {
			s.coll.ConnOpened()
		} else {
			s.coll.ConnClosed()
		}
	}
}

// StartSweeper runs the engine's periodic sweeps for the lifetime of ctx.
func (s *Server) StartSweeper(ctx context.Context, interval time.Duration) {
	s.eng.StartSweeper(interval)
	go func() {
		<-ctx.Done()
		s.eng.StopSweeper()
	}()
}
