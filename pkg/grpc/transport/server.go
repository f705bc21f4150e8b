// Package transport hosts the sort service on a TCP listener.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"

	"github.com/KevoDB/chunksort/pkg/common/log"
	"github.com/KevoDB/chunksort/pkg/grpc/service"
)

// Options configure a Server.
type Options struct {
	TLS    TLSConfig
	Logger log.Logger
	// MaxRecvMsgSize bounds request size; sort requests are small.
	MaxRecvMsgSize int
}

// GRPCServer serves chunksort.SortService.
type GRPCServer struct {
	address string
	options Options
	handler service.SortServiceHandler
	logger  log.Logger

	mu       sync.Mutex
	server   *grpc.Server
	listener net.Listener
	started  bool
}

// NewGRPCServer creates a server for handler on address. Nothing listens
// until Start or Serve.
func NewGRPCServer(address string, handler service.SortServiceHandler, options Options) *GRPCServer {
	logger := options.Logger
	if logger == nil {
		logger = log.Component("transport")
	}
	return &GRPCServer{
		address: address,
		options: options,
		handler: handler,
		logger:  logger,
	}
}

func (s *GRPCServer) serverOptions() ([]grpc.ServerOption, error) {
	var serverOpts []grpc.ServerOption

	if s.options.TLS.Enabled() {
		tlsConfig, err := LoadServerTLSConfig(s.options.TLS)
		if err != nil {
			return nil, err
		}
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}

	// Sort jobs are long unary calls, so connections are not aged out.
	keepaliveParams := keepalive.ServerParameters{
		MaxConnectionIdle: 60 * time.Second,
		Time:              15 * time.Second,
		Timeout:           5 * time.Second,
	}

	keepalivePolicy := keepalive.EnforcementPolicy{
		MinTime:             5 * time.Second,
		PermitWithoutStream: true,
	}

	serverOpts = append(serverOpts,
		grpc.KeepaliveParams(keepaliveParams),
		grpc.KeepaliveEnforcementPolicy(keepalivePolicy),
	)
	if s.options.MaxRecvMsgSize > 0 {
		serverOpts = append(serverOpts, grpc.MaxRecvMsgSize(s.options.MaxRecvMsgSize))
	}
	return serverOpts, nil
}

// listen prepares the server and listener. Callers hold s.mu.
func (s *GRPCServer) listen() error {
	if s.started {
		return fmt.Errorf("server already started")
	}

	serverOpts, err := s.serverOptions()
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}

	s.server = grpc.NewServer(serverOpts...)
	service.Register(s.server, s.handler)
	s.listener = listener
	s.started = true
	return nil
}

// Start starts the server and returns immediately
func (s *GRPCServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.listen(); err != nil {
		return err
	}

	server, listener := s.server, s.listener
	go func() {
		if err := server.Serve(listener); err != nil {
			s.logger.Error("gRPC server error: %v", err)
		}
	}()

	s.logger.Info("serving %s on %s", service.ServiceName, listener.Addr())
	return nil
}

// Serve starts the server and blocks until it's stopped
func (s *GRPCServer) Serve() error {
	s.mu.Lock()
	if err := s.listen(); err != nil {
		s.mu.Unlock()
		return err
	}
	server, listener := s.server, s.listener
	s.mu.Unlock()

	s.logger.Info("serving %s on %s", service.ServiceName, listener.Addr())
	return server.Serve(listener)
}

// Addr returns the bound address, or nil before the server starts.
func (s *GRPCServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop drains in-flight jobs, forcing the stop when ctx ends first.
func (s *GRPCServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.server.Stop()
	}

	s.started = false
	s.listener = nil
	return nil
}
