// Package server exposes module execution over gRPC and Connect. Both
// protocols are served on one port: requests with a gRPC content type over
// HTTP/2 go to a grpc.Server, everything else to the Connect handlers.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/tliron/commonlog"
	"google.golang.org/grpc"
)

var log = commonlog.GetLogger("neon.server")

// NeonServer serves the executor service.
type NeonServer struct {
	service *ExecutorService
	pool    *Pool
	grpc    *grpc.Server
	mux     *http.ServeMux
	http    *http.Server
}

// New creates a server running at most concurrency modules at once.
func New(concurrency int, opts ...ServiceOption) *NeonServer {
	pool := NewPool(concurrency)
	svc := NewExecutorService(pool, opts...)

	s := &NeonServer{
		service: svc,
		pool:    pool,
		grpc:    grpc.NewServer(),
		mux:     http.NewServeMux(),
	}
	svc.RegisterGRPC(s.grpc)

	path, handler := svc.NewConnectHandler()
	s.mux.Handle(path, handler)
	return s
}

// Service returns the executor service.
func (s *NeonServer) Service() *ExecutorService {
	return s.service
}

// ServeHTTP routes native gRPC traffic to the grpc.Server and the rest to
// the Connect mux.
func (s *NeonServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.ProtoMajor == 2 && strings.HasPrefix(r.Header.Get("Content-Type"), "application/grpc") &&
		!strings.HasPrefix(r.Header.Get("Content-Type"), "application/grpc-web") {
		s.grpc.ServeHTTP(w, r)
		return
	}
	s.mux.ServeHTTP(w, r)
}

// Serve accepts connections on lis until Shutdown. HTTP/1.1 and
// unencrypted HTTP/2 are both accepted.
func (s *NeonServer) Serve(lis net.Listener) error {
	var protocols http.Protocols
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)
	s.http = &http.Server{Handler: s, Protocols: &protocols}

	log.Noticef("neon server listening on %s", lis.Addr())
	log.Infof("  Connect (HTTP/JSON): http://%s%s", lis.Addr(), RunProcedure)
	log.Infof("  gRPC (h2c):          grpc://%s", lis.Addr())
	err := s.http.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServe starts the server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *NeonServer) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Shutdown stops accepting requests, waits for running ones and stops the
// executor pool.
func (s *NeonServer) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	s.grpc.Stop()
	s.pool.Stop()
	return err
}
