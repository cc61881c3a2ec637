// Package health reports session liveness over the standard gRPC health protocol.
package health

import (
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// Service is the name reported alongside the overall ("") status.
const Service = "tothemoon.Engine"

// Server wraps a gRPC server carrying only the health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener
	log    zerolog.Logger
}

// Serve listens on addr and starts answering health checks in the background,
// initially NOT_SERVING until SetServing(true).
func Serve(addr string, log zerolog.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 5 * time.Minute,
			Time:              2 * time.Minute,
			Timeout:           20 * time.Second,
		}),
	)
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, hs)
	srv := &Server{grpc: s, health: hs, lis: lis, log: log}
	srv.SetServing(false)

	go func() {
		if err := s.Serve(lis); err != nil {
			log.Warn().Err(err).Msg("health server stopped")
		}
	}()
	log.Info().Str("addr", lis.Addr().String()).Msg("health server listening")
	return srv, nil
}

// Addr is the bound listen address.
func (s *Server) Addr() string { return s.lis.Addr().String() }

// SetServing flips both the overall and the engine service status.
func (s *Server) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(Service, status)
}

// Close marks the server not serving and stops it gracefully.
func (s *Server) Close() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
