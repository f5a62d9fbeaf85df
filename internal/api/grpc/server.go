// Package grpcapi hosts the gRPC endpoint of the service: standard health
// checking for orchestrators and reflection for debugging tools.
package grpcapi

import (
	"net"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"ai-media-hub-service/internal/observability/metrics"
)

// ServiceName is the health-checked service name.
const ServiceName = "ai.media.hub.MediaHub"

const (
	healthCheckMethod = "/grpc.health.v1.Health/Check"
	healthWatchMethod = "/grpc.health.v1.Health/Watch"
)

// Server wraps a grpc.Server with its health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// New creates the gRPC server with the logging and metrics interceptors. It
// reports NOT_SERVING until SetServing(true).
func New(m *metrics.Metrics) *Server {
	g := grpc.NewServer(
		grpc.UnaryInterceptor(unaryInterceptor(m)),
		grpc.StreamInterceptor(streamInterceptor(m)),
	)
	h := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, h)
	reflection.Register(g)

	s := &Server{grpc: g, health: h}
	s.SetServing(false)
	return s
}

// SetServing flips the reported health of the process and of ServiceName.
func (s *Server) SetServing(serving bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve serves on lis in a goroutine.
func (s *Server) Serve(lis net.Listener) {
	go func() {
		log.Info().Str("addr", lis.Addr().String()).Msg("Starting gRPC server")
		if err := s.grpc.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC serve failed")
		}
	}()
}

// Stop marks the server not serving and stops it gracefully.
func (s *Server) Stop() {
	log.Info().Msg("Shutting down gRPC server")
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
