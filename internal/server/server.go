// Package server exposes the operational surfaces: a gRPC endpoint carrying
// the standard health service (used by orchestration probes and grpcurl),
// and an HTTP endpoint for Prometheus metrics, liveness/readiness and the
// read-only query API.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"BetLedger/internal/observability"
)

// API registers application routes on the HTTP mux, alongside the
// operational endpoints.
type API interface {
	Register(mux *http.ServeMux)
}

// Server bundles the gRPC health endpoint and the HTTP metrics endpoint.
type Server struct {
	grpcServer *grpc.Server
	httpServer *http.Server
	health     *health.Server
	grpcAddr   string
	log        zerolog.Logger
}

func New(grpcAddr, httpAddr string, checker *observability.HealthChecker, api API, log zerolog.Logger) *Server {
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", checker.LivenessHandler)
	mux.HandleFunc("/readyz", checker.ReadinessHandler)
	if api != nil {
		api.Register(mux)
	}

	return &Server{
		grpcServer: grpcServer,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		health:   healthServer,
		grpcAddr: grpcAddr,
		log:      log,
	}
}

// SetServing flips the gRPC health status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// Start begins serving on both listeners. Non-blocking; errors after startup
// are logged.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.grpcAddr, err)
	}

	go func() {
		s.log.Info().Str("addr", s.grpcAddr).Msg("grpc server listening")
		if err := s.grpcServer.Serve(lis); err != nil {
			s.log.Error().Err(err).Msg("grpc serve")
		}
	}()
	go func() {
		s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("http serve")
		}
	}()
	return nil
}

// Shutdown stops both servers, waiting up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) {
	s.SetServing(false)

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("http shutdown")
	}
}
