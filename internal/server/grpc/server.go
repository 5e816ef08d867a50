// Package grpc serves the internal lookup API used by other services, next
// to the standard gRPC health service.
package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/refkeeper/internal/logging"
	"github.com/dmitrijs2005/refkeeper/internal/server/models"
)

type CodeResolver interface {
	ResolveActive(ctx context.Context, code string) (*models.User, error)
}

type ReferralLister interface {
	ListReferrals(ctx context.Context, userID string) ([]models.User, error)
}

type TokenVerifier interface {
	VerifyToken(ctx context.Context, accessToken string) (string, error)
}

type GRPCServer struct {
	address      string
	codes        CodeResolver
	registration ReferralLister
	tokens       TokenVerifier
	logger       logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, codes CodeResolver, reg ReferralLister, tokens TokenVerifier) *GRPCServer {
	return &GRPCServer{
		address:      a,
		logger:       l.With("module", "grpc_server"),
		codes:        codes,
		registration: reg,
		tokens:       tokens,
	}
}

func (s *GRPCServer) newServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))

	RegisterLookupServer(srv, s)

	hs := health.NewServer()
	hs.SetServingStatus(LookupServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return srv, hs
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv, hs := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		hs.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	return srv.Serve(listen)
}
