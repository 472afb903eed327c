package web

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// LedgerService is the health service name reported for the ledger.
const LedgerService = "dexvault.v1.Ledger"

// GRPCServer serves the standard gRPC health protocol for the ledger host.
type GRPCServer struct {
	port   string
	server *grpc.Server
	health *health.Server
}

// NewGRPCServer registers the health and reflection services. The ledger starts as NOT_SERVING.
func NewGRPCServer(port string, opts ...grpc.ServerOption) *GRPCServer {
	if port == "" {
		port = "9090"
	}
	s := &GRPCServer{
		port:   port,
		server: grpc.NewServer(opts...),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)
	s.SetServing(false)
	return s
}

// SetServing flips the status of both the ledger service and the overall server.
func (s *GRPCServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(LedgerService, status)
}

// Start listens on the configured port and blocks until Stop.
func (s *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve blocks serving on lis.
func (s *GRPCServer) Serve(lis net.Listener) error {
	webLogger.Info().Str("addr", lis.Addr().String()).Msg("Starting gRPC health server")
	return s.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
