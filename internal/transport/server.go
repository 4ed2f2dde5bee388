package transport

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"adi/internal/logging"
	"adi/internal/plugin"
)

// Server hosts transform functions and the standard health service.
type Server struct {
	grpc   *grpc.Server
	lis    net.Listener
	health *health.Server
}

func StartServer(port int, fns plugin.Functions) (*Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	return NewServer(lis, fns), nil
}

// NewServer registers the services on lis; call Serve to accept.
func NewServer(lis net.Listener, fns plugin.Functions, opts ...grpc.ServerOption) *Server {
	s := &Server{
		grpc:   grpc.NewServer(opts...),
		lis:    lis,
		health: health.NewServer(),
	}
	s.grpc.RegisterService(&plugin.ServiceDesc, fns)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(plugin.ServiceName, healthpb.HealthCheckResponse_SERVING)
	logging.Component("transport").Info("serving transformations", "addr", lis.Addr().String(), "count", len(fns))
	return s
}

func (s *Server) Addr() net.Addr { return s.lis.Addr() }

func (s *Server) Serve() error {
	return s.grpc.Serve(s.lis)
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
