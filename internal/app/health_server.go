package app

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthServiceName имя сервиса в gRPC health протоколе
const HealthServiceName = "robot-gateway"

// DefaultHealthStopTimeout сколько Stop ждет закрытия открытых стримов
const DefaultHealthStopTimeout = 5 * time.Second

// HealthServer gRPC сервер со стандартным health сервисом и reflection
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	logger *zap.Logger

	stopTimeout time.Duration
}

// NewHealthServer создает сервер в состоянии NOT_SERVING
func NewHealthServer(logger *zap.Logger) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(HealthServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return &HealthServer{server: srv, health: hs, logger: logger, stopTimeout: DefaultHealthStopTimeout}
}

// SetServing переключает статус всех сервисов
func (s *HealthServer) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(HealthServiceName, status)
}

// Run слушает порт и обслуживает запросы до Stop
func (s *HealthServer) Run(port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen on :%s: %w", port, err)
	}
	return s.Serve(lis)
}

// Serve обслуживает запросы на готовом listener
func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health server listening", zap.String("address", lis.Addr().String()))
	return s.server.Serve(lis)
}

// Stop переводит статус в NOT_SERVING и останавливает сервер.
// Открытые Watch стримы сами не завершаются, поэтому по истечении
// stopTimeout соединения закрываются принудительно.
func (s *HealthServer) Stop() {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.stopTimeout):
		s.logger.Warn("gRPC graceful stop timed out, forcing stop", zap.Duration("timeout", s.stopTimeout))
		s.server.Stop()
		<-done
	}
}
