package grpc_client

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthClient клиент стандартного gRPC health сервиса шлюза
type HealthClient struct {
	conn    *grpc.ClientConn
	client  grpc_health_v1.HealthClient
	logger  *zap.Logger
	timeout time.Duration
}

// NewHealthClient создает клиента. Подключение устанавливается лениво при первом запросе.
func NewHealthClient(address string, timeout time.Duration, logger *zap.Logger) (*HealthClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	conn, err := grpc.NewClient(address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create health client for %s: %w", address, err)
	}

	logger.Debug("Health client created", zap.String("address", address))

	return &HealthClient{
		conn:    conn,
		client:  grpc_health_v1.NewHealthClient(conn),
		logger:  logger,
		timeout: timeout,
	}, nil
}

// Check запрашивает статус сервиса. Пустое имя означает статус сервера целиком.
func (c *HealthClient) Check(ctx context.Context, service string) (*grpc_health_v1.HealthCheckResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return nil, fmt.Errorf("health check %q: %w", service, err)
	}
	return resp, nil
}

// Close закрывает соединение
func (c *HealthClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
