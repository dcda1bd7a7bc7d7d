package commands

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"robot-gateway/internal/app"
	"robot-gateway/internal/grpc_client"
)

// GetHealthCheckCommand опрашивает gRPC health сервис запущенного шлюза
func GetHealthCheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "health-check",
		Usage: "Query the gateway gRPC health service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "address",
				Value: "localhost:19090",
				Usage: "gRPC health address",
			},
			&cli.StringFlag{
				Name:  "service",
				Value: app.HealthServiceName,
				Usage: "Service name, empty for overall server status",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 3 * time.Second,
				Usage: "Request timeout",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer ctx.Logger.Sync()

			client, err := grpc_client.NewHealthClient(c.String("address"), c.Duration("timeout"), ctx.Logger)
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.Check(c.Context, c.String("service"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			fmt.Fprintln(c.App.Writer, protojson.Format(resp))
			if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
				ctx.Logger.Warn("Gateway is not serving", zap.String("status", resp.GetStatus().String()))
				return cli.Exit("not serving", 1)
			}
			return nil
		},
	}
}
