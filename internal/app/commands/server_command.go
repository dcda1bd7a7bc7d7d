package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"robot-gateway/internal/app"
)

// GetServerCommand возвращает команду для запуска сервера
func GetServerCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Start robot gateway connected to the robot pub-sub network",
		Description: `Subscribe to telemetry and video topics over NATS and serve
/state, /health and the /video websocket.

Examples:
  robot-gateway server --nats-url nats://robot:4222
  PORT=8081 robot-gateway server --ffmpeg /usr/bin/ffmpeg`,
		Flags: append(serverFlags(),
			&cli.StringFlag{
				Name:  "nats-url",
				Usage: "NATS server URL",
			},
			&cli.BoolFlag{
				Name:  "debug-frames",
				Usage: "Broadcast synthetic counter frames alongside the robot stream",
			},
		),
		Action: func(c *cli.Context) error {
			ctx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer ctx.Logger.Sync()

			ctx.Logger.Info("Starting robot gateway",
				zap.String("address", ctx.Config.Addr()),
				zap.String("nats", ctx.Config.NATS.URL),
				zap.String("grpc_port", ctx.Config.GRPCPort),
				zap.Bool("debug_frames", ctx.Config.Debug.Frames))

			application, err := app.NewApplicationWithConfig(ctx.Config, ctx.Logger)
			if err != nil {
				return err
			}

			return runUntilSignal(c.Context, application)
		},
	}
}

// runUntilSignal запускает приложение до SIGINT/SIGTERM
func runUntilSignal(parent context.Context, application *app.Application) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return application.Run(ctx)
}
