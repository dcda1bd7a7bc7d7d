package commands

import (
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"robot-gateway/internal/app"
	"robot-gateway/internal/transport"
)

// GetDebugFramesCommand запускает сервер без робота: /video отдает
// синтетические кадры со счетчиком, /state отдает значения по умолчанию
func GetDebugFramesCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug-frames",
		Usage: "Serve synthetic video frames without a robot connection",
		Flags: append(serverFlags(),
			&cli.DurationFlag{
				Name:  "period",
				Usage: "Interval between debug frames",
			},
		),
		Action: func(c *cli.Context) error {
			ctx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer ctx.Logger.Sync()

			ctx.Config.Debug.Frames = true
			if c.IsSet("period") {
				ctx.Config.Debug.FramePeriod = c.Duration("period")
			}

			bus := transport.NewBus()
			defer bus.Close()

			application, err := app.NewApplication(ctx.Config, bus, ctx.Logger)
			if err != nil {
				return err
			}

			ctx.Logger.Info("Starting robot gateway in debug frame mode",
				zap.String("address", ctx.Config.Addr()),
				zap.Duration("period", ctx.Config.Debug.FramePeriod))

			return runUntilSignal(c.Context, application)
		},
	}
}
