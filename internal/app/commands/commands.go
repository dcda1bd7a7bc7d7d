package commands

import (
	"github.com/urfave/cli/v2"
)

// GetCommands возвращает все доступные команды
func GetCommands() []*cli.Command {
	return []*cli.Command{
		GetServerCommand(),
		GetDebugFramesCommand(),
		GetVersionCommand(),
		GetHealthCheckCommand(),
	}
}

// GlobalFlags флаги, общие для всех команд
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "./config/config.yaml",
			Usage:   "Path to YAML config file",
		},
		&cli.StringFlag{
			Name:    "log-level",
			EnvVars: []string{"LOG_LEVEL"},
			Usage:   "Log level: debug, info, warn, error",
		},
		&cli.BoolFlag{
			Name:    "debug",
			Aliases: []string{"d"},
			Usage:   "Development logger",
		},
	}
}

// serverFlags флаги команд, поднимающих HTTP сервер
func serverFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "HTTP port (overrides PORT and config)",
		},
		&cli.StringFlag{
			Name:  "host",
			Usage: "HTTP host",
		},
		&cli.StringFlag{
			Name:  "grpc-port",
			Usage: "gRPC health port, empty disables it",
		},
		&cli.StringFlag{
			Name:  "ffmpeg",
			Usage: "Path or name of ffmpeg binary for h264/hevc/av1 decoding, empty disables it",
		},
		&cli.BoolFlag{
			Name:  "noise",
			Usage: "Apply noise to /state by default",
		},
	}
}
