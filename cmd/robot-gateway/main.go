package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"robot-gateway/internal/app"
	"robot-gateway/internal/app/commands"
)

func main() {
	application := &cli.App{
		Name:     "robot-gateway",
		Usage:    "HTTP/WebSocket gateway for robot telemetry and video",
		Version:  app.Version,
		Flags:    commands.GlobalFlags(),
		Commands: commands.GetCommands(),
		// без команды запускается сервер
		DefaultCommand: "server",
	}

	if err := application.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}
