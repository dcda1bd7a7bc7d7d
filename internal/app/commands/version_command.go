package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"robot-gateway/internal/app"
)

// GetVersionCommand выводит информацию о сборке
func GetVersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show build information",
		Action: func(c *cli.Context) error {
			w := c.App.Writer
			fmt.Fprintf(w, "Robot Gateway\n")
			fmt.Fprintf(w, "Version:    %s\n", app.Version)
			fmt.Fprintf(w, "Commit:     %s\n", app.Commit)
			fmt.Fprintf(w, "Build Date: %s\n", app.BuildDate)
			return nil
		},
	}
}
