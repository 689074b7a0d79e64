package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "rtosdemo",
		Usage: "boot the shared-stack kernel on the host and inspect it",
		Commands: []*cli.Command{
			runCommand(),
			layoutCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
