package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/eosc-synergy/sqaaas/clicommand"
	"github.com/eosc-synergy/sqaaas/version"
)

func main() {
	app := cli.NewApp()
	app.Name = "sqaaas-api"
	app.Version = version.Version()
	app.Usage = "Pipeline-as-a-service API for the SQAaaS platform"
	app.Commands = []cli.Command{
		clicommand.StartCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
