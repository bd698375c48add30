package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()
	app.Name = "Governor"
	app.Usage = "Weighted, quorum-gated governance for registered agents"
	app.Compiled = time.Now()

	cli.VersionPrinter = func(c *cli.Context) {
		printVersion()
	}

	// global flags
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "repo",
			Usage: "Governor storage repo path",
		},
	}

	app.Commands = []*cli.Command{
		configCMD,
		agentCMD,
		proposalCMD,
		voteCMD,
		paramsCMD,
		{
			Name:   "start",
			Usage:  "Start a long-running daemon process following the chain head",
			Action: start,
		},
		{
			Name:    "version",
			Aliases: []string{"v"},
			Usage:   "Governor version",
			Action: func(ctx *cli.Context) error {
				printVersion()
				return nil
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
