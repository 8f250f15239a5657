// Package main provides the bulletin board demo tool. It persists the
// board state in a local database and drives the contract with a secret
// key stored on disk.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	err := run(os.Args)
	if err != nil {
		fmt.Printf("%+v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	return runWithCfg(args, os.Stdout)
}

func runWithCfg(args []string, out io.Writer) error {
	app := &cli.App{
		Name:   "bboard",
		Usage:  "post and take down messages on a bulletin board contract",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the YAML configuration file",
			},
			&cli.StringFlag{
				Name:  "db",
				Value: "bboard.db",
				Usage: "path to the state database",
			},
			&cli.StringFlag{
				Name:  "key",
				Value: "bboard.key",
				Usage: "path to the secret key file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "keygen",
				Usage:  "generate a secret key",
				Action: keygenAction,
			},
			{
				Name:  "post",
				Usage: "post a message on the board",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "message",
						Usage:    "the message to post",
						Required: true,
					},
				},
				Action: postAction,
			},
			{
				Name:   "takedown",
				Usage:  "take down the standing post",
				Action: takeDownAction,
			},
			{
				Name:   "show",
				Usage:  "display the board",
				Action: showAction,
			},
		},
	}

	return app.Run(args)
}
