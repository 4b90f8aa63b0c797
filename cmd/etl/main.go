package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "docetl/internal/storage/all"
)

// version is overridden at link time.
var version = "dev"

// main is the entry point for the ETL binary. Exit status is 0 when every
// file loaded, 2 when some files failed and 1 when nothing could run.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "docetl: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to a TOML or JSON configuration file",
		Sources: cli.EnvVars("ETL_CONFIG"),
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "docetl",
		Usage:   "Load Spotify playlist and track CSV exports into a document store",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run the pipeline over every configured file",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "storage",
						Usage: "Override the storage backend (mongo, postgres, mysql, mssql, sqlite, memory)",
					},
					&cli.StringFlag{
						Name:  "dsn",
						Usage: "Override the storage connection string",
					},
					&cli.StringFlag{
						Name:  "dir",
						Usage: "Read every CSV file in this directory",
					},
					&cli.BoolFlag{
						Name:  "pipelined",
						Usage: "Overlap reading and loading of chunks",
					},
					&cli.StringFlag{
						Name:  "log-level",
						Usage: "debug, info, warn or error",
					},
				},
				Action: runAction,
			},
			{
				Name:  "sniff",
				Usage: "Print the delimiter, columns and first rows of a CSV file",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags: []cli.Flag{
					configFlag(),
					&cli.IntFlag{
						Name:  "rows",
						Usage: "Number of sample rows",
						Value: 5,
					},
				},
				Action: sniffAction,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration and exit",
				Flags:  []cli.Flag{configFlag()},
				Action: validateAction,
			},
		},
	}
}
