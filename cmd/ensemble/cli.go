package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/peter-kozarec/ensemble/internal/dbg"
)

const (
	AppName    = "ensemble"
	AppVersion = "0.3.0"
	AppDesc    = "ensemble-averaged distance restraints"
)

func createCliApp() *cli.App {
	return &cli.App{
		Name:    AppName,
		Version: AppVersion,
		Usage:   AppDesc,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "development logging at debug level",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			serveCommand(),
			synthCommand(),
			dumpCommand(),
		},
	}
}

// setup returns the logger and a context cancelled on SIGINT or SIGTERM.
func setup(c *cli.Context) (*zap.Logger, context.Context, context.CancelFunc) {
	logger := dbg.NewLogger(c.Bool("debug"))
	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	return logger, ctx, cancel
}

func syncLogger(logger *zap.Logger) {
	_ = logger.Sync()
}
