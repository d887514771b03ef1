// Command gatekeeper scans a repository against a catalog of hard
// hygiene gates (structured logging, secret handling, test coverage
// signals, and the like) and reports a weighted score. It can run a
// single scan from the command line, serve the same pipeline over HTTP,
// or simply list the gates a catalog defines.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/gatekeeper/internal/config"
	"github.com/standardbeagle/gatekeeper/internal/version"
)

func retentionDuration(cfg *config.ServerConfig) time.Duration {
	return time.Duration(cfg.RetentionDays) * 24 * time.Hour
}

func main() {
	app := &cli.App{
		Name:                   "gatekeeper",
		Usage:                  "Audit a repository against a catalog of hard hygiene gates",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (KDL)",
				Value:   "gatekeeper.kdl",
			},
			&cli.StringFlag{
				Name:  "catalog",
				Usage: "Pattern catalog file path (overrides config)",
			},
			&cli.StringFlag{
				Name:  "storage-backend",
				Usage: "Result store backend: kv|sql|file|memory (overrides config)",
			},
			&cli.StringFlag{
				Name:  "storage-dsn",
				Usage: "Result store connection string or directory (overrides config)",
			},
			&cli.StringFlag{
				Name:  "work-dir",
				Usage: "Scratch directory for cloned working trees (overrides config)",
			},
		},
		Commands: []*cli.Command{
			scanCommand(),
			viewCommand(),
			gatesCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "gatekeeper:", err)
		os.Exit(2)
	}
}
