package main

import (
	"os"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/config"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	"github.com/urfave/cli/v2"
)

func init() {
	// Dispatch logging output instead of writing all levels' messages to
	// stderr.
	logging.Set(logging.Split(os.Stdout, os.Stderr))
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logging.New("main").WithError(err).Error("taskwatch failed")
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "taskwatch",
		Usage: "track agent upgrade tasks and relay them to the task manager",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the configuration file",
				Value:   config.DefaultPath,
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			upgradeCommand(),
			roleCommand(),
		},
		HideHelpCommand: true,
	}
}

// loadConfig reads the configured file. A missing default file leaves the
// daemon on built-in defaults, an explicitly named one must exist.
func loadConfig(c *cli.Context) (*config.Config, string, error) {
	path := c.String("config")
	if _, err := os.Stat(path); os.IsNotExist(err) && !c.IsSet("config") {
		cfg := config.Default()
		applyLogLevel(c, cfg)
		return cfg, "", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	applyLogLevel(c, cfg)
	return cfg, path, nil
}

func applyLogLevel(c *cli.Context, cfg *config.Config) {
	if c.Bool("debug") {
		logging.Set(logging.Level("debug"))
		return
	}
	logging.Set(logging.Level(cfg.LogLevel))
}
