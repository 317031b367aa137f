// Command emvtool walks an EMV card through application selection, offline
// data authentication, cardholder verification and the transaction
// counters.
package main

import (
	"fmt"
	"os"

	"github.com/gregLibert/ccid-emv/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "emvtool",
		Usage: "inspect an EMV payment card",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "TOML configuration `FILE`",
				EnvVars: []string{"EMVTOOL_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "reader backend, pcsc or usb",
			},
			&cli.StringFlag{
				Name:  "reader",
				Usage: "PC/SC reader name",
			},
			&cli.StringFlag{
				Name:  "pin",
				Usage: "offline plaintext PIN to verify",
			},
			&cli.DurationFlag{
				Name:  "wait",
				Usage: "how long to wait for a card on the usb backend (0 waits forever)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log every APDU",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			c.App.Metadata = map[string]interface{}{"config": cfg}
			return nil
		},
		Action: func(c *cli.Context) error {
			return run(c.Context, configFrom(c), c.Duration("wait"))
		},
		Commands: []*cli.Command{
			{
				Name:  "readers",
				Usage: "list PC/SC readers",
				Action: func(c *cli.Context) error {
					names, err := listReaders()
					if err != nil {
						return err
					}
					for i, n := range names {
						fmt.Fprintf(c.App.Writer, "%d: %s\n", i, n)
					}
					return nil
				},
			},
			{
				Name:  "config",
				Usage: "print the effective configuration",
				Action: func(c *cli.Context) error {
					return printConfig(c.App.Writer, configFrom(c))
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func configFrom(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}

// loadConfig reads the configuration file, if any, and applies the command
// line overrides on top of it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if c.IsSet("backend") {
		cfg.Reader.Backend = c.String("backend")
	}
	if c.IsSet("reader") {
		cfg.Reader.Name = c.String("reader")
	}
	if c.IsSet("pin") {
		cfg.Terminal.PIN = c.String("pin")
	}
	if c.Bool("verbose") {
		cfg.Log.Level = logrus.DebugLevel.String()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
