package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "planet",
		Usage: "A shared story timeline for a roster of blog authors",
		Description: `Planet aggregates the RSS and Atom feeds of a configured
		roster of authors into one chronological story timeline.

		Stories are deduplicated by their canonical link, stored in an
		SQLite database and served over an HTTP API with forward-only
		cursor pagination. New stories can be announced to Bluesky, one
		story per dispatch tick.

		Flags can generally be set via environment variables, e.g.:

		--config => PLANET_CONFIG=planet.toml
		--database => PLANET_DATABASE=planet.db
		`,
		Commands: []*cli.Command{
			serveCmd(),
			pullCmd(),
			dispatchCmd(),
			migrateCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "planet.toml",
		Usage:   "Path to the configuration file",
		EnvVars: []string{"PLANET_CONFIG"},
	}
}
