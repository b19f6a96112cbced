package cmd

import (
	"fmt"

	"planet/bluesky"
	"planet/config"
	"planet/db"
	"planet/dispatch"

	"github.com/cqroot/prompt"
	"github.com/cqroot/prompt/input"
	"github.com/urfave/cli/v2"
)

func dispatchCmd() *cli.Command {
	return &cli.Command{
		Name:  "dispatch",
		Usage: "Announce one pending story",
		Description: `Runs a single dispatch tick: picks at most one story that
has not been announced yet, posts it to the announce channel and marks
it announced.

The story is marked announced even when the post fails. Announcements
are best effort by design; this is not a high availability feature.

Credentials are read from the config file, or prompted for when the
config has none.`,
		Flags: []cli.Flag{
			configFlag(),
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			creds := bluesky.Credentials{
				Identifier: cfg.Announce.Handle,
				Password:   cfg.Announce.Password,
			}

			if creds.Identifier == "" {
				creds.Identifier, err = prompt.New().Ask("Handle:").Input("myname.bsky.social")
				if err != nil {
					return err
				}
			}
			if creds.Password == "" {
				creds.Password, err = prompt.New().Ask("Password:").Input("", input.WithEchoMode(input.EchoNone))
				if err != nil {
					return err
				}
			}

			host := cfg.Announce.Host
			if host == "" {
				host = bluesky.DefaultPDSHost
			}

			client, err := bluesky.ClientFromCredentials(ctx.Context, host, &creds)
			if err != nil {
				return fmt.Errorf("could not create client with provided credentials: %w", err)
			}

			dbPath := cfg.Database.Path
			if dbPath == "" {
				dbPath = "planet.db"
			}

			store, err := db.NewDB(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := dispatch.NewLoop(store, client).Tick(ctx.Context)
			if err != nil {
				return err
			}
			if id == "" {
				fmt.Println("noop")
				return nil
			}

			fmt.Println(id)
			return nil
		},
	}
}
