package cmd

import (
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"planet/bluesky"
	"planet/config"
	"planet/db"
	"planet/dispatch"
	"planet/feed"
	"planet/ingest"
	"planet/models"
	"planet/server"
	"planet/timeline"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the story timeline",
		Description: `Starts the planet HTTP server.

Serves the aggregated story timeline as JSON and Atom, streams newly
ingested stories over SSE, and exposes the /tasks endpoints an external
scheduler hits to trigger feed pulls and story dispatch.`,
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   3000,
				Usage:   "Port to listen on",
				EnvVars: []string{"PLANET_PORT"},
			},
		},
		Action: func(ctx *cli.Context) error {
			fmt.Println("Starting planet...")

			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			dbPath := cfg.Database.Path
			if dbPath == "" {
				dbPath = "planet.db"
			}

			if err := db.Migrate(dbPath); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			store, err := db.NewDB(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			// Channel for passing freshly ingested stories to SSE clients
			storyChan := make(chan models.CreateStoryEvent, 100)
			bc := server.NewBroadcaster()

			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			coordinator := ingest.NewCoordinator(store, feed.NewFetcher(), cfg, rng, storyChan)
			pager := timeline.NewPager(store, cfg)

			var loop *dispatch.Loop
			if cfg.CanAnnounce() {
				host := cfg.Announce.Host
				if host == "" {
					host = bluesky.DefaultPDSHost
				}
				client, err := bluesky.ClientFromCredentials(ctx.Context, host, &bluesky.Credentials{
					Identifier: cfg.Announce.Handle,
					Password:   cfg.Announce.Password,
				})
				if err != nil {
					// Serve without dispatch rather than not at all;
					// stories keep accumulating as pending.
					log.WithFields(log.Fields{
						"error": err,
					}).Error("Error creating announce client, dispatch disabled")
				} else {
					loop = dispatch.NewLoop(store, client)
				}
			}

			app := server.Server(&server.ServerConfig{
				Hostname:    cfg.Server.Hostname,
				Config:      cfg,
				DB:          store,
				Pager:       pager,
				Ingest:      coordinator,
				Dispatch:    loop,
				Broadcaster: bc,
			})

			// Forward new stories to the SSE broadcaster
			go func() {
				for story := range storyChan {
					bc.BroadcastCreateStory(story)
				}
			}()

			// Graceful shutdown
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt)
			go func() {
				<-c
				fmt.Println("Gracefully shutting down...")
				app.ShutdownWithTimeout(60 * time.Second)
				bc.Shutdown()
			}()

			fmt.Println("Starting server...")
			if err := app.Listen(fmt.Sprintf(":%d", ctx.Int("port"))); err != nil {
				return err
			}

			fmt.Println("Done!")
			return nil
		},
	}
}
