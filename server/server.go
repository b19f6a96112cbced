package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"planet/config"
	"planet/db"
	"planet/dispatch"
	"planet/ingest"
	"planet/models"
	"planet/prettydate"
	"planet/timeline"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cache"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/gorilla/feeds"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

type ServerConfig struct {

	// The hostname to use for links in the atom feed
	Hostname string

	// The static author roster
	Config *config.Config

	// The store, used directly for the atom feed
	DB *db.DB

	// Pager for the timeline endpoints
	Pager *timeline.Pager

	// Coordinator behind the pull trigger
	Ingest *ingest.Coordinator

	// Dispatcher behind the dispatch trigger, nil when announcing is
	// not configured
	Dispatch *dispatch.Loop

	// Broadcast channel to pass new stories to SSE clients
	Broadcaster *Broadcaster
}

// Make it sync
type Broadcaster struct {
	sync.RWMutex
	storyClients map[string]chan models.CreateStoryEvent
}

// Constructor
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		storyClients: make(map[string]chan models.CreateStoryEvent, 10000),
	}
}

func (b *Broadcaster) BroadcastCreateStory(story models.CreateStoryEvent) {
	b.RLock()
	defer b.RUnlock()

	for id, client := range b.storyClients {
		select {
		case client <- story: // Non-blocking send
		default:
			log.Warnf("Client channel full, skipping story for client: %v", id)
		}
	}
}

// Function to add a client to the broadcaster
func (b *Broadcaster) AddClient(key string, storyClient chan models.CreateStoryEvent) {
	b.Lock()
	defer b.Unlock()
	b.storyClients[key] = storyClient
	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.storyClients),
	}).Info("Adding client to broadcaster")
}

// Function to remove a client from the broadcaster
func (b *Broadcaster) RemoveClient(key string) {
	b.Lock()
	defer b.Unlock()

	if client, ok := b.storyClients[key]; ok { // Check if the client exists
		close(client)               // Safely close the channel
		delete(b.storyClients, key) // Remove from the map
	}

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.storyClients),
	}).Info("Removed client from broadcaster")
}

func (b *Broadcaster) Shutdown() {
	log.Info("Shutting down broadcaster")
	b.Lock()
	defer b.Unlock()
	for key, client := range b.storyClients {
		close(client)
		delete(b.storyClients, key)
	}
}

// storyView adds the humanized date to a story for presentation.
type storyView struct {
	models.Story
	PrettyDate string `json:"prettyDate"`
}

type timelineView struct {
	Stories      []storyView         `json:"stories"`
	Cursor       *string             `json:"cursor"`
	More         bool                `json:"more"`
	Author       *config.TomlAuthor  `json:"author,omitempty"`
	Contributors []config.TomlAuthor `json:"contributors"`
}

// Returns a fiber.App instance to be used as an HTTP server for the planet timeline
func Server(cfg *ServerConfig) *fiber.App {

	bc := cfg.Broadcaster

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		// start timer
		start := time.Now()

		// next routes
		err := c.Next()

		// stop timer
		stop := time.Now()

		// Diff
		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"latency": stop.Sub(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	// Cache the atom feed only; everything else is either cheap or a
	// trigger with side effects.
	app.Use(cache.New(cache.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Method() != fiber.MethodGet || c.Path() != "/atom.xml"
		},
		Expiration: 5 * time.Minute,
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return timelinePage(c, cfg, "")
	})

	app.Get("/stories/by/:authorId", func(c *fiber.Ctx) error {
		return timelinePage(c, cfg, c.Params("authorId"))
	})

	app.Get("/atom.xml", func(c *fiber.Ctx) error {
		stories, err := cfg.DB.GetTimeline(c.UserContext(), "", nil, 10)
		if err != nil {
			log.WithFields(log.Fields{
				"error": err,
			}).Error("Error getting stories for atom feed")
			return fiber.ErrInternalServerError
		}

		atom, err := atomFeed(cfg.Hostname, stories)
		if err != nil {
			return fiber.ErrInternalServerError
		}

		c.Set(fiber.HeaderContentType, "text/xml")
		return c.SendString(atom)
	})

	// Trigger endpoints for the external scheduler. Both report a bare
	// success token; ingestion and dispatch failures are invisible to
	// end users.
	app.Get("/tasks/pull-stories", func(c *fiber.Ctx) error {
		cfg.Ingest.Run(c.UserContext())
		return c.SendString("ok")
	})

	app.Get("/tasks/dispatch-story", func(c *fiber.Ctx) error {
		if cfg.Dispatch == nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString("announce channel not configured")
		}
		id, err := cfg.Dispatch.Tick(c.UserContext())
		if err != nil {
			return fiber.ErrInternalServerError
		}
		if id == "" {
			return c.SendString("noop")
		}
		return c.SendString(id)
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Delete("/stories/sse", func(c *fiber.Ctx) error {
		key := c.Query("key", "")
		bc.RemoveClient(key)
		return c.SendString("OK")
	})

	app.Get("/stories/sse", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")

		// Unique client key
		key := uuid.New().String()
		sseStoryChannel := make(chan models.CreateStoryEvent, 10) // Buffered channel
		aliveChan := time.NewTicker(5 * time.Second)

		defer aliveChan.Stop()

		// Register the client
		bc.AddClient(key, sseStoryChannel)

		// Cleanup function
		cleanup := func() {
			log.Infof("Cleaning up SSE stream for client: %s", key)
			bc.RemoveClient(key)
		}

		// Use StreamWriter to manage SSE streaming
		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer cleanup()

			// Send initial event with client key
			fmt.Fprintf(w, "event: init\ndata: %s\n\n", key)
			if err := w.Flush(); err != nil {
				log.Errorf("Failed to send init event: %v", err)
				return
			}

			// Start streaming loop
			for {
				select {
				case <-aliveChan.C:
					// Send keep-alive pings
					if _, err := fmt.Fprintf(w, "event: ping\ndata: \n\n"); err != nil {
						log.Warnf("Failed to send ping to client %s: %v", key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush ping for client %s: %v", key, err)
						return
					}

				case story, ok := <-sseStoryChannel:
					if !ok {
						log.Warnf("StoryChannel closed for client %s", key)
						return
					}
					jsonStory, err := json.Marshal(story.Story)
					if err != nil {
						log.Errorf("Error marshalling story for client %s: %v", key, err)
						continue
					}
					if _, err := fmt.Fprintf(w, "event: create-story\ndata: %s\n\n", jsonStory); err != nil {
						log.Warnf("Failed to send create-story event to client %s: %v", key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush create-story event for client %s: %v", key, err)
						return
					}
				}
			}
		}))

		return nil
	})

	return app
}

func timelinePage(c *fiber.Ctx, cfg *ServerConfig, authorId string) error {
	cursor := c.Query("page", "")
	limit, err := strconv.ParseInt(c.Query("limit", "10"), 0, 32)
	if err != nil || limit < 1 || limit > 100 {
		limit = 10
	}

	page, err := cfg.Pager.Page(c.UserContext(), authorId, cursor, int(limit))
	if err != nil {
		if errors.Is(err, timeline.ErrUnknownAuthor) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	now := time.Now()
	views := make([]storyView, 0, len(page.Stories))
	for _, story := range page.Stories {
		views = append(views, storyView{
			Story:      story,
			PrettyDate: prettydate.Format(now, time.Unix(story.PublishedAt, 0)),
		})
	}

	// Shuffle the contributor list so front pages rotate who gets the
	// top spots.
	contributors := cfg.Config.AuthorList()
	rand.Shuffle(len(contributors), func(i, j int) {
		contributors[i], contributors[j] = contributors[j], contributors[i]
	})

	view := timelineView{
		Stories:      views,
		Cursor:       page.Cursor,
		More:         page.More,
		Contributors: contributors,
	}

	if authorId != "" {
		if author, ok := cfg.Config.Author(authorId); ok {
			view.Author = &author
		}
	}

	return c.JSON(view)
}

func atomFeed(hostname string, stories []models.Story) (string, error) {
	newest := time.Time{}
	if len(stories) > 0 {
		newest = time.Unix(stories[0].PublishedAt, 0)
	}

	atom := &feeds.Feed{
		Title:   "Planet",
		Link:    &feeds.Link{Href: "https://" + hostname + "/"},
		Updated: newest,
	}

	for _, story := range stories {
		atom.Items = append(atom.Items, &feeds.Item{
			Id:          story.Id,
			Title:       story.Title,
			Description: story.Summary,
			Link:        &feeds.Link{Href: story.Link},
			Author:      &feeds.Author{Name: story.AuthorName},
			Created:     time.Unix(story.PublishedAt, 0),
		})
	}

	return atom.ToAtom()
}

// errorHandler keeps "not found" and "unexpected error" distinguishable
// for the presentation layer without leaking anything else.
func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) && fiberErr.Code == fiber.StatusNotFound {
		return c.Status(fiber.StatusNotFound).SendString("Not found")
	}
	msg := strings.TrimSpace(err.Error())
	return c.Status(fiber.StatusInternalServerError).SendString("Sorry, unexpected error: " + msg)
}
