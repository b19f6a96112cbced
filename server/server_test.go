package server_test

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"planet/config"
	"planet/db"
	"planet/ingest"
	"planet/models"
	"planet/server"
	"planet/timeline"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

type stubSource struct{}

func (s stubSource) Fetch(ctx context.Context, url string) []models.StoryDraft {
	return nil
}

func newTestServer(t *testing.T) (*fiber.App, *db.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "planet.db")
	if err := db.Migrate(path); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	store, err := db.NewDB(path)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		Server: config.TomlServer{Hostname: "planet.example.com"},
		Authors: map[string]config.TomlAuthor{
			"ada": {Id: "ada", Name: "Ada Lovelace", FeedUrl: "https://ada.example.com/feed.xml"},
		},
	}

	app := server.Server(&server.ServerConfig{
		Hostname:    cfg.Server.Hostname,
		Config:      cfg,
		DB:          store,
		Pager:       timeline.NewPager(store, cfg),
		Ingest:      ingest.NewCoordinator(store, stubSource{}, cfg, rand.New(rand.NewSource(1)), nil),
		Dispatch:    nil,
		Broadcaster: server.NewBroadcaster(),
	})

	return app, store
}

func seedStory(t *testing.T, store *db.DB, id string, publishedAt int64) {
	t.Helper()
	err := store.SaveStory(context.Background(), models.Story{
		Id:          id,
		AuthorId:    "ada",
		AuthorName:  "Ada Lovelace",
		PublishedAt: publishedAt,
		Title:       "Title " + id,
		Summary:     "Summary " + id,
		Link:        id,
	})
	if err != nil {
		t.Fatalf("failed to seed story: %v", err)
	}
}

func get(t *testing.T, app *fiber.App, path string) (*http.Response, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return resp, string(body)
}

func TestTimelineEndpoint(t *testing.T) {
	app, store := newTestServer(t)
	seedStory(t, store, "https://ada.example.com/one", 100)
	seedStory(t, store, "https://ada.example.com/two", 200)

	resp, body := get(t, app, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var view struct {
		Stories []struct {
			Id         string `json:"id"`
			PrettyDate string `json:"prettyDate"`
		} `json:"stories"`
		Contributors []struct {
			Name string `json:"Name"`
		} `json:"contributors"`
		More bool `json:"more"`
	}
	assert.NoError(t, json.Unmarshal([]byte(body), &view))
	assert.Len(t, view.Stories, 2)
	assert.Equal(t, "https://ada.example.com/two", view.Stories[0].Id)
	assert.NotEmpty(t, view.Stories[0].PrettyDate)
	assert.Len(t, view.Contributors, 1)
	assert.False(t, view.More)
}

func TestTimelineByAuthor(t *testing.T) {
	app, store := newTestServer(t)
	seedStory(t, store, "https://ada.example.com/one", 100)

	resp, body := get(t, app, "/stories/by/ada")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Ada Lovelace")
}

func TestTimelineUnknownAuthor(t *testing.T) {
	app, _ := newTestServer(t)

	resp, body := get(t, app, "/stories/by/nobody")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Not found", body)
}

func TestAtomFeed(t *testing.T) {
	app, store := newTestServer(t)
	seedStory(t, store, "https://ada.example.com/one", 100)

	resp, body := get(t, app, "/atom.xml")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/xml", resp.Header.Get(fiber.HeaderContentType))
	assert.True(t, strings.Contains(body, "<feed"))
	assert.Contains(t, body, "https://ada.example.com/one")
}

func TestPullStoriesTrigger(t *testing.T) {
	app, _ := newTestServer(t)

	resp, body := get(t, app, "/tasks/pull-stories")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)
}

func TestDispatchTriggerUnconfigured(t *testing.T) {
	app, _ := newTestServer(t)

	resp, body := get(t, app, "/tasks/dispatch-story")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "announce channel not configured", body)
}
