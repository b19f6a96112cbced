package ingest

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"planet/config"
	"planet/db"
	"planet/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	storiesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planet_stories_ingested_total",
		Help: "The total number of new stories saved by ingestion runs",
	})

	storeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planet_store_errors_total",
		Help: "The total number of storage errors swallowed during ingestion",
	})

	ingestRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planet_ingest_runs_total",
		Help: "The total number of ingestion runs",
	})
)

// StoryStore is the slice of the store the coordinator needs.
type StoryStore interface {
	StoryExists(ctx context.Context, id string) (bool, error)
	SaveStory(ctx context.Context, story models.Story) error
}

// Source produces normalized drafts for one feed address.
type Source interface {
	Fetch(ctx context.Context, url string) []models.StoryDraft
}

// Coordinator pulls every configured author's feed and persists the
// stories it has not seen before.
type Coordinator struct {
	store     StoryStore
	source    Source
	config    *config.Config
	rng       *rand.Rand
	storyChan chan<- models.CreateStoryEvent
}

// NewCoordinator wires the ingestion pipeline. The rng drives the author
// shuffle and is injectable so tests can pin the processing order;
// storyChan may be nil when nobody listens for new stories.
func NewCoordinator(store StoryStore, source Source, cfg *config.Config, rng *rand.Rand, storyChan chan<- models.CreateStoryEvent) *Coordinator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Coordinator{
		store:     store,
		source:    source,
		config:    cfg,
		rng:       rng,
		storyChan: storyChan,
	}
}

// Run pulls all configured feeds once. The scheduler that triggers it
// enforces a hard wall-clock timeout on the whole run and individual
// fetches have none, so one hanging feed could starve everyone behind it
// in the list. Shuffling spreads that risk across authors run over run
// instead of always hitting the same tail.
func (c *Coordinator) Run(ctx context.Context) {
	ingestRuns.Inc()

	authors := c.config.AuthorList()
	c.rng.Shuffle(len(authors), func(i, j int) {
		authors[i], authors[j] = authors[j], authors[i]
	})

	for _, author := range authors {
		c.pullAuthor(ctx, author)
	}
}

// pullAuthor ingests one author's feed. Failures stay inside this call so
// a broken feed or a flaky store never blocks the remaining authors.
func (c *Coordinator) pullAuthor(ctx context.Context, author config.TomlAuthor) {
	drafts := c.source.Fetch(ctx, author.FeedUrl)

	saved := 0
	for _, draft := range drafts {
		exists, err := c.store.StoryExists(ctx, draft.Link)
		if err != nil {
			storeErrors.Inc()
			log.WithFields(log.Fields{
				"link":  draft.Link,
				"error": err,
			}).Error("Error checking story existence")
			continue
		}
		if exists {
			continue
		}

		story := models.Story{
			Id:          draft.Link,
			AuthorId:    author.Id,
			AuthorName:  author.Name,
			PublishedAt: draft.PublishedAt,
			Title:       draft.Title,
			Summary:     draft.Summary,
			Link:        draft.Link,
			Announced:   false,
		}

		if err := c.store.SaveStory(ctx, story); err != nil {
			// A concurrent run can beat us to the insert after both
			// passed the existence check. The loser treats it as saved.
			if errors.Is(err, db.ErrDuplicateStory) {
				continue
			}
			storeErrors.Inc()
			log.WithFields(log.Fields{
				"link":  draft.Link,
				"error": err,
			}).Error("Error saving story")
			continue
		}

		saved++
		storiesIngested.Inc()

		select {
		case c.storyChan <- models.CreateStoryEvent{Story: story}:
		default:
		}
	}

	log.WithFields(log.Fields{
		"author":  author.Id,
		"entries": len(drafts),
		"saved":   saved,
	}).Info("Pulled author feed")
}
