package dispatch

import (
	"context"
	"fmt"

	"planet/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

// Announcements are capped to keep the message inside the channel's
// length limits even with the link appended.
const maxTitleRunes = 120

var announcements = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "planet_announcements_total",
	Help: "The total number of announce attempts by outcome",
}, []string{"outcome"})

// Store is the slice of the store the dispatch loop needs.
type Store interface {
	GetUnannounced(ctx context.Context, limit int) ([]models.Story, error)
	MarkAnnounced(ctx context.Context, id string) error
}

// Announcer delivers a short text message to the external channel.
type Announcer interface {
	Announce(ctx context.Context, text string) error
}

// Loop announces unsent stories one at a time. Each tick handles at most
// one story, which bounds the externally visible announcement rate per
// scheduler invocation.
type Loop struct {
	store     Store
	announcer Announcer
}

func NewLoop(store Store, announcer Announcer) *Loop {
	return &Loop{store: store, announcer: announcer}
}

// Tick announces at most one pending story and marks it announced. The
// returned id is empty when no story was pending.
//
// The announce attempt is at-least-once and the bookkeeping is
// at-most-once: a failed attempt is logged and the story is still marked
// announced. Losing the odd announcement beats dragging in a retry queue
// for a feature nobody needs to be highly available.
func (l *Loop) Tick(ctx context.Context) (string, error) {
	stories, err := l.store.GetUnannounced(ctx, 1)
	if err != nil {
		return "", fmt.Errorf("select pending story: %w", err)
	}
	if len(stories) == 0 {
		return "", nil
	}

	story := stories[0]

	attemptErr := l.announcer.Announce(ctx, Message(story))
	if attemptErr != nil {
		announcements.WithLabelValues("failed").Inc()
		log.WithFields(log.Fields{
			"story": story.Id,
			"error": attemptErr,
		}).Error("Error announcing story")
	} else {
		announcements.WithLabelValues("ok").Inc()
	}

	// The transition runs unconditionally, outside any error branch, so
	// the announced flag moves forward no matter how the attempt went.
	if err := l.store.MarkAnnounced(ctx, story.Id); err != nil {
		log.WithFields(log.Fields{
			"story": story.Id,
			"error": err,
		}).Error("Error marking story announced")
	}

	return story.Id, nil
}

// Message builds the announcement text for one story.
func Message(story models.Story) string {
	title := []rune(story.Title)
	if len(title) > maxTitleRunes {
		title = title[:maxTitleRunes]
	}
	return fmt.Sprintf("%s %s", string(title), story.Link)
}
