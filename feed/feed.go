package feed

import (
	"context"
	"net/http"
	"time"

	"planet/models"

	"github.com/mmcdole/gofeed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var fetchErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "planet_feed_fetch_errors_total",
	Help: "The total number of feed fetches that failed or did not parse",
})

// Date fields are tried in this order and the first one present wins.
// Badly implemented RSS/Atom generators are known to fill the wrong one,
// so preferring the publication date keeps stories from jumping around
// the timeline when an author edits an old post.
var createdLayouts = []string{time.RFC3339, time.RFC1123Z, time.RFC1123}

// Fetcher normalizes remote RSS/Atom documents into story drafts.
type Fetcher struct {
	parser *gofeed.Parser
}

func NewFetcher() *Fetcher {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: 30 * time.Second}
	parser.UserAgent = "planet/1.0"
	return &Fetcher{parser: parser}
}

// Fetch parses one feed into zero or more drafts. Fetching is fault
// tolerant: an unreachable or malformed feed yields an empty result, and
// an entry missing a date or any of the required fields is dropped
// without affecting its siblings.
func (f *Fetcher) Fetch(ctx context.Context, url string) []models.StoryDraft {
	parsed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		fetchErrors.Inc()
		log.WithFields(log.Fields{
			"url":   url,
			"error": err,
		}).Error("Error fetching feed")
		return nil
	}

	var drafts []models.StoryDraft
	for _, entry := range parsed.Items {
		date, ok := entryDate(entry)
		if !ok {
			continue
		}

		// All required fields or nothing, no partial fill.
		if entry.Title == "" || entry.Description == "" || entry.Link == "" {
			continue
		}

		drafts = append(drafts, models.StoryDraft{
			Title:       entry.Title,
			Summary:     entry.Description,
			Link:        entry.Link,
			PublishedAt: date.Unix(),
		})
	}

	return drafts
}

func entryDate(entry *gofeed.Item) (time.Time, bool) {
	if entry.PublishedParsed != nil {
		return *entry.PublishedParsed, true
	}
	if created, ok := createdDate(entry); ok {
		return created, true
	}
	if entry.UpdatedParsed != nil {
		return *entry.UpdatedParsed, true
	}
	return time.Time{}, false
}

// createdDate digs the pre-RFC4287 atom:created element (and its Dublin
// Core cousins) out of the extension map, since gofeed does not surface
// it as a first-class field.
func createdDate(entry *gofeed.Item) (time.Time, bool) {
	for _, ns := range []string{"atom", "dc", "dcterms"} {
		exts, ok := entry.Extensions[ns]
		if !ok {
			continue
		}
		for _, ext := range exts["created"] {
			if ext.Value == "" {
				continue
			}
			for _, layout := range createdLayouts {
				if t, err := time.Parse(layout, ext.Value); err == nil {
					return t, true
				}
			}
		}
	}
	return time.Time{}, false
}
